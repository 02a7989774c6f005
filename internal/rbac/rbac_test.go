package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "reader read", role: RoleReader, action: ActionRead, allow: true},
		{name: "reader write", role: RoleReader, action: ActionWrite, allow: false},
		{name: "author write", role: RoleAuthor, action: ActionWrite, allow: true},
		{name: "author moderate", role: RoleAuthor, action: ActionModerate, allow: false},
		{name: "admin moderate", role: RoleAdmin, action: ActionModerate, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
		{name: "unknown action", role: RoleAdmin, action: Action("launch"), allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleReader {
		t.Fatalf("Normalize(superuser) = %q", got)
	}
}

func TestCanEditArticle(t *testing.T) {
	cases := []struct {
		role            Role
		owner, coAuthor bool
		allow           bool
	}{
		{RoleAuthor, true, false, true},
		{RoleAuthor, false, true, true},
		{RoleAuthor, false, false, false},
		{RoleReader, true, false, false},
		{RoleAdmin, false, false, true},
	}
	for _, tc := range cases {
		if got := CanEditArticle(tc.role, tc.owner, tc.coAuthor); got != tc.allow {
			t.Fatalf("CanEditArticle(%q, %v, %v) = %v, want %v", tc.role, tc.owner, tc.coAuthor, got, tc.allow)
		}
	}
}
