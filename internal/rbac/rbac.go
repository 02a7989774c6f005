// Package rbac decides what each archive role may do.
package rbac

type Role string
type Action string

const (
	RoleReader Role = "reader"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionModerate Action = "moderate"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return action == ActionRead || action == ActionWrite || action == ActionModerate
	case RoleAuthor:
		return action == ActionRead || action == ActionWrite
	case RoleReader:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown roles to the least privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleReader, RoleAuthor, RoleAdmin:
		return Role(role)
	default:
		return RoleReader
	}
}

// CanEditArticle reports whether a user may change an article they may or may
// not own. Owners and listed co-authors edit; admins edit anything.
func CanEditArticle(role Role, isOwner, isCoAuthor bool) bool {
	if role == RoleAdmin {
		return true
	}
	return Can(role, ActionWrite) && (isOwner || isCoAuthor)
}
