package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"kgr/api/internal/store"
)

type ProfileView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl"`
	Role      string    `json:"role"`
	Interests []string  `json:"interests"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"createdAt"`
}

func profileView(p store.Profile) ProfileView {
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	return ProfileView{
		ID:        p.ID,
		Username:  p.Username,
		FullName:  p.FullName,
		Name:      p.DisplayName(),
		AvatarURL: p.AvatarURL,
		Role:      p.Role,
		Interests: interests,
		Banned:    p.Banned,
		CreatedAt: p.CreatedAt,
	}
}

type UpdateProfileInput struct {
	Username  string   `json:"username" validate:"omitempty,min=3,max=30,excludesall= /@#"`
	FullName  string   `json:"fullName" validate:"max=100"`
	AvatarURL string   `json:"avatarUrl" validate:"omitempty,url"`
	Interests []string `json:"interests" validate:"max=20,dive,max=40"`
}

func (s *Service) Me(ctx context.Context, caller Caller) (ProfileView, error) {
	profile, err := s.store.GetProfile(ctx, caller.UserID)
	if err != nil {
		return ProfileView{}, err
	}
	return profileView(profile), nil
}

// UpdateMe changes the caller's profile. Usernames are unique
// case-insensitively.
func (s *Service) UpdateMe(ctx context.Context, caller Caller, in UpdateProfileInput) (ProfileView, error) {
	profile, err := s.store.GetProfile(ctx, caller.UserID)
	if err != nil {
		return ProfileView{}, err
	}
	username := strings.TrimSpace(in.Username)
	if username != "" && !strings.EqualFold(username, profile.Username) {
		ok, err := s.store.UsernameAvailable(ctx, username, caller.UserID)
		if err != nil {
			return ProfileView{}, err
		}
		if !ok {
			return ProfileView{}, domainError(http.StatusConflict, "USERNAME_TAKEN", "That username is already taken", nil)
		}
	}
	if username != "" {
		profile.Username = username
	}
	profile.FullName = strings.TrimSpace(in.FullName)
	profile.AvatarURL = strings.TrimSpace(in.AvatarURL)
	if in.Interests != nil {
		profile.Interests = cleanInterests(in.Interests)
	}
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return ProfileView{}, err
	}
	return profileView(profile), nil
}

func (s *Service) UsernameAvailable(ctx context.Context, caller Caller, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, domainError(http.StatusBadRequest, "INVALID_REQUEST", "username is required", nil)
	}
	return s.store.UsernameAvailable(ctx, username, caller.UserID)
}

// cleanInterests lowercases and de-duplicates interest tags.
func cleanInterests(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "#")))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
