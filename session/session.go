package session

import (
	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// Role represents a user's platform role.
type Role string

const (
	RolePlayer     Role = "player"
	RoleCoach      Role = "coach"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// User is the locally-cached record of the authenticated user's profile.
type User struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name,omitempty"`
	PhotoURL        string `json:"photo_url,omitempty"`
	CoverPhoto      string `json:"cover_photo,omitempty"`
	Role            Role   `json:"role,omitempty"`
	IsAdmin         bool   `json:"is_admin,omitempty"`
	IsSuperAdmin    bool   `json:"is_super_admin,omitempty"`
	ProfileComplete bool   `json:"profile_complete,omitempty"`
}

// Session is the authenticated identity bound to this client instance.
// A session is all-or-nothing: callers only ever observe a nil *Session
// (anonymous) or one with every field populated.
type Session struct {
	User        User   `json:"user"`
	BearerToken string `json:"-"` // persisted separately, never serialized with the user snapshot
}

// HasRole reports whether the session's user holds the given role.
// Admin-level roles imply the lower ones.
func (u User) HasRole(role Role) bool {
	if u.Role == role {
		return true
	}
	switch role {
	case RoleAdmin:
		return u.IsAdmin || u.IsSuperAdmin || u.Role == RoleSuperAdmin
	case RoleSuperAdmin:
		return u.IsSuperAdmin
	}
	return false
}

// UserFromAPI converts the backend's user representation into the local one.
// Admin flags are derived from the role when the backend omits them.
func UserFromAPI(au *apimodel.User) User {
	u := User{
		ID:              au.ID,
		Email:           au.Email,
		DisplayName:     au.DisplayName,
		PhotoURL:        au.PhotoURL,
		CoverPhoto:      au.CoverPhoto,
		Role:            Role(au.Role),
		IsAdmin:         au.IsAdmin,
		IsSuperAdmin:    au.IsSuperAdmin,
		ProfileComplete: au.ProfileComplete,
	}
	if u.Role == RoleSuperAdmin {
		u.IsSuperAdmin = true
	}
	if u.IsSuperAdmin || u.Role == RoleAdmin {
		u.IsAdmin = true
	}
	return u
}

// Merge applies a non-nil field of an API partial update onto the user.
func (u User) Merge(p apimodel.ProfileUpdate) User {
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	if p.CoverPhoto != nil {
		u.CoverPhoto = *p.CoverPhoto
	}
	return u
}
