package models

import "time"

type RoleName string

const (
	RoleAdmin       RoleName = "admin"
	RoleVendor      RoleName = "vendor"
	RoleOptometrist RoleName = "optometrist"
	RoleClient      RoleName = "client"
)

// SystemRoles are seeded on startup and cannot be renamed or deleted.
var SystemRoles = []RoleName{RoleAdmin, RoleVendor, RoleOptometrist, RoleClient}

// RolePriority orders roles from most to least privileged.
var RolePriority = []RoleName{RoleAdmin, RoleVendor, RoleOptometrist, RoleClient}

type OAuthProvider string

const (
	ProviderGoogle    OAuthProvider = "google"
	ProviderFacebook  OAuthProvider = "facebook"
	ProviderInstagram OAuthProvider = "instagram"
)

type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        RoleName  `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	IsSystem    bool      `gorm:"not null;default:false" json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type User struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Name         string  `gorm:"size:100;not null" json:"name"`
	Email        string  `gorm:"size:150;uniqueIndex;not null" json:"email"`
	PasswordHash *string `gorm:"size:255" json:"-"` // OAuth-only users have no password
	Phone        string  `gorm:"size:50" json:"phone"`
	Active       bool    `gorm:"not null;default:true" json:"active"`

	// (provider, id) is unique; both are NULL for password-only accounts
	OAuthProvider *OAuthProvider `gorm:"column:oauth_provider;size:20;uniqueIndex:idx_users_oauth_identity" json:"oauth_provider"`
	OAuthID       *string        `gorm:"column:oauth_id;size:191;uniqueIndex:idx_users_oauth_identity" json:"-"`
	AvatarURL     string         `gorm:"size:500" json:"avatar_url"`

	BranchID    *uint      `json:"branch_id"`
	Branch      *Branch    `json:"branch,omitempty"`
	Roles       []Role     `gorm:"many2many:user_roles;" json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RoleNames returns the names of the loaded roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, string(r.Name))
	}
	return names
}

func (u *User) HasRole(name RoleName) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
