package auth

import (
	"time"

	"optica-backend/internal/models"
)

type BranchSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// UserResponse is the public view of a user. It never carries the password
// hash or the provider's external id.
type UserResponse struct {
	ID            uint                  `json:"id"`
	Name          string                `json:"name"`
	Email         string                `json:"email"`
	Phone         string                `json:"phone"`
	Active        bool                  `json:"active"`
	Roles         []string              `json:"roles"`
	BranchID      *uint                 `json:"branch_id"`
	Branch        *BranchSummary        `json:"branch,omitempty"`
	OAuthProvider *models.OAuthProvider `json:"oauth_provider"`
	AvatarURL     string                `json:"avatar_url"`
	HasPassword   bool                  `json:"has_password"`
	LastLoginAt   *time.Time            `json:"last_login_at"`
	CreatedAt     time.Time             `json:"created_at"`
}

func NewUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Active:        u.Active,
		Roles:         u.RoleNames(),
		BranchID:      u.BranchID,
		OAuthProvider: u.OAuthProvider,
		AvatarURL:     u.AvatarURL,
		HasPassword:   u.HasPassword(),
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
	if u.Branch != nil {
		resp.Branch = &BranchSummary{ID: u.Branch.ID, Name: u.Branch.Name, City: u.Branch.City}
	}
	return resp
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}
