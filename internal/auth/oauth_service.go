package auth

import (
	"errors"
	"fmt"
	"strings"

	"optica-backend/internal/models"

	"gorm.io/gorm"
)

// ErrIdentityConflict is returned when the email matches a user already
// linked to a different account of the same provider.
var ErrIdentityConflict = errors.New("email is linked to another account of this provider")

// ErrAccountDisabled is returned for an inactive user; nothing is linked.
var ErrAccountDisabled = errors.New("account is disabled")

type UpsertOutcome int

const (
	OutcomeExisting UpsertOutcome = iota
	OutcomeLinked
	OutcomeCreated
)

// PlaceholderEmail stands in for providers that return no address.
func PlaceholderEmail(provider models.OAuthProvider, externalID string) string {
	return fmt.Sprintf("%s@%s.local", strings.ToLower(externalID), provider)
}

// UpsertOAuthUser resolves the local user for a provider identity:
// by (provider, external id), then by email (linking the identity),
// otherwise a new client account is created.
func UpsertOAuthUser(db *gorm.DB, provider models.OAuthProvider, profile *Profile) (*models.User, UpsertOutcome, error) {
	var (
		user    models.User
		outcome UpsertOutcome
	)

	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Roles").Preload("Branch").
			Where("oauth_provider = ? AND oauth_id = ?", provider, profile.ID).
			First(&user).Error
		if err == nil {
			if !user.Active {
				return ErrAccountDisabled
			}
			outcome = OutcomeExisting
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		email := NormalizeEmail(profile.Email)
		if email != "" {
			err := tx.Preload("Roles").Preload("Branch").Where("email = ?", email).First(&user).Error
			switch {
			case err == nil:
				if !user.Active {
					return ErrAccountDisabled
				}
				linked, err := link(tx, &user, provider, profile)
				if err != nil {
					return err
				}
				outcome = OutcomeExisting
				if linked {
					outcome = OutcomeLinked
				}
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		} else {
			email = PlaceholderEmail(provider, profile.ID)
		}

		outcome = OutcomeCreated
		return create(tx, &user, provider, profile, email)
	})
	if err != nil {
		return nil, 0, err
	}
	return &user, outcome, nil
}

// link attaches the provider identity to user and reports whether anything was written.
func link(tx *gorm.DB, user *models.User, provider models.OAuthProvider, profile *Profile) (bool, error) {
	if user.OAuthProvider != nil {
		if *user.OAuthProvider == provider && user.OAuthID != nil && *user.OAuthID != profile.ID {
			return false, ErrIdentityConflict
		}
		// Already linked to another provider; keep that link and sign in by email.
		return false, nil
	}

	updates := map[string]any{
		"oauth_provider": provider,
		"oauth_id":       profile.ID,
	}
	if user.AvatarURL == "" && profile.AvatarURL != "" {
		updates["avatar_url"] = profile.AvatarURL
		user.AvatarURL = profile.AvatarURL
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("link oauth identity: %w", err)
	}

	p, id := provider, profile.ID
	user.OAuthProvider = &p
	user.OAuthID = &id
	return true, nil
}

func create(tx *gorm.DB, user *models.User, provider models.OAuthProvider, profile *Profile, email string) error {
	clientRole, err := FindRole(tx, models.RoleClient)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	p, id := provider, profile.ID
	*user = models.User{
		Name:          name,
		Email:         email,
		Active:        true,
		OAuthProvider: &p,
		OAuthID:       &id,
		AvatarURL:     profile.AvatarURL,
		Roles:         []models.Role{*clientRole},
	}
	if err := tx.Create(user).Error; err != nil {
		return fmt.Errorf("create oauth user: %w", err)
	}
	return nil
}
