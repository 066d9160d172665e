package auth

import (
	"errors"
	"fmt"

	"optica-backend/internal/audit"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"
	"optica-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=150"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	Current string `json:"current"`
	New     string `json:"new" validate:"required,min=8,max=72"`
}

// RegisterHandler creates a self-service account. The account always gets
// the client role, whatever the body says.
func RegisterHandler(ti *TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Email = NormalizeEmail(body.Email)
		if err := validation.Struct(&body); err != nil {
			return err
		}

		taken, err := EmailTaken(database.DB, body.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}

		clientRole, err := FindRole(database.DB, models.RoleClient)
		if err != nil {
			return err
		}

		hash, err := HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: &hash,
			Phone:        body.Phone,
			Active:       true,
			Roles:        []models.Role{*clientRole},
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return httpx.DBError(err, "user not found", "email already registered")
		}

		audit.RecordAs(c, audit.ActorFromUser(c, &user), audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionRegister,
			Description: fmt.Sprintf("Registered %s", user.Email),
			After:       NewUserResponse(&user),
		})

		token, err := ti.GenerateToken(&user)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		return httpx.Created(c, TokenResponse{Token: token, User: NewUserResponse(&user)})
	}
}

func LoginHandler(ti *TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Email = NormalizeEmail(body.Email)
		if err := validation.Struct(&body); err != nil {
			return err
		}

		user, err := FindUserByEmail(database.DB, body.Email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
			}
			return err
		}

		// OAuth-only accounts have no hash and cannot log in with a password.
		if !user.HasPassword() || !CheckPassword(*user.PasswordHash, body.Password) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}
		if !user.Active {
			return fiber.NewError(fiber.StatusForbidden, "account is disabled")
		}

		if err := touchLastLogin(database.DB, user); err != nil {
			return err
		}

		audit.RecordAs(c, audit.ActorFromUser(c, user), audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionLogin,
			Description: fmt.Sprintf("Logged in as %s", user.Email),
		})

		token, err := ti.GenerateToken(user)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		return httpx.OK(c, TokenResponse{Token: token, User: NewUserResponse(user)})
	}
}

func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identity.Require(c)
		if err != nil {
			return err
		}

		user, err := FindUserByID(database.DB, id.UserID)
		if err != nil {
			return httpx.DBError(err, "user not found", "")
		}
		return httpx.OK(c, NewUserResponse(user))
	}
}

// ChangePasswordHandler updates the caller's password. Accounts created
// through OAuth may set a first password without sending the current one.
func ChangePasswordHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identity.Require(c)
		if err != nil {
			return err
		}

		var body ChangePasswordRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		user, err := FindUserByID(database.DB, id.UserID)
		if err != nil {
			return httpx.DBError(err, "user not found", "")
		}

		if user.HasPassword() && !CheckPassword(*user.PasswordHash, body.Current) {
			return fiber.NewError(fiber.StatusBadRequest, "current password is incorrect")
		}

		hash, err := HashPassword(body.New)
		if err != nil {
			return err
		}
		if err := database.DB.Model(user).Update("password_hash", hash).Error; err != nil {
			return fmt.Errorf("update password: %w", err)
		}

		audit.Record(c, audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionUpdate,
			Description: "Changed password",
		})

		return httpx.OK(c, fiber.Map{"message": "password updated"})
	}
}
