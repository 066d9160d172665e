package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"optica-backend/internal/audit"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	stateCookiePrefix = "oauth_state_"
	stateTTL          = 10 * time.Minute
	exchangeTimeout   = 10 * time.Second
)

func (ps Providers) lookup(c *fiber.Ctx) (Provider, error) {
	p, ok := ps[models.OAuthProvider(strings.ToLower(c.Params("provider")))]
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "unknown or disabled oauth provider")
	}
	return p, nil
}

// GET /api/auth/oauth/:provider
func OAuthRedirectHandler(ps Providers) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := ps.lookup(c)
		if err != nil {
			return err
		}

		state := uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     stateCookiePrefix + string(p.Name()),
			Value:    state,
			Path:     "/api/auth/oauth",
			MaxAge:   int(stateTTL.Seconds()),
			Expires:  time.Now().Add(stateTTL),
			HTTPOnly: true,
			Secure:   c.Protocol() == "https",
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.Redirect(p.AuthCodeURL(state), fiber.StatusFound)
	}
}

// GET /api/auth/oauth/:provider/callback?code=...&state=...
func OAuthCallbackHandler(ps Providers, ti *TokenIssuer, frontendURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := ps.lookup(c)
		if err != nil {
			return err
		}

		if e := c.Query("error"); e != "" {
			return fiber.NewError(fiber.StatusBadRequest, "oauth authorization failed: "+e)
		}

		cookieName := stateCookiePrefix + string(p.Name())
		state := c.Query("state")
		expected := c.Cookies(cookieName)
		c.Cookie(&fiber.Cookie{
			Name:     cookieName,
			Path:     "/api/auth/oauth",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HTTPOnly: true,
		})
		if state == "" || state != expected {
			return fiber.NewError(fiber.StatusBadRequest, "invalid oauth state")
		}

		code := c.Query("code")
		if code == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), exchangeTimeout)
		defer cancel()

		profile, err := p.Exchange(ctx, code)
		if err != nil {
			zap.L().Warn("oauth exchange failed", zap.String("provider", string(p.Name())), zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "could not complete sign-in with provider")
		}

		user, outcome, err := UpsertOAuthUser(database.DB, p.Name(), profile)
		if err != nil {
			switch {
			case errors.Is(err, ErrIdentityConflict):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, ErrAccountDisabled):
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			}
			return httpx.DBError(err, "user not found", "account already exists")
		}
		if err := touchLastLogin(database.DB, user); err != nil {
			return err
		}

		entry := audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionOAuthLogin,
			Description: fmt.Sprintf("Signed in with %s", p.Name()),
		}
		switch outcome {
		case OutcomeCreated:
			entry.Action = models.AuditActionRegister
			entry.Description = fmt.Sprintf("Registered with %s", p.Name())
			entry.After = NewUserResponse(user)
		case OutcomeLinked:
			entry.Description = fmt.Sprintf("Linked %s and signed in", p.Name())
		}
		audit.RecordAs(c, audit.ActorFromUser(c, user), entry)

		token, err := ti.GenerateToken(user)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}

		if strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON) {
			return httpx.OK(c, TokenResponse{Token: token, User: NewUserResponse(user)})
		}
		return c.Redirect(frontendURL+"/oauth/callback#token="+url.QueryEscape(token), fiber.StatusFound)
	}
}
