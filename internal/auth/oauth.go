package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"optica-backend/internal/config"
	"optica-backend/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/instagram"
)

// Profile is the identity returned by a provider after a successful exchange.
// Email may be empty (Instagram never returns one).
type Profile struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

// Provider is one OAuth identity provider.
type Provider interface {
	Name() models.OAuthProvider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

type Providers map[models.OAuthProvider]Provider

// NewProviders builds the providers that have client credentials configured.
func NewProviders(cfg config.OAuthConfig) Providers {
	ps := Providers{}
	redirect := func(p models.OAuthProvider) string {
		return fmt.Sprintf("%s/api/auth/oauth/%s/callback", cfg.RedirectBaseURL, p)
	}

	if cfg.Google.Enabled() {
		ps[models.ProviderGoogle] = &oauth2Provider{
			name: models.ProviderGoogle,
			conf: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     google.Endpoint,
				RedirectURL:  redirect(models.ProviderGoogle),
				Scopes:       []string{"openid", "email", "profile"},
			},
			userInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
			decode:      decodeGoogle,
		}
	}
	if cfg.Facebook.Enabled() {
		ps[models.ProviderFacebook] = &oauth2Provider{
			name: models.ProviderFacebook,
			conf: &oauth2.Config{
				ClientID:     cfg.Facebook.ClientID,
				ClientSecret: cfg.Facebook.ClientSecret,
				Endpoint:     facebook.Endpoint,
				RedirectURL:  redirect(models.ProviderFacebook),
				Scopes:       []string{"email", "public_profile"},
			},
			userInfoURL: "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)",
			decode:      decodeFacebook,
		}
	}
	if cfg.Instagram.Enabled() {
		ps[models.ProviderInstagram] = &oauth2Provider{
			name: models.ProviderInstagram,
			conf: &oauth2.Config{
				ClientID:     cfg.Instagram.ClientID,
				ClientSecret: cfg.Instagram.ClientSecret,
				Endpoint:     instagram.Endpoint,
				RedirectURL:  redirect(models.ProviderInstagram),
				Scopes:       []string{"user_profile"},
			},
			userInfoURL:  "https://graph.instagram.com/me?fields=id,username",
			tokenInQuery: true,
			decode:       decodeInstagram,
		}
	}
	return ps
}

type oauth2Provider struct {
	name        models.OAuthProvider
	conf        *oauth2.Config
	userInfoURL string
	// Instagram's graph API wants access_token as a query parameter.
	tokenInQuery bool
	decode       func([]byte) (*Profile, error)
}

func (p *oauth2Provider) Name() models.OAuthProvider { return p.name }

func (p *oauth2Provider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *oauth2Provider) Exchange(ctx context.Context, code string) (*Profile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: exchange code: %w", p.name, err)
	}

	infoURL := p.userInfoURL
	if p.tokenInQuery {
		u, err := url.Parse(infoURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("access_token", tok.AccessToken)
		u.RawQuery = q.Encode()
		infoURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch profile: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read profile: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: profile request returned %d", p.name, resp.StatusCode)
	}

	profile, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: decode profile: %w", p.name, err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%s: profile has no id", p.name)
	}
	return profile, nil
}

func decodeGoogle(body []byte) (*Profile, error) {
	var v struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	p := &Profile{ID: v.Sub, Name: v.Name, AvatarURL: v.Picture}
	// unverified addresses must not link to existing accounts
	if v.EmailVerified {
		p.Email = v.Email
	}
	return p, nil
}

func decodeFacebook(body []byte) (*Profile, error) {
	var v struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return &Profile{ID: v.ID, Email: v.Email, Name: v.Name, AvatarURL: v.Picture.Data.URL}, nil
}

func decodeInstagram(body []byte) (*Profile, error) {
	var v struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return &Profile{ID: v.ID, Name: v.Username}, nil
}
