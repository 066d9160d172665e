package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"optica-backend/internal/auth"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Envelope mirrors httpx.Envelope with Data left undecoded.
type Envelope struct {
	OK      bool              `json:"ok"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// Decode unmarshals the envelope data into out.
func (e Envelope) Decode(t testing.TB, out any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", e.Data, err)
	}
}

func Issuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer(JWTSecret, time.Hour, AppName)
}

// Token issues a bearer token for u. u.Roles must be loaded.
func Token(t testing.TB, u *models.User) string {
	t.Helper()
	tok, err := Issuer().GenerateToken(u)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

// Do sends a JSON request to app and decodes the envelope. body may be nil.
func Do(t testing.TB, app *fiber.App, method, path string, body any, token string) (*http.Response, Envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var env Envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 && json.Valid(raw) {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope %s: %v", raw, err)
		}
	}
	return resp, env
}
