package validation

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"optica-backend/internal/httpx"
)

type signup struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Role     string  `json:"role" validate:"omitempty,oneof=admin client"`
	Color    *string `json:"color" validate:"omitempty,hexcolor"`
}

func TestStruct(t *testing.T) {
	c := qt.New(t)

	c.Assert(Struct(signup{Email: "a@b.co", Password: "12345678"}), qt.IsNil)

	bad := "blue"
	err := Struct(signup{Email: "nope", Password: "123", Role: "root", Color: &bad})
	var ve *httpx.ValidationError
	c.Assert(errors.As(err, &ve), qt.IsTrue)
	c.Assert(ve.Fields, qt.DeepEquals, map[string]string{
		"email":    "Invalid email format",
		"password": "Minimum is 8",
		"role":     "Must be one of: admin, client",
		"color":    "Must be a hex color like #1A2B3C",
	})
}
