package httpx

import (
	"github.com/gofiber/fiber/v2"
)

// Envelope is the body of every /api response.
type Envelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

func OK(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{OK: true, Data: data})
}

func Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{OK: true, Data: data})
}

func Fail(c *fiber.Ctx, status int, msg string, details any) error {
	return c.Status(status).JSON(Envelope{OK: false, Error: msg, Details: details})
}
