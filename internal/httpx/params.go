package httpx

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ParamID parses the :id route parameter.
func ParamID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// QueryUint parses an optional numeric query parameter. ok is false when it is absent.
func QueryUint(c *fiber.Ctx, key string) (v uint, ok bool, err error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, false, nil
	}
	n, perr := strconv.ParseUint(raw, 10, 64)
	if perr != nil || n == 0 {
		return 0, false, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return uint(n), true, nil
}

func BodyParser(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}
