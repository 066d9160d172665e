package httpx

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ValidationError carries per-field messages for a 400 response.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "validation failed" }

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

const uniqueViolation = "23505"

// IsUniqueViolation recognizes duplicate-key errors from any supported driver.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// DBError maps persistence errors to HTTP errors. notFound and conflict are
// the messages used for the matching cases; other errors become a 500.
func DBError(err error, notFound, conflict string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFound)
	case IsUniqueViolation(err):
		return fiber.NewError(fiber.StatusConflict, conflict)
	default:
		return err
	}
}

// ErrorHandler renders every error returned by a handler as an Envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return Fail(c, fiber.StatusBadRequest, ve.Error(), ve.Fields)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Fail(c, fe.Code, fe.Message, nil)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Fail(c, fiber.StatusNotFound, "resource not found", nil)
	}
	if IsUniqueViolation(err) {
		return Fail(c, fiber.StatusConflict, "resource already exists", nil)
	}

	zap.L().Error("unexpected error",
		zap.Error(err),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Any("request_id", c.Locals("requestid")),
	)
	return Fail(c, fiber.StatusInternalServerError, "internal server error", nil)
}
