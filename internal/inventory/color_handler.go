package inventory

import (
	"fmt"
	"strings"

	"optica-backend/internal/audit"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"
	"optica-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type ColorResponse struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	HexCode string `json:"hex_code"`
	Active  bool   `json:"active"`
}

func NewColorResponse(col models.Color) ColorResponse {
	return ColorResponse{ID: col.ID, Name: col.Name, HexCode: col.HexCode, Active: col.Active}
}

type CreateColorRequest struct {
	Name    string `json:"name" validate:"required,max=50"`
	HexCode string `json:"hex_code" validate:"omitempty,len=7,hexcolor"`
}

type UpdateColorRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=50"`
	HexCode *string `json:"hex_code" validate:"omitempty,len=7,hexcolor"`
	Active  *bool   `json:"active"`
}

// GET /api/colors
func ListColorsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Color{})
		if !identity.IncludeInactive(c, models.RoleAdmin) {
			dbq = dbq.Where("active = ?", true)
		}

		var colors []models.Color
		if err := dbq.Order("name asc").Find(&colors).Error; err != nil {
			return fmt.Errorf("list colors: %w", err)
		}

		res := make([]ColorResponse, 0, len(colors))
		for _, col := range colors {
			res = append(res, NewColorResponse(col))
		}
		return httpx.OK(c, res)
	}
}

// GET /api/colors/:id
func GetColorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		col, err := loadColor(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, NewColorResponse(*col))
	}
}

// POST /api/colors
func CreateColorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateColorRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Name = strings.TrimSpace(body.Name)
		body.HexCode = strings.ToUpper(strings.TrimSpace(body.HexCode))
		if err := validation.Struct(&body); err != nil {
			return err
		}

		col := models.Color{Name: body.Name, HexCode: body.HexCode, Active: true}
		if err := database.DB.Create(&col).Error; err != nil {
			return httpx.DBError(err, "color not found", "a color with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "color",
			EntityID:    col.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Created color %s", col.Name),
			After:       col,
		})
		return httpx.Created(c, NewColorResponse(col))
	}
}

// PUT /api/colors/:id
func UpdateColorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		col, err := loadColor(c)
		if err != nil {
			return err
		}

		var body UpdateColorRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		if body.Name != nil {
			*body.Name = strings.TrimSpace(*body.Name)
		}
		if body.HexCode != nil {
			*body.HexCode = strings.ToUpper(strings.TrimSpace(*body.HexCode))
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		before := *col
		if body.Name != nil {
			col.Name = *body.Name
		}
		if body.HexCode != nil {
			col.HexCode = *body.HexCode
		}
		if body.Active != nil {
			col.Active = *body.Active
		}

		if err := database.DB.Save(col).Error; err != nil {
			return httpx.DBError(err, "color not found", "a color with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "color",
			EntityID:    col.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Updated color %s", col.Name),
			Before:      before,
			After:       col,
		})
		return httpx.OK(c, NewColorResponse(*col))
	}
}

// DELETE /api/colors/:id deactivates the color.
func DeleteColorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		col, err := loadColor(c)
		if err != nil {
			return err
		}

		before := *col
		if err := database.DB.Model(col).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate color: %w", err)
		}

		audit.Record(c, audit.Entry{
			EntityType:  "color",
			EntityID:    col.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Deactivated color %s", col.Name),
			Before:      before,
			After:       col,
		})
		return httpx.OK(c, NewColorResponse(*col))
	}
}

func loadColor(c *fiber.Ctx) (*models.Color, error) {
	id, err := httpx.ParamID(c)
	if err != nil {
		return nil, err
	}
	var col models.Color
	if err := database.DB.First(&col, id).Error; err != nil {
		return nil, httpx.DBError(err, "color not found", "")
	}
	if !col.Active && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusNotFound, "color not found")
	}
	return &col, nil
}

func isAdmin(c *fiber.Ctx) bool {
	id, ok := identity.From(c)
	return ok && id.HasRole(models.RoleAdmin)
}
