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

type BrandResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}

func NewBrandResponse(b models.Brand) BrandResponse {
	return BrandResponse{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Active:      b.Active,
		CreatedAt:   b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

type CreateBrandRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type UpdateBrandRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Active      *bool   `json:"active"`
}

// GET /api/brands
func ListBrandsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Brand{})
		if !identity.IncludeInactive(c, models.RoleAdmin) {
			dbq = dbq.Where("active = ?", true)
		}

		var brands []models.Brand
		if err := dbq.Order("name asc").Find(&brands).Error; err != nil {
			return fmt.Errorf("list brands: %w", err)
		}

		res := make([]BrandResponse, 0, len(brands))
		for _, b := range brands {
			res = append(res, NewBrandResponse(b))
		}
		return httpx.OK(c, res)
	}
}

// GET /api/brands/:id
func GetBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := loadBrand(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, NewBrandResponse(*b))
	}
}

// POST /api/brands
func CreateBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBrandRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Name = strings.TrimSpace(body.Name)
		if err := validation.Struct(&body); err != nil {
			return err
		}

		b := models.Brand{Name: body.Name, Description: strings.TrimSpace(body.Description), Active: true}
		if err := database.DB.Create(&b).Error; err != nil {
			return httpx.DBError(err, "brand not found", "a brand with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "brand",
			EntityID:    b.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Created brand %s", b.Name),
			After:       b,
		})
		return httpx.Created(c, NewBrandResponse(b))
	}
}

// PUT /api/brands/:id
func UpdateBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := loadBrand(c)
		if err != nil {
			return err
		}

		var body UpdateBrandRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		if body.Name != nil {
			*body.Name = strings.TrimSpace(*body.Name)
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		before := *b
		if body.Name != nil {
			b.Name = *body.Name
		}
		if body.Description != nil {
			b.Description = strings.TrimSpace(*body.Description)
		}
		if body.Active != nil {
			b.Active = *body.Active
		}

		if err := database.DB.Save(b).Error; err != nil {
			return httpx.DBError(err, "brand not found", "a brand with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "brand",
			EntityID:    b.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Updated brand %s", b.Name),
			Before:      before,
			After:       b,
		})
		return httpx.OK(c, NewBrandResponse(*b))
	}
}

// DELETE /api/brands/:id deactivates the brand.
func DeleteBrandHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := loadBrand(c)
		if err != nil {
			return err
		}

		before := *b
		if err := database.DB.Model(b).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate brand: %w", err)
		}

		audit.Record(c, audit.Entry{
			EntityType:  "brand",
			EntityID:    b.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Deactivated brand %s", b.Name),
			Before:      before,
			After:       b,
		})
		return httpx.OK(c, NewBrandResponse(*b))
	}
}

func loadBrand(c *fiber.Ctx) (*models.Brand, error) {
	id, err := httpx.ParamID(c)
	if err != nil {
		return nil, err
	}
	var b models.Brand
	if err := database.DB.First(&b, id).Error; err != nil {
		return nil, httpx.DBError(err, "brand not found", "")
	}
	if !b.Active && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusNotFound, "brand not found")
	}
	return &b, nil
}
