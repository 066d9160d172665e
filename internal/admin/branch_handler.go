package admin

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

type BranchResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func NewBranchResponse(b models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Address:   b.Address,
		City:      b.City,
		Phone:     b.Phone,
		Email:     b.Email,
		Active:    b.Active,
		CreatedAt: b.CreatedAt.Format(timeLayout),
	}
}

type CreateBranchRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Address string `json:"address" validate:"max=255"`
	City    string `json:"city" validate:"max=100"`
	Phone   string `json:"phone" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email,max=150"`
}

type UpdateBranchRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Address *string `json:"address" validate:"omitempty,max=255"`
	City    *string `json:"city" validate:"omitempty,max=100"`
	Phone   *string `json:"phone" validate:"omitempty,max=50"`
	Email   *string `json:"email" validate:"omitempty,email,max=150"`
	Active  *bool   `json:"active"`
}

// GET /api/branches
func ListBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Branch{})
		if !identity.IncludeInactive(c, models.RoleAdmin) {
			dbq = dbq.Where("active = ?", true)
		}

		var branches []models.Branch
		if err := dbq.Order("name asc").Find(&branches).Error; err != nil {
			return fmt.Errorf("list branches: %w", err)
		}

		res := make([]BranchResponse, 0, len(branches))
		for _, b := range branches {
			res = append(res, NewBranchResponse(b))
		}
		return httpx.OK(c, res)
	}
}

// GET /api/branches/:id
func GetBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branch, err := loadBranch(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, NewBranchResponse(*branch))
	}
}

// POST /api/branches
func CreateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBranchRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Name = strings.TrimSpace(body.Name)
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		if err := validation.Struct(&body); err != nil {
			return err
		}

		branch := models.Branch{
			Name:    body.Name,
			Address: strings.TrimSpace(body.Address),
			City:    strings.TrimSpace(body.City),
			Phone:   strings.TrimSpace(body.Phone),
			Email:   body.Email,
			Active:  true,
		}
		if err := database.DB.Create(&branch).Error; err != nil {
			return httpx.DBError(err, "branch not found", "a branch with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "branch",
			EntityID:    branch.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Created branch %s", branch.Name),
			After:       branch,
		})
		return httpx.Created(c, NewBranchResponse(branch))
	}
}

// PUT /api/branches/:id
func UpdateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branch, err := loadBranch(c)
		if err != nil {
			return err
		}

		var body UpdateBranchRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		trimPtr(body.Name)
		if err := validation.Struct(&body); err != nil {
			return err
		}

		before := *branch
		if body.Name != nil {
			branch.Name = *body.Name
		}
		if body.Address != nil {
			branch.Address = strings.TrimSpace(*body.Address)
		}
		if body.City != nil {
			branch.City = strings.TrimSpace(*body.City)
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Email != nil {
			branch.Email = strings.ToLower(strings.TrimSpace(*body.Email))
		}
		if body.Active != nil {
			branch.Active = *body.Active
		}

		if err := database.DB.Save(branch).Error; err != nil {
			return httpx.DBError(err, "branch not found", "a branch with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "branch",
			EntityID:    branch.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Updated branch %s", branch.Name),
			Before:      before,
			After:       branch,
		})
		return httpx.OK(c, NewBranchResponse(*branch))
	}
}

// DELETE /api/branches/:id deactivates the branch.
func DeleteBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branch, err := loadBranch(c)
		if err != nil {
			return err
		}

		before := *branch
		if err := database.DB.Model(branch).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate branch: %w", err)
		}

		audit.Record(c, audit.Entry{
			EntityType:  "branch",
			EntityID:    branch.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Deactivated branch %s", branch.Name),
			Before:      before,
			After:       branch,
		})
		return httpx.OK(c, NewBranchResponse(*branch))
	}
}

// loadBranch resolves :id. Inactive branches are only visible to admins.
func loadBranch(c *fiber.Ctx) (*models.Branch, error) {
	id, err := httpx.ParamID(c)
	if err != nil {
		return nil, err
	}

	var branch models.Branch
	if err := database.DB.First(&branch, id).Error; err != nil {
		return nil, httpx.DBError(err, "branch not found", "")
	}
	if !branch.Active && !isAdmin(c) {
		return nil, fiber.NewError(fiber.StatusNotFound, "branch not found")
	}
	return &branch, nil
}
