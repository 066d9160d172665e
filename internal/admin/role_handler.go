package admin

import (
	"fmt"
	"strings"

	"optica-backend/internal/audit"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/models"
	"optica-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type RoleResponse struct {
	ID          uint            `json:"id"`
	Name        models.RoleName `json:"name"`
	Description string          `json:"description"`
	IsSystem    bool            `json:"is_system"`
	UserCount   int64           `json:"user_count"`
}

type CreateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=255"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=50"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

type roleRow struct {
	models.Role
	UserCount int64
}

func (r roleRow) response() RoleResponse {
	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		UserCount:   r.UserCount,
	}
}

const roleColumns = "roles.*, (SELECT COUNT(*) FROM user_roles WHERE user_roles.role_id = roles.id) AS user_count"

// GET /api/roles
func ListRolesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var rows []roleRow
		if err := database.DB.Model(&models.Role{}).
			Select(roleColumns).
			Order("roles.id asc").
			Scan(&rows).Error; err != nil {
			return fmt.Errorf("list roles: %w", err)
		}

		res := make([]RoleResponse, 0, len(rows))
		for _, r := range rows {
			res = append(res, r.response())
		}
		return httpx.OK(c, res)
	}
}

// GET /api/roles/:id
func GetRoleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		row, err := loadRole(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, row.response())
	}
}

// POST /api/roles
func CreateRoleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRoleRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Name = strings.ToLower(strings.TrimSpace(body.Name))
		if err := validation.Struct(&body); err != nil {
			return err
		}

		role := models.Role{
			Name:        models.RoleName(body.Name),
			Description: strings.TrimSpace(body.Description),
		}
		if err := database.DB.Create(&role).Error; err != nil {
			return httpx.DBError(err, "role not found", "a role with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "role",
			EntityID:    role.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Created role %s", role.Name),
			After:       role,
		})
		return httpx.Created(c, roleRow{Role: role}.response())
	}
}

// PUT /api/roles/:id. System roles keep their name.
func UpdateRoleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		row, err := loadRole(c)
		if err != nil {
			return err
		}

		var body UpdateRoleRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		if body.Name != nil {
			*body.Name = strings.ToLower(strings.TrimSpace(*body.Name))
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		role := row.Role
		before := role
		if body.Name != nil && models.RoleName(*body.Name) != role.Name {
			if role.IsSystem {
				return fiber.NewError(fiber.StatusBadRequest, "system roles cannot be renamed")
			}
			role.Name = models.RoleName(*body.Name)
		}
		if body.Description != nil {
			role.Description = strings.TrimSpace(*body.Description)
		}

		if err := database.DB.Save(&role).Error; err != nil {
			return httpx.DBError(err, "role not found", "a role with this name already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "role",
			EntityID:    role.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Updated role %s", role.Name),
			Before:      before,
			After:       role,
		})
		return httpx.OK(c, roleRow{Role: role, UserCount: row.UserCount}.response())
	}
}

// DELETE /api/roles/:id removes a custom role that no user holds.
func DeleteRoleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		row, err := loadRole(c)
		if err != nil {
			return err
		}
		if row.IsSystem {
			return fiber.NewError(fiber.StatusBadRequest, "system roles cannot be deleted")
		}
		if row.UserCount > 0 {
			return fiber.NewError(fiber.StatusConflict,
				fmt.Sprintf("role is assigned to %d user(s)", row.UserCount))
		}

		if err := database.DB.Delete(&models.Role{}, row.ID).Error; err != nil {
			return fmt.Errorf("delete role: %w", err)
		}

		audit.Record(c, audit.Entry{
			EntityType:  "role",
			EntityID:    row.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Deleted role %s", row.Name),
			Before:      row.Role,
		})
		return httpx.OK(c, row.response())
	}
}

func loadRole(c *fiber.Ctx) (*roleRow, error) {
	id, err := httpx.ParamID(c)
	if err != nil {
		return nil, err
	}

	var rows []roleRow
	if err := database.DB.Model(&models.Role{}).
		Select(roleColumns).
		Where("roles.id = ?", id).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}
	if len(rows) == 0 {
		return nil, fiber.NewError(fiber.StatusNotFound, "role not found")
	}
	return &rows[0], nil
}
