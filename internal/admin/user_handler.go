package admin

import (
	"fmt"
	"strings"

	"optica-backend/internal/audit"
	"optica-backend/internal/auth"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"
	"optica-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name     string   `json:"name" validate:"required,max=100"`
	Email    string   `json:"email" validate:"required,email,max=150"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Phone    string   `json:"phone" validate:"max=50"`
	BranchID *uint    `json:"branch_id"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,required"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=150"`
	Phone    *string `json:"phone" validate:"omitempty,max=50"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	BranchID *uint   `json:"branch_id"`
	// clears the branch assignment; wins over branch_id
	ClearBranch bool  `json:"clear_branch"`
	Active      *bool `json:"active"`
}

type SetRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

// GET /api/users?q=ana&role=vendor&branch_id=1&include_inactive=true&page=1&per_page=20
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.User{})

		if !identity.IncludeInactive(c, models.RoleAdmin) {
			dbq = dbq.Where("active = ?", true)
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			dbq = dbq.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
		}
		if role := strings.TrimSpace(c.Query("role")); role != "" {
			sub := database.DB.Table("user_roles").
				Select("user_roles.user_id").
				Joins("JOIN roles ON roles.id = user_roles.role_id").
				Where("roles.name = ?", strings.ToLower(role))
			dbq = dbq.Where("id IN (?)", sub)
		}
		branchID, ok, err := httpx.QueryUint(c, "branch_id")
		if err != nil {
			return err
		}
		if ok {
			dbq = dbq.Where("branch_id = ?", branchID)
		}
		dbq = dbq.Session(&gorm.Session{})

		page := httpx.ParsePage(c)
		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fmt.Errorf("count users: %w", err)
		}

		var users []models.User
		if err := dbq.Preload("Roles").Preload("Branch").
			Scopes(page.Scope).
			Order("name asc, id asc").
			Find(&users).Error; err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		items := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			items = append(items, auth.NewUserResponse(&users[i]))
		}
		return httpx.OK(c, httpx.NewPaginated(items, page, total))
	}
}

// GET /api/users/:id
func GetUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, auth.NewUserResponse(user))
	}
}

// POST /api/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.Name = strings.TrimSpace(body.Name)
		body.Email = auth.NormalizeEmail(body.Email)
		if err := validation.Struct(&body); err != nil {
			return err
		}

		roles, err := resolveRoles(body.Roles)
		if err != nil {
			return err
		}
		if err := checkBranch(body.BranchID); err != nil {
			return err
		}

		taken, err := auth.EmailTaken(database.DB, body.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}

		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: &hash,
			Phone:        strings.TrimSpace(body.Phone),
			Active:       true,
			BranchID:     body.BranchID,
			Roles:        roles,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return httpx.DBError(err, "user not found", "email already registered")
		}

		created, err := auth.FindUserByID(database.DB, user.ID)
		if err != nil {
			return err
		}
		resp := auth.NewUserResponse(created)

		audit.Record(c, audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Created user %s (%s)", user.Email, strings.Join(user.RoleNames(), ", ")),
			After:       resp,
		})
		return httpx.Created(c, resp)
	}
}

// PUT /api/users/:id
func UpdateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c)
		if err != nil {
			return err
		}

		var body UpdateUserRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		trimPtr(body.Name)
		if body.Email != nil {
			*body.Email = auth.NormalizeEmail(*body.Email)
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		if body.Active != nil && !*body.Active && isSelf(c, user.ID) {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot deactivate your own account")
		}

		before := auth.NewUserResponse(user)

		if body.Email != nil && *body.Email != user.Email {
			taken, err := auth.EmailTaken(database.DB, *body.Email, user.ID)
			if err != nil {
				return err
			}
			if taken {
				return fiber.NewError(fiber.StatusConflict, "email already registered")
			}
			user.Email = *body.Email
		}
		if body.Name != nil {
			user.Name = *body.Name
		}
		if body.Phone != nil {
			user.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.ClearBranch {
			user.BranchID = nil
			user.Branch = nil
		} else if body.BranchID != nil {
			if err := checkBranch(body.BranchID); err != nil {
				return err
			}
			user.BranchID = body.BranchID
			user.Branch = nil
		}
		if body.Active != nil {
			user.Active = *body.Active
		}
		if body.Password != nil {
			hash, err := auth.HashPassword(*body.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = &hash
		}

		// roles are managed by PUT /users/:id/roles
		if err := database.DB.Omit("Roles", "Branch").Save(user).Error; err != nil {
			return httpx.DBError(err, "user not found", "email already registered")
		}

		updated, err := auth.FindUserByID(database.DB, user.ID)
		if err != nil {
			return err
		}
		after := auth.NewUserResponse(updated)

		desc := fmt.Sprintf("Updated user %s", updated.Email)
		if body.Password != nil {
			desc += " (password reset)"
		}
		audit.Record(c, audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionUpdate,
			Description: desc,
			Before:      before,
			After:       after,
		})
		return httpx.OK(c, after)
	}
}

// DELETE /api/users/:id deactivates the account.
func DeleteUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c)
		if err != nil {
			return err
		}
		if isSelf(c, user.ID) {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot deactivate your own account")
		}

		before := auth.NewUserResponse(user)
		if err := database.DB.Model(user).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		after := auth.NewUserResponse(user)

		audit.Record(c, audit.Entry{
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Deactivated user %s", user.Email),
			Before:      before,
			After:       after,
		})
		return httpx.OK(c, after)
	}
}

// PUT /api/users/:id/roles replaces the role set.
func SetUserRolesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c)
		if err != nil {
			return err
		}

		var body SetRolesRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		roles, err := resolveRoles(body.Roles)
		if err != nil {
			return err
		}

		if isSelf(c, user.ID) && user.HasRole(models.RoleAdmin) && !containsRole(roles, models.RoleAdmin) {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot remove your own admin role")
		}

		before := user.RoleNames()
		if err := database.DB.Model(user).Association("Roles").Replace(roles); err != nil {
			return fmt.Errorf("replace roles: %w", err)
		}

		updated, err := auth.FindUserByID(database.DB, user.ID)
		if err != nil {
			return err
		}

		audit.Record(c, audit.Entry{
			EntityType:  "user_roles",
			EntityID:    user.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Set roles of %s to %s", updated.Email, strings.Join(updated.RoleNames(), ", ")),
			Before:      fiber.Map{"roles": before},
			After:       fiber.Map{"roles": updated.RoleNames()},
		})
		return httpx.OK(c, auth.NewUserResponse(updated))
	}
}

func loadUser(c *fiber.Ctx) (*models.User, error) {
	id, err := httpx.ParamID(c)
	if err != nil {
		return nil, err
	}
	user, err := auth.FindUserByID(database.DB, id)
	if err != nil {
		return nil, httpx.DBError(err, "user not found", "")
	}
	return user, nil
}

// resolveRoles loads roles by name; unknown names are a validation error.
func resolveRoles(names []string) ([]models.Role, error) {
	names = normalizeRoleNames(names)
	if len(names) == 0 {
		return nil, httpx.NewValidationError(map[string]string{"roles": "This field is required"})
	}

	var roles []models.Role
	if err := database.DB.Where("name IN ?", names).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	if len(roles) != len(names) {
		found := make(map[string]bool, len(roles))
		for _, r := range roles {
			found[string(r.Name)] = true
		}
		var missing []string
		for _, n := range names {
			if !found[n] {
				missing = append(missing, n)
			}
		}
		return nil, httpx.NewValidationError(map[string]string{
			"roles": "Unknown role: " + strings.Join(missing, ", "),
		})
	}
	return roles, nil
}

func checkBranch(id *uint) error {
	if id == nil {
		return nil
	}
	var count int64
	if err := database.DB.Model(&models.Branch{}).Where("id = ?", *id).Count(&count).Error; err != nil {
		return fmt.Errorf("check branch: %w", err)
	}
	if count == 0 {
		return httpx.NewValidationError(map[string]string{"branch_id": "Branch does not exist"})
	}
	return nil
}

func isSelf(c *fiber.Ctx, userID uint) bool {
	id, ok := identity.From(c)
	return ok && id.UserID == userID
}

func containsRole(roles []models.Role, name models.RoleName) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
