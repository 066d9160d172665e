package dashboard

import (
	"fmt"

	"optica-backend/internal/audit"
	"optica-backend/internal/auth"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/identity"
	"optica-backend/internal/inventory"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	recentActivityLimit = 10
	listLimit           = 50
)

type AdminSummary struct {
	Role           models.RoleName          `json:"role"`
	Users          int64                    `json:"users"`
	ActiveUsers    int64                    `json:"active_users"`
	Products       int64                    `json:"products"`
	ActiveProducts int64                    `json:"active_products"`
	Branches       int64                    `json:"branches"`
	RecentActivity []audit.AuditLogResponse `json:"recent_activity"`
}

type CategoryCount struct {
	Category models.ProductCategory `json:"category"`
	Count    int64                  `json:"count"`
}

type VendorSummary struct {
	Role              models.RoleName             `json:"role"`
	ActiveProducts    int64                       `json:"active_products"`
	LowStockThreshold int                         `json:"low_stock_threshold"`
	LowStock          []inventory.ProductResponse `json:"low_stock"`
	ByCategory        []CategoryCount             `json:"by_category"`
}

type OptometristSummary struct {
	Role    models.RoleName             `json:"role"`
	Clients int64                       `json:"clients"`
	Lenses  []inventory.ProductResponse `json:"lenses"`
}

type ClientSummary struct {
	Role    models.RoleName   `json:"role"`
	Profile auth.UserResponse `json:"profile"`
}

// GET /api/dashboard returns the summary for the caller's most privileged role.
func DashboardHandler(lowStockThreshold int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identity.Require(c)
		if err != nil {
			return err
		}

		var data any
		switch id.PrimaryRole() {
		case models.RoleAdmin:
			data, err = AdminDashboard(database.DB)
		case models.RoleVendor:
			data, err = VendorDashboard(database.DB, lowStockThreshold)
		case models.RoleOptometrist:
			data, err = OptometristDashboard(database.DB)
		case models.RoleClient:
			data, err = ClientDashboard(database.DB, id.UserID)
		default:
			return fiber.NewError(fiber.StatusForbidden, "no dashboard for your roles")
		}
		if err != nil {
			return httpx.DBError(err, "user not found", "")
		}
		return httpx.OK(c, data)
	}
}

func AdminDashboard(db *gorm.DB) (*AdminSummary, error) {
	s := &AdminSummary{Role: models.RoleAdmin}

	counts := []struct {
		model any
		where string
		dest  *int64
	}{
		{&models.User{}, "", &s.Users},
		{&models.User{}, "active = ?", &s.ActiveUsers},
		{&models.Product{}, "", &s.Products},
		{&models.Product{}, "active = ?", &s.ActiveProducts},
		{&models.Branch{}, "active = ?", &s.Branches},
	}
	for _, cnt := range counts {
		q := db.Model(cnt.model)
		if cnt.where != "" {
			q = q.Where(cnt.where, true)
		}
		if err := q.Count(cnt.dest).Error; err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	var logs []models.AuditLog
	if err := db.Order("created_at DESC, id DESC").Limit(recentActivityLimit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	s.RecentActivity = make([]audit.AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		s.RecentActivity = append(s.RecentActivity, audit.NewAuditLogResponse(l))
	}
	return s, nil
}

func VendorDashboard(db *gorm.DB, lowStockThreshold int) (*VendorSummary, error) {
	s := &VendorSummary{Role: models.RoleVendor, LowStockThreshold: lowStockThreshold}

	active := db.Model(&models.Product{}).Where("active = ?", true).Session(&gorm.Session{})
	if err := active.Count(&s.ActiveProducts).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	var low []models.Product
	if err := active.Preload("Brand").Preload("Color").Preload("Branch").
		Where("stock <= ?", lowStockThreshold).
		Order("stock asc, name asc").
		Limit(listLimit).
		Find(&low).Error; err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	s.LowStock = toResponses(low)

	if err := active.Select("category, COUNT(*) AS count").
		Group("category").
		Order("category asc").
		Scan(&s.ByCategory).Error; err != nil {
		return nil, fmt.Errorf("products by category: %w", err)
	}
	if s.ByCategory == nil {
		s.ByCategory = []CategoryCount{}
	}
	return s, nil
}

func OptometristDashboard(db *gorm.DB) (*OptometristSummary, error) {
	s := &OptometristSummary{Role: models.RoleOptometrist}

	clients := db.Table("user_roles").
		Select("user_roles.user_id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ?", models.RoleClient)
	if err := db.Model(&models.User{}).
		Where("active = ? AND id IN (?)", true, clients).
		Count(&s.Clients).Error; err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}

	var lenses []models.Product
	if err := db.Preload("Brand").Preload("Color").Preload("Branch").
		Where("active = ? AND stock > 0 AND category IN ?", true,
			[]models.ProductCategory{models.CategoryLens, models.CategoryContactLens}).
		Order("name asc").
		Limit(listLimit).
		Find(&lenses).Error; err != nil {
		return nil, fmt.Errorf("lenses: %w", err)
	}
	s.Lenses = toResponses(lenses)
	return s, nil
}

func ClientDashboard(db *gorm.DB, userID uint) (*ClientSummary, error) {
	user, err := auth.FindUserByID(db, userID)
	if err != nil {
		return nil, err
	}
	return &ClientSummary{Role: models.RoleClient, Profile: auth.NewUserResponse(user)}, nil
}

func toResponses(ps []models.Product) []inventory.ProductResponse {
	out := make([]inventory.ProductResponse, 0, len(ps))
	for i := range ps {
		out = append(out, inventory.NewProductResponse(&ps[i]))
	}
	return out
}
