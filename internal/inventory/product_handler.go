package inventory

import (
	"fmt"
	"strings"
	"time"

	"optica-backend/internal/audit"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"
	"optica-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Ref struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type ProductResponse struct {
	ID          uint                   `json:"id"`
	SKU         string                 `json:"sku"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    models.ProductCategory `json:"category"`
	Price       float64                `json:"price"`
	Stock       int                    `json:"stock"`
	BrandID     *uint                  `json:"brand_id"`
	Brand       *Ref                   `json:"brand,omitempty"`
	ColorID     *uint                  `json:"color_id"`
	Color       *ColorResponse         `json:"color,omitempty"`
	BranchID    *uint                  `json:"branch_id"`
	Branch      *Ref                   `json:"branch,omitempty"`
	Active      bool                   `json:"active"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func NewProductResponse(p *models.Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Stock:       p.Stock,
		BrandID:     p.BrandID,
		ColorID:     p.ColorID,
		BranchID:    p.BranchID,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Brand != nil {
		resp.Brand = &Ref{ID: p.Brand.ID, Name: p.Brand.Name}
	}
	if p.Color != nil {
		cr := NewColorResponse(*p.Color)
		resp.Color = &cr
	}
	if p.Branch != nil {
		resp.Branch = &Ref{ID: p.Branch.ID, Name: p.Branch.Name}
	}
	return resp
}

const categoryOneOf = "frame sunglasses lens contact_lens accessory"

type CreateProductRequest struct {
	SKU         string  `json:"sku" validate:"required,max=50"`
	Name        string  `json:"name" validate:"required,max=150"`
	Description string  `json:"description" validate:"max=1000"`
	Category    string  `json:"category" validate:"required,oneof=frame sunglasses lens contact_lens accessory"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	BrandID     *uint   `json:"brand_id"`
	ColorID     *uint   `json:"color_id"`
	BranchID    *uint   `json:"branch_id"`
}

// UpdateProductRequest only touches the fields that are sent. A reference id
// of 0 clears it.
type UpdateProductRequest struct {
	SKU         *string  `json:"sku" validate:"omitempty,min=1,max=50"`
	Name        *string  `json:"name" validate:"omitempty,min=1,max=150"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	Category    *string  `json:"category" validate:"omitempty,oneof=frame sunglasses lens contact_lens accessory"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0"`
	BrandID     *uint    `json:"brand_id"`
	ColorID     *uint    `json:"color_id"`
	BranchID    *uint    `json:"branch_id"`
	Active      *bool    `json:"active"`
}

var productSorts = map[string]string{
	"name":        "name asc",
	"-name":       "name desc",
	"price":       "price asc",
	"-price":      "price desc",
	"stock":       "stock asc",
	"-stock":      "stock desc",
	"created_at":  "created_at asc",
	"-created_at": "created_at desc",
}

// staff see inactive products when they ask for them
var productManagers = []models.RoleName{models.RoleAdmin, models.RoleVendor}

// GET /api/products?q=&category=&brand_id=&color_id=&branch_id=&include_inactive=&sort=&page=&per_page=
func ListProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Product{})

		if !identity.IncludeInactive(c, productManagers...) {
			dbq = dbq.Where("active = ?", true)
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			dbq = dbq.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
		}
		if cat := c.Query("category"); cat != "" {
			if !models.ValidCategory(models.ProductCategory(cat)) {
				return httpx.NewValidationError(map[string]string{
					"category": "Must be one of: " + strings.ReplaceAll(categoryOneOf, " ", ", "),
				})
			}
			dbq = dbq.Where("category = ?", cat)
		}
		for _, key := range []string{"brand_id", "color_id", "branch_id"} {
			v, ok, err := httpx.QueryUint(c, key)
			if err != nil {
				return err
			}
			if ok {
				dbq = dbq.Where(key+" = ?", v)
			}
		}

		order := "name asc"
		if s := c.Query("sort"); s != "" {
			o, ok := productSorts[s]
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "invalid sort")
			}
			order = o
		}
		dbq = dbq.Session(&gorm.Session{})

		page := httpx.ParsePage(c)
		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fmt.Errorf("count products: %w", err)
		}

		var products []models.Product
		if err := dbq.Preload("Brand").Preload("Color").Preload("Branch").
			Scopes(page.Scope).
			Order(order + ", id asc").
			Find(&products).Error; err != nil {
			return fmt.Errorf("list products: %w", err)
		}

		items := make([]ProductResponse, 0, len(products))
		for i := range products {
			items = append(items, NewProductResponse(&products[i]))
		}
		return httpx.OK(c, httpx.NewPaginated(items, page, total))
	}
}

// GET /api/products/:id
func GetProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadProduct(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, NewProductResponse(p))
	}
}

// POST /api/products
func CreateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		body.SKU = normalizeSKU(body.SKU)
		body.Name = strings.TrimSpace(body.Name)
		body.Category = strings.ToLower(strings.TrimSpace(body.Category))
		if err := validation.Struct(&body); err != nil {
			return err
		}
		if err := checkRefs(database.DB, body.BrandID, body.ColorID, body.BranchID); err != nil {
			return err
		}

		p := models.Product{
			SKU:         body.SKU,
			Name:        body.Name,
			Description: strings.TrimSpace(body.Description),
			Category:    models.ProductCategory(body.Category),
			Price:       body.Price,
			Stock:       body.Stock,
			BrandID:     body.BrandID,
			ColorID:     body.ColorID,
			BranchID:    body.BranchID,
			Active:      true,
		}
		if err := database.DB.Create(&p).Error; err != nil {
			return httpx.DBError(err, "product not found", "a product with this SKU already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Created product %s (%s)", p.Name, p.SKU),
			After:       p,
		})

		created, err := findProduct(database.DB, p.ID)
		if err != nil {
			return err
		}
		return httpx.Created(c, NewProductResponse(created))
	}
}

// PUT /api/products/:id
func UpdateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadProduct(c)
		if err != nil {
			return err
		}

		var body UpdateProductRequest
		if err := httpx.BodyParser(c, &body); err != nil {
			return err
		}
		if body.SKU != nil {
			*body.SKU = normalizeSKU(*body.SKU)
		}
		if body.Name != nil {
			*body.Name = strings.TrimSpace(*body.Name)
		}
		if body.Category != nil {
			*body.Category = strings.ToLower(strings.TrimSpace(*body.Category))
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}
		if err := checkRefs(database.DB, nonZero(body.BrandID), nonZero(body.ColorID), nonZero(body.BranchID)); err != nil {
			return err
		}

		before := *p
		before.Brand, before.Color, before.Branch = nil, nil, nil

		if body.SKU != nil {
			p.SKU = *body.SKU
		}
		if body.Name != nil {
			p.Name = *body.Name
		}
		if body.Description != nil {
			p.Description = strings.TrimSpace(*body.Description)
		}
		if body.Category != nil {
			p.Category = models.ProductCategory(*body.Category)
		}
		if body.Price != nil {
			p.Price = *body.Price
		}
		if body.Stock != nil {
			p.Stock = *body.Stock
		}
		if body.BrandID != nil {
			p.BrandID = nonZero(body.BrandID)
		}
		if body.ColorID != nil {
			p.ColorID = nonZero(body.ColorID)
		}
		if body.BranchID != nil {
			p.BranchID = nonZero(body.BranchID)
		}
		if body.Active != nil {
			p.Active = *body.Active
		}
		p.Brand, p.Color, p.Branch = nil, nil, nil

		if err := database.DB.Save(p).Error; err != nil {
			return httpx.DBError(err, "product not found", "a product with this SKU already exists")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Updated product %s (%s)", p.Name, p.SKU),
			Before:      before,
			After:       p,
		})

		updated, err := findProduct(database.DB, p.ID)
		if err != nil {
			return err
		}
		return httpx.OK(c, NewProductResponse(updated))
	}
}

// DELETE /api/products/:id deactivates the product.
func DeleteProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadProduct(c)
		if err != nil {
			return err
		}

		if err := database.DB.Model(&models.Product{}).Where("id = ?", p.ID).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate product: %w", err)
		}
		before := *p
		p.Active = false

		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Deactivated product %s (%s)", p.Name, p.SKU),
			Before:      before,
			After:       p,
		})
		return httpx.OK(c, NewProductResponse(p))
	}
}

func findProduct(db *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	if err := db.Preload("Brand").Preload("Color").Preload("Branch").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// loadProduct resolves :id. Inactive products are hidden from callers who
// cannot manage them.
func loadProduct(c *fiber.Ctx) (*models.Product, error) {
	id, err := httpx.ParamID(c)
	if err != nil {
		return nil, err
	}
	p, err := findProduct(database.DB, id)
	if err != nil {
		return nil, httpx.DBError(err, "product not found", "")
	}
	if !p.Active && !canManage(c) {
		return nil, fiber.NewError(fiber.StatusNotFound, "product not found")
	}
	return p, nil
}

func canManage(c *fiber.Ctx) bool {
	id, ok := identity.From(c)
	return ok && id.HasAnyRole(productManagers...)
}

func normalizeSKU(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func nonZero(id *uint) *uint {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

// checkRefs verifies that the referenced brand, color and branch exist.
func checkRefs(db *gorm.DB, brandID, colorID, branchID *uint) error {
	fields := map[string]string{}
	check := func(field string, model any, id *uint) error {
		if id == nil {
			return nil
		}
		var count int64
		if err := db.Model(model).Where("id = ?", *id).Count(&count).Error; err != nil {
			return fmt.Errorf("check %s: %w", field, err)
		}
		if count == 0 {
			fields[field] = "Referenced record does not exist"
		}
		return nil
	}

	if err := check("brand_id", &models.Brand{}, brandID); err != nil {
		return err
	}
	if err := check("color_id", &models.Color{}, colorID); err != nil {
		return err
	}
	if err := check("branch_id", &models.Branch{}, branchID); err != nil {
		return err
	}
	if len(fields) > 0 {
		return httpx.NewValidationError(fields)
	}
	return nil
}
