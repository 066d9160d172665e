package inventory

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"optica-backend/internal/audit"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxImportSize = 5 << 20

// ImportRow is one data row of a product sheet.
type ImportRow struct {
	Line        int
	SKU         string
	Name        string
	Description string
	Category    string
	Price       float64
	Stock       int
	Brand       string
	Color       string
	Branch      string
}

type ImportRowError struct {
	Row   int    `json:"row"`
	SKU   string `json:"sku,omitempty"`
	Error string `json:"error"`
}

type ImportResult struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Errors  []ImportRowError `json:"errors"`
}

var requiredColumns = []string{"sku", "name", "category"}

// ParseProductSheet reads the first sheet of an xlsx workbook. The first row is
// a header; columns are matched by name (sku, name, description, category,
// price, stock, brand, color, branch) in any order.
func ParseProductSheet(r io.Reader) ([]ImportRow, []ImportRowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("sheet is empty")
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", req)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		out     []ImportRow
		rowErrs []ImportRowError
	)
	for i, row := range rows[1:] {
		line := i + 2
		ir := ImportRow{
			Line:        line,
			SKU:         normalizeSKU(cell(row, "sku")),
			Name:        cell(row, "name"),
			Description: cell(row, "description"),
			Category:    strings.ToLower(cell(row, "category")),
			Brand:       cell(row, "brand"),
			Color:       cell(row, "color"),
			Branch:      cell(row, "branch"),
		}
		if ir.SKU == "" && ir.Name == "" {
			continue // blank line
		}

		if v := cell(row, "price"); v != "" {
			price, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
			if err != nil || price < 0 {
				rowErrs = append(rowErrs, ImportRowError{Row: line, SKU: ir.SKU, Error: "invalid price " + v})
				continue
			}
			ir.Price = price
		}
		if v := cell(row, "stock"); v != "" {
			stock, err := strconv.Atoi(v)
			if err != nil || stock < 0 {
				rowErrs = append(rowErrs, ImportRowError{Row: line, SKU: ir.SKU, Error: "invalid stock " + v})
				continue
			}
			ir.Stock = stock
		}

		switch {
		case ir.SKU == "":
			rowErrs = append(rowErrs, ImportRowError{Row: line, Error: "sku is required"})
			continue
		case ir.Name == "":
			rowErrs = append(rowErrs, ImportRowError{Row: line, SKU: ir.SKU, Error: "name is required"})
			continue
		case !models.ValidCategory(models.ProductCategory(ir.Category)):
			rowErrs = append(rowErrs, ImportRowError{Row: line, SKU: ir.SKU, Error: "invalid category " + ir.Category})
			continue
		}
		out = append(out, ir)
	}
	return out, rowErrs, nil
}

// POST /api/products/import (multipart, field "file")
func ImportProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if fileHeader.Size > maxImportSize {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file is too large")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are supported")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer file.Close()

		rows, rowErrs, err := ParseProductSheet(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result := ImportResult{Errors: rowErrs}
		lookup := newRefCache(database.DB)
		for _, row := range rows {
			if err := importRow(c, lookup, row, &result); err != nil {
				result.Errors = append(result.Errors, ImportRowError{Row: row.Line, SKU: row.SKU, Error: err.Error()})
			}
		}
		if result.Errors == nil {
			result.Errors = []ImportRowError{}
		}
		result.Failed = len(result.Errors)

		zap.L().Info("product import finished",
			zap.String("file", fileHeader.Filename),
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("failed", result.Failed),
		)
		return httpx.OK(c, result)
	}
}

func importRow(c *fiber.Ctx, refs *refCache, row ImportRow, result *ImportResult) error {
	brandID, err := refs.brand(row.Brand)
	if err != nil {
		return err
	}
	colorID, err := refs.color(row.Color)
	if err != nil {
		return err
	}
	branchID, err := refs.branch(row.Branch)
	if err != nil {
		return err
	}

	var existing models.Product
	err = database.DB.Where("sku = ?", row.SKU).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p := models.Product{
			SKU:         row.SKU,
			Name:        row.Name,
			Description: row.Description,
			Category:    models.ProductCategory(row.Category),
			Price:       row.Price,
			Stock:       row.Stock,
			BrandID:     brandID,
			ColorID:     colorID,
			BranchID:    branchID,
			Active:      true,
		}
		if err := database.DB.Create(&p).Error; err != nil {
			return fmt.Errorf("create: %w", err)
		}
		result.Created++
		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Imported product %s (%s)", p.Name, p.SKU),
			After:       p,
		})
	case err != nil:
		return err
	default:
		before := existing
		existing.Name = row.Name
		existing.Description = row.Description
		existing.Category = models.ProductCategory(row.Category)
		existing.Price = row.Price
		existing.Stock = row.Stock
		existing.BrandID = brandID
		existing.ColorID = colorID
		existing.BranchID = branchID
		existing.Active = true
		if err := database.DB.Save(&existing).Error; err != nil {
			return fmt.Errorf("update: %w", err)
		}
		result.Updated++
		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    existing.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Updated product %s (%s) from import", existing.Name, existing.SKU),
			Before:      before,
			After:       existing,
		})
	}
	return nil
}

// refCache resolves brand, color and branch names to ids during one import.
// Unknown brands and colors are created; branches must already exist.
type refCache struct {
	db       *gorm.DB
	brands   map[string]uint
	colors   map[string]uint
	branches map[string]uint
}

func newRefCache(db *gorm.DB) *refCache {
	return &refCache{
		db:       db,
		brands:   map[string]uint{},
		colors:   map[string]uint{},
		branches: map[string]uint{},
	}
}

func (r *refCache) brand(name string) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	key := strings.ToLower(name)
	if id, ok := r.brands[key]; ok {
		return &id, nil
	}
	var b models.Brand
	if err := r.db.Where("LOWER(name) = ?", key).Attrs(models.Brand{Name: name, Active: true}).FirstOrCreate(&b).Error; err != nil {
		return nil, fmt.Errorf("brand %s: %w", name, err)
	}
	r.brands[key] = b.ID
	return &b.ID, nil
}

func (r *refCache) color(name string) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	key := strings.ToLower(name)
	if id, ok := r.colors[key]; ok {
		return &id, nil
	}
	var col models.Color
	if err := r.db.Where("LOWER(name) = ?", key).Attrs(models.Color{Name: name, Active: true}).FirstOrCreate(&col).Error; err != nil {
		return nil, fmt.Errorf("color %s: %w", name, err)
	}
	r.colors[key] = col.ID
	return &col.ID, nil
}

func (r *refCache) branch(name string) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	key := strings.ToLower(name)
	if id, ok := r.branches[key]; ok {
		return &id, nil
	}
	var b models.Branch
	if err := r.db.Where("LOWER(name) = ?", key).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unknown branch %s", name)
		}
		return nil, err
	}
	r.branches[key] = b.ID
	return &b.ID, nil
}
