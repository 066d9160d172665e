package audit

import (
	"errors"
	"fmt"
	"time"

	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"
	maxExport  = 10000
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      *uint              `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IP          string             `json:"ip"`
	UserAgent   string             `json:"user_agent"`
	BeforeData  string             `json:"before_data"`
	AfterData   string             `json:"after_data"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *uint              `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

func NewAuditLogResponse(log models.AuditLog) AuditLogResponse {
	var undoneAt *string
	if log.UndoneAt != nil {
		s := log.UndoneAt.Format(timeLayout)
		undoneAt = &s
	}
	return AuditLogResponse{
		ID:          log.ID,
		CreatedAt:   log.CreatedAt.Format(timeLayout),
		UserID:      log.UserID,
		UserName:    log.UserName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      log.Action,
		Description: log.Description,
		IP:          log.IP,
		UserAgent:   log.UserAgent,
		BeforeData:  log.BeforeData,
		AfterData:   log.AfterData,
		IsUndone:    log.IsUndone,
		UndoneBy:    log.UndoneBy,
		UndoneAt:    undoneAt,
	}
}

// filteredQuery applies the shared list/export filters:
// entity_type, entity_id, user_id, action, from, to (YYYY-MM-DD, inclusive).
func filteredQuery(c *fiber.Ctx) (*gorm.DB, error) {
	dbq := database.DB.Model(&models.AuditLog{})

	if v := c.Query("entity_type"); v != "" {
		dbq = dbq.Where("entity_type = ?", v)
	}
	if v := c.Query("action"); v != "" {
		dbq = dbq.Where("action = ?", v)
	}

	entityID, ok, err := httpx.QueryUint(c, "entity_id")
	if err != nil {
		return nil, err
	}
	if ok {
		dbq = dbq.Where("entity_id = ?", entityID)
	}

	userID, ok, err := httpx.QueryUint(c, "user_id")
	if err != nil {
		return nil, err
	}
	if ok {
		dbq = dbq.Where("user_id = ?", userID)
	}

	if v := c.Query("from"); v != "" {
		from, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		}
		dbq = dbq.Where("created_at >= ?", from)
	}
	if v := c.Query("to"); v != "" {
		to, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		}
		dbq = dbq.Where("created_at < ?", to.AddDate(0, 0, 1))
	}

	// count and find run as separate statements
	return dbq.Session(&gorm.Session{}), nil
}

// GET /api/audit-logs?entity_type=product&entity_id=1&user_id=2&action=update&from=2024-01-01&to=2024-01-31
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq, err := filteredQuery(c)
		if err != nil {
			return err
		}
		page := httpx.ParsePage(c)

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return fmt.Errorf("count audit logs: %w", err)
		}

		var logs []models.AuditLog
		if err := dbq.Scopes(page.Scope).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
			return fmt.Errorf("list audit logs: %w", err)
		}

		items := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			items = append(items, NewAuditLogResponse(log))
		}
		return httpx.OK(c, httpx.NewPaginated(items, page, total))
	}
}

var exportHeader = []any{
	"ID", "Date", "User ID", "User", "Action", "Entity", "Entity ID", "Description", "IP", "Undone",
}

// GET /api/audit-logs/export (same filters as the list)
func ExportAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq, err := filteredQuery(c)
		if err != nil {
			return err
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(maxExport).Find(&logs).Error; err != nil {
			return fmt.Errorf("export audit logs: %w", err)
		}

		f, err := BuildWorkbook(logs)
		if err != nil {
			return err
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}

		filename := fmt.Sprintf("audit-logs-%s.xlsx", time.Now().Format("20060102-150405"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
		return c.Send(buf.Bytes())
	}
}

// BuildWorkbook renders logs into a single-sheet workbook.
func BuildWorkbook(logs []models.AuditLog) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Audit"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		f.Close()
		return nil, err
	}

	for i, log := range logs {
		var userID any
		if log.UserID != nil {
			userID = *log.UserID
		}
		row := []any{
			log.ID,
			log.CreatedAt.Format(timeLayout),
			userID,
			log.UserName,
			string(log.Action),
			log.EntityType,
			log.EntityID,
			log.Description,
			log.IP,
			log.IsUndone,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logID, err := httpx.ParamID(c)
		if err != nil {
			return err
		}

		undo, err := UndoLog(database.DB, logID, ActorFromRequest(c))
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fiber.NewError(fiber.StatusNotFound, "audit log or entity not found")
		case errors.Is(err, ErrAlreadyUndone), errors.Is(err, ErrNotUndoable):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		default:
			return err
		}

		return httpx.OK(c, NewAuditLogResponse(*undo))
	}
}
