package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"optica-backend/internal/database"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadyUndone = errors.New("audit entry already undone")
	ErrNotUndoable   = errors.New("audit entry cannot be undone")
)

// Actor is who performed an audited action and from where.
type Actor struct {
	UserID    *uint
	Name      string
	IP        string
	UserAgent string
}

type Entry struct {
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func WriteLog(db *gorm.DB, actor Actor, e Entry) (*models.AuditLog, error) {
	log := models.AuditLog{
		UserID:      actor.UserID,
		UserName:    actor.Name,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Description: truncate(e.Description, 255),
		IP:          actor.IP,
		UserAgent:   truncate(actor.UserAgent, 255),
		BeforeData:  snapshot(e.Before),
		AfterData:   snapshot(e.After),
	}
	if err := db.Create(&log).Error; err != nil {
		return nil, fmt.Errorf("write audit log: %w", err)
	}
	return &log, nil
}

// ActorFromRequest builds the actor from the authenticated caller, if any.
func ActorFromRequest(c *fiber.Ctx) Actor {
	a := Actor{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
	if id, ok := identity.From(c); ok {
		uid := id.UserID
		a.UserID = &uid
		a.Name = id.Name
	}
	return a
}

// Record writes e for the current request. Failures are logged and never
// fail the request.
func Record(c *fiber.Ctx, e Entry) {
	RecordAs(c, ActorFromRequest(c), e)
}

// RecordAs is Record with an explicit actor, for requests that are not yet
// authenticated (login, registration, OAuth callbacks).
func RecordAs(c *fiber.Ctx, actor Actor, e Entry) {
	if actor.IP == "" {
		actor.IP = c.IP()
	}
	if actor.UserAgent == "" {
		actor.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	if _, err := WriteLog(database.DB, actor, e); err != nil {
		zap.L().Error("audit log write failed",
			zap.Error(err),
			zap.String("entity_type", e.EntityType),
			zap.Uint("entity_id", e.EntityID),
			zap.String("action", string(e.Action)),
		)
	}
}

// ActorFromUser is the actor for a user who is not yet in the request locals.
func ActorFromUser(c *fiber.Ctx, u *models.User) Actor {
	uid := u.ID
	return Actor{UserID: &uid, Name: u.Name, IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}

// UndoLog reverts the change recorded by logID and records an undo entry.
func UndoLog(db *gorm.DB, logID uint, actor Actor) (*models.AuditLog, error) {
	var undo *models.AuditLog
	err := db.Transaction(func(tx *gorm.DB) error {
		var log models.AuditLog
		if err := tx.First(&log, logID).Error; err != nil {
			return err
		}
		if log.IsUndone {
			return ErrAlreadyUndone
		}

		entity, ok := entityFor(log.EntityType)
		if !ok {
			return ErrNotUndoable
		}

		switch log.Action {
		case models.AuditActionCreate:
			if err := setActive(tx, entity, log.EntityID, false); err != nil {
				return err
			}
		case models.AuditActionDelete:
			if err := setActive(tx, entity, log.EntityID, true); err != nil {
				return err
			}
		case models.AuditActionUpdate:
			if err := restore(tx, entity, log.EntityID, log.BeforeData); err != nil {
				return err
			}
		default:
			return ErrNotUndoable
		}

		now := time.Now()
		log.IsUndone = true
		log.UndoneBy = actor.UserID
		log.UndoneAt = &now
		if err := tx.Save(&log).Error; err != nil {
			return fmt.Errorf("mark audit log undone: %w", err)
		}

		var err error
		undo, err = WriteLog(tx, actor, Entry{
			EntityType:  log.EntityType,
			EntityID:    log.EntityID,
			Action:      models.AuditActionUndo,
			Description: "Undone: " + log.Description,
			Before:      json.RawMessage(log.AfterData),
			After:       json.RawMessage(log.BeforeData),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return undo, nil
}

// undoable entities and the columns an update-undo restores
var restorable = map[string][]string{
	"product": {"sku", "name", "description", "category", "price", "stock", "brand_id", "color_id", "branch_id", "active"},
	"branch":  {"name", "address", "city", "phone", "email", "active"},
	"color":   {"name", "hex_code", "active"},
	"brand":   {"name", "description", "active"},
	"user":    {"name", "email", "phone", "branch_id", "active"},
}

func entityFor(entityType string) (any, bool) {
	switch entityType {
	case "product":
		return &models.Product{}, true
	case "branch":
		return &models.Branch{}, true
	case "color":
		return &models.Color{}, true
	case "brand":
		return &models.Brand{}, true
	case "user":
		return &models.User{}, true
	default:
		return nil, false
	}
}

func setActive(tx *gorm.DB, entity any, id uint, active bool) error {
	res := tx.Model(entity).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func restore(tx *gorm.DB, entity any, id uint, before string) error {
	if before == "" || before == "null" {
		return ErrNotUndoable
	}

	var columns []string
	switch entity.(type) {
	case *models.Product:
		columns = restorable["product"]
	case *models.Branch:
		columns = restorable["branch"]
	case *models.Color:
		columns = restorable["color"]
	case *models.Brand:
		columns = restorable["brand"]
	case *models.User:
		columns = restorable["user"]
	}

	// snapshots may be response views; only the restorable keys are decoded
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(before), &fields); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	kept := make(map[string]json.RawMessage, len(columns))
	for _, col := range columns {
		if v, ok := fields[col]; ok {
			kept[col] = v
		}
	}
	if len(kept) == 0 {
		return ErrNotUndoable
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	present := make([]string, 0, len(kept))
	for _, col := range columns {
		if _, ok := kept[col]; ok {
			present = append(present, col)
		}
	}

	res := tx.Model(entity).Where("id = ?", id).Select(present).Updates(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
