package auth

import (
	"fmt"
	"strings"
	"time"

	"optica-backend/internal/models"

	"gorm.io/gorm"
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindUserByID loads a user with roles and branch.
func FindUserByID(db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.Preload("Roles").Preload("Branch").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := db.Preload("Roles").Preload("Branch").
		Where("email = ?", NormalizeEmail(email)).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EmailTaken reports whether another user already uses email.
func EmailTaken(db *gorm.DB, email string, exceptID uint) (bool, error) {
	var count int64
	q := db.Model(&models.User{}).Where("email = ?", NormalizeEmail(email))
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return count > 0, nil
}

func FindRole(db *gorm.DB, name models.RoleName) (*models.Role, error) {
	var role models.Role
	if err := db.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, fmt.Errorf("load role %s: %w", name, err)
	}
	return &role, nil
}

func touchLastLogin(db *gorm.DB, user *models.User) error {
	now := time.Now()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("last_login_at", now).Error; err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &now
	return nil
}
