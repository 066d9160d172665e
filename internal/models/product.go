package models

import "time"

type ProductCategory string

const (
	CategoryFrame       ProductCategory = "frame"
	CategorySunglasses  ProductCategory = "sunglasses"
	CategoryLens        ProductCategory = "lens"
	CategoryContactLens ProductCategory = "contact_lens"
	CategoryAccessory   ProductCategory = "accessory"
)

var ProductCategories = []ProductCategory{
	CategoryFrame, CategorySunglasses, CategoryLens, CategoryContactLens, CategoryAccessory,
}

func ValidCategory(c ProductCategory) bool {
	for _, pc := range ProductCategories {
		if pc == c {
			return true
		}
	}
	return false
}

type Product struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SKU         string          `gorm:"column:sku;size:50;not null;uniqueIndex" json:"sku"`
	Name        string          `gorm:"size:150;not null" json:"name"`
	Description string          `gorm:"size:1000" json:"description"`
	Category    ProductCategory `gorm:"size:30;not null;index" json:"category"`
	Price       float64         `gorm:"not null;default:0" json:"price"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`

	BrandID  *uint   `gorm:"index" json:"brand_id"`
	Brand    *Brand  `json:"brand,omitempty"`
	ColorID  *uint   `gorm:"index" json:"color_id"`
	Color    *Color  `json:"color,omitempty"`
	BranchID *uint   `gorm:"index" json:"branch_id"`
	Branch   *Branch `json:"branch,omitempty"`

	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
