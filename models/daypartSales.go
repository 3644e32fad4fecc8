package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DaypartSalesFact is the per-daypart aggregate table behind the dashboard's
// daypart breakdown widgets.
//
// Grain: (org_id, location_id, business_date, daypart).
// Money columns are whole-order amounts folded into the order's daypart; the
// six *_sales columns split the same gross by revenue bucket, so
// food+wine+beer+liquor+non_alcoholic+other = gross_sales per row.
//
// NOTE: This table is derived data and is rebuilt from the provider's orders
// on every sync. Rows for a synced (location, date) are deleted and
// reinserted rather than updated: a remap can move a revenue center from one
// daypart to another, and an in-place update would leave the old daypart row
// behind.
type DaypartSalesFact struct {
	OrgId        string    `gorm:"primaryKey;size:64;index:idx_dpf_org_date,priority:1" json:"org_id"`
	LocationId   int       `gorm:"primaryKey" json:"location_id"`
	BusinessDate time.Time `gorm:"primaryKey;type:date;index:idx_dpf_org_date,priority:2" json:"business_date"`
	Daypart      Daypart   `gorm:"primaryKey;size:20" json:"daypart"`

	GrossSales decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gross_sales"`
	NetSales   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_sales"`
	Discounts  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discounts"`
	Voids      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"voids"`
	OrderCount int             `gorm:"default:0" json:"order_count"`
	Covers     int             `gorm:"default:0" json:"covers"`

	FoodSales         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"food_sales"`
	WineSales         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wine_sales"`
	BeerSales         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"beer_sales"`
	LiquorSales       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"liquor_sales"`
	NonAlcoholicSales decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"non_alcoholic_sales"`
	OtherSales        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"other_sales"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReplaceDaypartFacts swaps out every daypart row for the given dates inside
// the caller's transaction. facts may cover fewer dates than dates does: a
// date whose orders were all excluded simply ends up with no rows.
func ReplaceDaypartFacts(tx *gorm.DB, orgId string, locationId int, dates []time.Time, facts []DaypartSalesFact) error {

	if len(dates) == 0 {
		return nil
	}

	if err := tx.
		Where("org_id = ? AND location_id = ? AND business_date IN ?", orgId, locationId, dates).
		Delete(&DaypartSalesFact{}).Error; err != nil {
		return err
	}

	if len(facts) == 0 {
		return nil
	}
	return tx.CreateInBatches(&facts, 200).Error
}
