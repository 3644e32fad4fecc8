package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DailySalesFact is the one-row-per-day aggregate behind the dashboard's
// headline tiles and trend charts.
//
// Grain: (org_id, location_id, business_date).
// Invariant: net_sales = gross_sales - discounts - comps - voids - refunds.
// Both sides are recomputed from the same order set on every sync, so the
// equation holds by construction rather than by in-place adjustment.
//
// NOTE: This table is derived data and can be rebuilt from the provider's
// orders at any time. Rows are overwritten whole on resync, never added to.
type DailySalesFact struct {
	OrgId        string    `gorm:"primaryKey;size:64;index:idx_dsf_org_date,priority:1" json:"org_id"`
	LocationId   int       `gorm:"primaryKey" json:"location_id"`
	BusinessDate time.Time `gorm:"primaryKey;type:date;index:idx_dsf_org_date,priority:2" json:"business_date"`

	GrossSales decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gross_sales"`
	NetSales   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_sales"`
	Discounts  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discounts"`
	Comps      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"comps"`
	Voids      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"voids"`
	Refunds    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refunds"`

	TransactionCount int `gorm:"default:0" json:"transaction_count"`
	Covers           int `gorm:"default:0" json:"covers"`

	CashTotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_total"`
	CardTotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"card_total"`
	GiftCardTotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gift_card_total"`
	OtherTenderTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"other_tender_total"`
	TipTotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tip_total"`

	AverageCheck decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_check"`
	TipPercent   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tip_percent"`

	SyncedAt  time.Time `json:"synced_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertDailyFacts writes the day rows inside the caller's transaction.
// Existing rows are overwritten column for column: a resync recomputes the
// whole day from the order set, so adding to prior values would double count.
func UpsertDailyFacts(tx *gorm.DB, facts []DailySalesFact) error {

	for _, fact := range facts {
		if err := tx.Exec(`
			INSERT INTO daily_sales_facts (org_id, location_id, business_date,
				gross_sales, net_sales, discounts, comps, voids, refunds,
				transaction_count, covers,
				cash_total, card_total, gift_card_total, other_tender_total, tip_total,
				average_check, tip_percent, synced_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
			ON DUPLICATE KEY UPDATE
				gross_sales = VALUES(gross_sales),
				net_sales = VALUES(net_sales),
				discounts = VALUES(discounts),
				comps = VALUES(comps),
				voids = VALUES(voids),
				refunds = VALUES(refunds),
				transaction_count = VALUES(transaction_count),
				covers = VALUES(covers),
				cash_total = VALUES(cash_total),
				card_total = VALUES(card_total),
				gift_card_total = VALUES(gift_card_total),
				other_tender_total = VALUES(other_tender_total),
				tip_total = VALUES(tip_total),
				average_check = VALUES(average_check),
				tip_percent = VALUES(tip_percent),
				synced_at = VALUES(synced_at),
				updated_at = NOW()
		`,
			fact.OrgId, fact.LocationId, fact.BusinessDate,
			fact.GrossSales, fact.NetSales, fact.Discounts, fact.Comps, fact.Voids, fact.Refunds,
			fact.TransactionCount, fact.Covers,
			fact.CashTotal, fact.CardTotal, fact.GiftCardTotal, fact.OtherTenderTotal, fact.TipTotal,
			fact.AverageCheck, fact.TipPercent, fact.SyncedAt).Error; err != nil {
			return err
		}
	}

	return nil
}
