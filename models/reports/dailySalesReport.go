package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/utils"
	"github.com/shopspring/decimal"
)

type DailySalesResponse struct {
	LocationId       int             `json:"LocationId"`
	LocationName     *string         `json:"LocationName,omitempty"`
	BusinessDate     string          `json:"BusinessDate"`
	GrossSales       decimal.Decimal `json:"GrossSales"`
	NetSales         decimal.Decimal `json:"NetSales"`
	Discounts        decimal.Decimal `json:"Discounts"`
	Comps            decimal.Decimal `json:"Comps"`
	Voids            decimal.Decimal `json:"Voids"`
	Refunds          decimal.Decimal `json:"Refunds"`
	TransactionCount int             `json:"TransactionCount"`
	Covers           int             `json:"Covers"`
	TipTotal         decimal.Decimal `json:"TipTotal"`
	AverageCheck     decimal.Decimal `json:"AverageCheck"`
	TipPercent       decimal.Decimal `json:"TipPercent"`
}

func GetDailySalesReport(ctx context.Context, locationId *int, fromDate string, toDate string) ([]*DailySalesResponse, error) {

	sqlT := `
SELECT
    dsf.location_id,
    locations.name AS location_name,
    DATE_FORMAT(dsf.business_date, '%Y-%m-%d') AS business_date,
    dsf.gross_sales,
    dsf.net_sales,
    dsf.discounts,
    dsf.comps,
    dsf.voids,
    dsf.refunds,
    dsf.transaction_count,
    dsf.covers,
    dsf.tip_total,
    dsf.average_check,
    dsf.tip_percent
FROM
    daily_sales_facts dsf
        LEFT JOIN
    locations ON locations.id = dsf.location_id
WHERE
    dsf.org_id = @orgId
        AND dsf.business_date BETWEEN @fromDate AND @toDate
		{{- if .locationId }} AND dsf.location_id = @locationId {{- end }}
ORDER BY dsf.business_date , locations.name;
`

	start := time.Now()
	defer logSlowReport(ctx, "daily_sales_report", start, map[string]any{
		"from_date": fromDate,
		"to_date":   toDate,
	})

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}
	from, to, err := parseReportRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}

	if locationId != nil && *locationId != 0 {
		if err := utils.ValidateResourceId[models.Location](ctx, orgId, *locationId); err != nil {
			return nil, errors.New("location not found")
		}
	}

	var cacheKey string
	if reportCacheEnabled() {
		cacheKey = fmt.Sprintf("report:daily_sales:%s:%d:%s:%s", orgId, utils.DereferencePtr(locationId), from, to)
		var cached []*DailySalesResponse
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok && cached != nil {
			return cached, nil
		}
	}

	// generating sql from template
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"locationId": utils.DereferencePtr(locationId),
	})
	if err != nil {
		return nil, err
	}

	var records []*DailySalesResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"orgId":      orgId,
		"fromDate":   from.String(),
		"toDate":     to.String(),
		"locationId": locationId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	if cacheKey != "" {
		_ = cacheSet(cacheKey, records, reportCacheTTL())
	}

	return records, nil
}

// parseReportRange enforces the same strict date-only format the sync
// pipeline uses. Report ranges are calendar dates, never timezone shifted.
func parseReportRange(fromDate string, toDate string) (civil.Date, civil.Date, error) {
	from, err := civil.ParseDate(fromDate)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("invalid from date: %s", fromDate)
	}
	to, err := civil.ParseDate(toDate)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("invalid to date: %s", toDate)
	}
	if to.Before(from) {
		return civil.Date{}, civil.Date{}, errors.New("to date must not be before from date")
	}
	return from, to, nil
}

func (r DailySalesResponse) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.LocationName, ""),
		r.BusinessDate,
		r.GrossSales,
		r.NetSales,
		r.Discounts,
		r.Comps,
		r.Voids,
		r.Refunds,
		r.TransactionCount,
		r.Covers,
		r.TipTotal,
		r.AverageCheck,
		r.TipPercent,
	}
}

var dailySalesHeadings = []string{
	"Location", "Business Date", "Gross Sales", "Net Sales", "Discounts",
	"Comps", "Voids", "Refunds", "Transactions", "Covers", "Tips",
	"Average Check", "Tip %",
}
