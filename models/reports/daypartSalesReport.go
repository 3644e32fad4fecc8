package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/utils"
	"github.com/shopspring/decimal"
)

type DaypartSalesResponse struct {
	LocationId        int             `json:"LocationId"`
	LocationName      *string         `json:"LocationName,omitempty"`
	BusinessDate      string          `json:"BusinessDate"`
	Daypart           string          `json:"Daypart"`
	GrossSales        decimal.Decimal `json:"GrossSales"`
	NetSales          decimal.Decimal `json:"NetSales"`
	Discounts         decimal.Decimal `json:"Discounts"`
	Voids             decimal.Decimal `json:"Voids"`
	OrderCount        int             `json:"OrderCount"`
	Covers            int             `json:"Covers"`
	FoodSales         decimal.Decimal `json:"FoodSales"`
	WineSales         decimal.Decimal `json:"WineSales"`
	BeerSales         decimal.Decimal `json:"BeerSales"`
	LiquorSales       decimal.Decimal `json:"LiquorSales"`
	NonAlcoholicSales decimal.Decimal `json:"NonAlcoholicSales"`
	OtherSales        decimal.Decimal `json:"OtherSales"`
}

func GetDaypartSalesReport(ctx context.Context, locationId *int, fromDate string, toDate string) ([]*DaypartSalesResponse, error) {

	sqlT := `
SELECT
    dpf.location_id,
    locations.name AS location_name,
    DATE_FORMAT(dpf.business_date, '%Y-%m-%d') AS business_date,
    dpf.daypart,
    dpf.gross_sales,
    dpf.net_sales,
    dpf.discounts,
    dpf.voids,
    dpf.order_count,
    dpf.covers,
    dpf.food_sales,
    dpf.wine_sales,
    dpf.beer_sales,
    dpf.liquor_sales,
    dpf.non_alcoholic_sales,
    dpf.other_sales
FROM
    daypart_sales_facts dpf
        LEFT JOIN
    locations ON locations.id = dpf.location_id
WHERE
    dpf.org_id = @orgId
        AND dpf.business_date BETWEEN @fromDate AND @toDate
		{{- if .locationId }} AND dpf.location_id = @locationId {{- end }}
ORDER BY dpf.business_date , locations.name,
    FIELD(dpf.daypart, 'breakfast', 'lunch', 'dinner', 'late_night', 'unresolved');
`

	start := time.Now()
	defer logSlowReport(ctx, "daypart_sales_report", start, map[string]any{
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
		cacheKey = fmt.Sprintf("report:daypart_sales:%s:%d:%s:%s", orgId, utils.DereferencePtr(locationId), from, to)
		var cached []*DaypartSalesResponse
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

	var records []*DaypartSalesResponse
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

func (r DaypartSalesResponse) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.LocationName, ""),
		r.BusinessDate,
		r.Daypart,
		r.GrossSales,
		r.NetSales,
		r.Discounts,
		r.Voids,
		r.OrderCount,
		r.Covers,
		r.FoodSales,
		r.WineSales,
		r.BeerSales,
		r.LiquorSales,
		r.NonAlcoholicSales,
		r.OtherSales,
	}
}

var daypartSalesHeadings = []string{
	"Location", "Business Date", "Daypart", "Gross Sales", "Net Sales",
	"Discounts", "Voids", "Orders", "Covers", "Food", "Wine", "Beer",
	"Liquor", "Non-Alcoholic", "Other",
}
