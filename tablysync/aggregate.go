package tablysync

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/shopspring/decimal"
)

type daypartKey struct {
	Date    civil.Date
	Daypart models.Daypart
}

type daypartTotals struct {
	Gross     decimal.Decimal
	Net       decimal.Decimal
	Discounts decimal.Decimal
	Voids     decimal.Decimal
	Orders    int
	Covers    int
	Buckets   map[models.RevenueBucket]decimal.Decimal
}

type dailyTotals struct {
	Gross     decimal.Decimal
	Net       decimal.Decimal
	Discounts decimal.Decimal
	Comps     decimal.Decimal
	Voids     decimal.Decimal
	Refunds   decimal.Decimal
	Orders    int
	Covers    int

	Cash        decimal.Decimal
	Card        decimal.Decimal
	GiftCard    decimal.Decimal
	OtherTender decimal.Decimal
	Tips        decimal.Decimal
}

// aggregateByDaypart folds classified orders into (date, daypart) totals.
// The fold is purely additive, so input order never changes the result.
func aggregateByDaypart(orders []*classifiedOrder) map[daypartKey]*daypartTotals {
	totals := make(map[daypartKey]*daypartTotals)
	for _, order := range orders {
		key := daypartKey{Date: order.BusinessDate, Daypart: order.Daypart}
		agg, ok := totals[key]
		if !ok {
			agg = &daypartTotals{Buckets: make(map[models.RevenueBucket]decimal.Decimal)}
			totals[key] = agg
		}
		agg.Gross = agg.Gross.Add(order.Gross)
		agg.Net = agg.Net.Add(order.Net)
		agg.Discounts = agg.Discounts.Add(order.Discounts)
		agg.Voids = agg.Voids.Add(order.Voids)
		agg.Orders++
		agg.Covers += order.Covers
		for bucket, amount := range order.BucketSales {
			agg.Buckets[bucket] = agg.Buckets[bucket].Add(amount)
		}
	}
	return totals
}

// aggregateDaily folds the same orders keyed by date only. Dayparts collapse
// here, so per date the daypart net totals and the daily net total always
// reconcile.
func aggregateDaily(orders []*classifiedOrder) map[civil.Date]*dailyTotals {
	totals := make(map[civil.Date]*dailyTotals)
	for _, order := range orders {
		agg, ok := totals[order.BusinessDate]
		if !ok {
			agg = &dailyTotals{}
			totals[order.BusinessDate] = agg
		}
		agg.Gross = agg.Gross.Add(order.Gross)
		agg.Net = agg.Net.Add(order.Net)
		agg.Discounts = agg.Discounts.Add(order.Discounts)
		agg.Comps = agg.Comps.Add(order.Comps)
		agg.Voids = agg.Voids.Add(order.Voids)
		agg.Refunds = agg.Refunds.Add(order.Refunds)
		agg.Orders++
		agg.Covers += order.Covers

		agg.Cash = agg.Cash.Add(order.Tenders.Cash)
		agg.Card = agg.Card.Add(order.Tenders.Card)
		agg.GiftCard = agg.GiftCard.Add(order.Tenders.GiftCard)
		agg.OtherTender = agg.OtherTender.Add(order.Tenders.Other)
		agg.Tips = agg.Tips.Add(order.Tenders.Tips)
	}
	return totals
}

var daypartRank = map[models.Daypart]int{
	models.DaypartBreakfast:  0,
	models.DaypartLunch:      1,
	models.DaypartDinner:     2,
	models.DaypartLateNight:  3,
	models.DaypartUnresolved: 4,
}

// buildDaypartFacts materializes the daypart totals into rows ordered by date
// then service period, so inserts are deterministic run to run.
func buildDaypartFacts(orgId string, locationId int, totals map[daypartKey]*daypartTotals) []models.DaypartSalesFact {
	keys := make([]daypartKey, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date.Before(keys[j].Date)
		}
		return daypartRank[keys[i].Daypart] < daypartRank[keys[j].Daypart]
	})

	facts := make([]models.DaypartSalesFact, 0, len(keys))
	for _, key := range keys {
		agg := totals[key]
		facts = append(facts, models.DaypartSalesFact{
			OrgId:        orgId,
			LocationId:   locationId,
			BusinessDate: civilToTime(key.Date),
			Daypart:      key.Daypart,

			GrossSales: agg.Gross,
			NetSales:   agg.Net,
			Discounts:  agg.Discounts,
			Voids:      agg.Voids,
			OrderCount: agg.Orders,
			Covers:     agg.Covers,

			FoodSales:         agg.Buckets[models.RevenueBucketFood],
			WineSales:         agg.Buckets[models.RevenueBucketWine],
			BeerSales:         agg.Buckets[models.RevenueBucketBeer],
			LiquorSales:       agg.Buckets[models.RevenueBucketLiquor],
			NonAlcoholicSales: agg.Buckets[models.RevenueBucketNonAlcoholic],
			OtherSales:        agg.Buckets[models.RevenueBucketOther],
		})
	}
	return facts
}

// buildDailyFacts materializes the daily totals. Ratios are computed here,
// never during the fold: average check = net / transactions, tip percent =
// tips / net x 100, both 0 when the denominator is zero.
func buildDailyFacts(orgId string, locationId int, totals map[civil.Date]*dailyTotals, syncedAt time.Time) []models.DailySalesFact {
	dates := sortedDates(totals)

	facts := make([]models.DailySalesFact, 0, len(dates))
	for _, date := range dates {
		agg := totals[date]

		averageCheck := decimal.Zero
		if agg.Orders > 0 {
			averageCheck = agg.Net.Div(decimal.NewFromInt(int64(agg.Orders))).Round(4)
		}
		tipPercent := decimal.Zero
		if !agg.Net.IsZero() {
			tipPercent = agg.Tips.Div(agg.Net).Mul(decimal.NewFromInt(100)).Round(4)
		}

		facts = append(facts, models.DailySalesFact{
			OrgId:        orgId,
			LocationId:   locationId,
			BusinessDate: civilToTime(date),

			GrossSales: agg.Gross,
			NetSales:   agg.Net,
			Discounts:  agg.Discounts,
			Comps:      agg.Comps,
			Voids:      agg.Voids,
			Refunds:    agg.Refunds,

			TransactionCount: agg.Orders,
			Covers:           agg.Covers,

			CashTotal:        agg.Cash,
			CardTotal:        agg.Card,
			GiftCardTotal:    agg.GiftCard,
			OtherTenderTotal: agg.OtherTender,
			TipTotal:         agg.Tips,

			AverageCheck: averageCheck,
			TipPercent:   tipPercent,

			SyncedAt: syncedAt,
		})
	}
	return facts
}

func sortedDates(totals map[civil.Date]*dailyTotals) []civil.Date {
	dates := make([]civil.Date, 0, len(totals))
	for date := range totals {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}
