package tablysync

import (
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/shopspring/decimal"
)

// QualityCounters tracks per-run classification anomalies. They never change
// the aggregates; a rising unresolved count is the operator's signal that a
// mapping table has gone stale.
type QualityCounters struct {
	Excluded          int `json:"excluded"`
	Voided            int `json:"voided"`
	Refunded          int `json:"refunded"`
	DaypartUnresolved int `json:"daypart_unresolved"`
}

type tenderTotals struct {
	Cash     decimal.Decimal
	Card     decimal.Decimal
	GiftCard decimal.Decimal
	Other    decimal.Decimal
	Tips     decimal.Decimal
}

func (t tenderTotals) total() decimal.Decimal {
	return t.Cash.Add(t.Card).Add(t.GiftCard).Add(t.Other)
}

// classifiedOrder is the pipeline's working shape between classification and
// aggregation. All money is whole-order; BucketSales splits the same gross by
// revenue bucket, so the bucket sum always equals Gross.
type classifiedOrder struct {
	BusinessDate civil.Date
	Daypart      models.Daypart
	Channel      models.Channel

	Gross     decimal.Decimal
	Net       decimal.Decimal
	Discounts decimal.Decimal
	Comps     decimal.Decimal
	Voids     decimal.Decimal
	Refunds   decimal.Decimal

	Covers      int
	BucketSales map[models.RevenueBucket]decimal.Decimal
	Tenders     tenderTotals
}

// classifyOrder turns one raw order into its classified form. A (nil, nil)
// return means the order is excluded from both aggregates; the excluded
// counter has already been bumped. A non-nil error wraps ErrMalformedDate and
// the caller decides how to record it.
func classifyOrder(order tablyOrder, mappings *models.MappingSet, counters *QualityCounters) (*classifiedOrder, error) {

	tenders := sumTenders(order.Tenders)

	if order.IsTraining || order.IsTest {
		counters.Excluded++
		return nil, nil
	}
	if order.Voided && tenders.total().IsZero() {
		counters.Excluded++
		return nil, nil
	}

	businessDate, err := resolveBusinessDate(order.BusinessDate)
	if err != nil {
		counters.Excluded++
		return nil, err
	}

	voidAmount := decimalFromNumber(order.VoidAmount)
	refundAmount := decimalFromNumber(order.RefundAmount)
	compAmount := decimalFromNumber(order.CompAmount)

	if order.Voided || voidAmount.IsPositive() {
		counters.Voided++
	}
	if refundAmount.IsPositive() {
		counters.Refunded++
	}

	gross := decimal.Zero
	discounts := decimalFromNumber(order.DiscountAmount)
	buckets := make(map[models.RevenueBucket]decimal.Decimal)
	for _, line := range order.Lines {
		lineGross := decimalFromNumber(line.GrossAmount)
		gross = gross.Add(lineGross)
		discounts = discounts.Add(decimalFromNumber(line.DiscountAmount))
		bucket := mappings.BucketFor(line.CategoryId)
		buckets[bucket] = buckets[bucket].Add(lineGross)
	}

	net := gross.Sub(discounts).Sub(compAmount).Sub(voidAmount).Sub(refundAmount)

	daypart := resolveDaypart(order, mappings)
	if daypart == models.DaypartUnresolved {
		counters.DaypartUnresolved++
	}

	return &classifiedOrder{
		BusinessDate: businessDate,
		Daypart:      daypart,
		Channel:      mappings.ChannelFor(order.ServiceTypeId),
		Gross:        gross,
		Net:          net,
		Discounts:    discounts,
		Comps:        compAmount,
		Voids:        voidAmount,
		Refunds:      refundAmount,
		Covers:       order.GuestCount,
		BucketSales:  buckets,
		Tenders:      tenders,
	}, nil
}

// resolveDaypart tries the revenue-center mapping first, then falls back to a
// wall-clock heuristic on the opened-at time. Late night never comes out of
// the heuristic: only an explicit mapping can place an order there.
func resolveDaypart(order tablyOrder, mappings *models.MappingSet) models.Daypart {
	if daypart, ok := mappings.DaypartFor(order.RevenueCenterId); ok {
		return daypart
	}
	openedAt, ok := parseWallClock(order.OpenedAt)
	if !ok {
		return models.DaypartUnresolved
	}
	switch {
	case openedAt.Hour() < 11:
		return models.DaypartBreakfast
	case openedAt.Hour() < 16:
		return models.DaypartLunch
	default:
		return models.DaypartDinner
	}
}

var wallClockLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"15:04:05",
	"15:04",
}

// parseWallClock reads the local time of day off a provider timestamp. Any
// zone suffix is cut, not applied: the daypart is defined by the clock on the
// restaurant's wall, not by the instant in UTC.
func parseWallClock(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 19 {
		raw = raw[:19]
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sumTenders(tenders []tablyTender) tenderTotals {
	var totals tenderTotals
	for _, tender := range tenders {
		amount := decimalFromNumber(tender.Amount)
		switch strings.ToLower(strings.TrimSpace(tender.Type)) {
		case string(models.TenderMethodCash):
			totals.Cash = totals.Cash.Add(amount)
		case string(models.TenderMethodCard), "credit", "credit_card", "debit", "debit_card":
			totals.Card = totals.Card.Add(amount)
		case string(models.TenderMethodGiftCard), "giftcard":
			totals.GiftCard = totals.GiftCard.Add(amount)
		default:
			totals.Other = totals.Other.Add(amount)
		}
		totals.Tips = totals.Tips.Add(decimalFromNumber(tender.TipAmount))
	}
	return totals
}

func decimalFromNumber(n json.Number) decimal.Decimal {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
