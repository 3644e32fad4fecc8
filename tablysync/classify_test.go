package tablysync

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/shopspring/decimal"
)

func testMappings() *models.MappingSet {
	set := models.NewMappingSet()
	set.Categories["cat-food"] = models.RevenueBucketFood
	set.Categories["cat-wine"] = models.RevenueBucketWine
	set.RevenueCenters["rc-lunch"] = models.DaypartLunch
	set.RevenueCenters["rc-dinner"] = models.DaypartDinner
	set.RevenueCenters["rc-late"] = models.DaypartLateNight
	set.ServiceTypes["st-dinein"] = models.ChannelDineIn
	return set
}

func number(s string) json.Number {
	return json.Number(s)
}

func TestClassifyOrder_TrainingAndTestExcluded(t *testing.T) {
	mappings := testMappings()
	for _, order := range []tablyOrder{
		{ID: "o1", BusinessDate: "2025-01-15", IsTraining: true},
		{ID: "o2", BusinessDate: "2025-01-15", IsTest: true},
	} {
		var counters QualityCounters
		classified, err := classifyOrder(order, mappings, &counters)
		if err != nil {
			t.Fatalf("classifyOrder(%s) error: %v", order.ID, err)
		}
		if classified != nil {
			t.Fatalf("classifyOrder(%s) expected exclusion, got %+v", order.ID, classified)
		}
		if counters.Excluded != 1 {
			t.Fatalf("classifyOrder(%s) expected excluded counter 1, got %d", order.ID, counters.Excluded)
		}
	}
}

func TestClassifyOrder_FullyVoidedZeroTenderExcluded(t *testing.T) {
	order := tablyOrder{
		ID:           "o3",
		BusinessDate: "2025-01-15",
		Voided:       true,
		GuestCount:   2,
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("60")},
		},
		Tenders: []tablyTender{
			{Type: "cash", Amount: number("0")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err != nil {
		t.Fatalf("classifyOrder error: %v", err)
	}
	if classified != nil {
		t.Fatalf("expected exclusion, got %+v", classified)
	}
	if counters.Excluded != 1 {
		t.Fatalf("expected excluded counter 1, got %d", counters.Excluded)
	}
	if counters.Voided != 0 {
		t.Fatalf("excluded order must not also count as voided, got %d", counters.Voided)
	}
}

func TestClassifyOrder_PartialVoidRetained(t *testing.T) {
	order := tablyOrder{
		ID:              "o4",
		BusinessDate:    "2025-01-15",
		RevenueCenterId: "rc-lunch",
		Voided:          true,
		GuestCount:      2,
		VoidAmount:      number("15"),
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("35")},
		},
		Tenders: []tablyTender{
			{Type: "cash", Amount: number("20")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err != nil {
		t.Fatalf("classifyOrder error: %v", err)
	}
	if classified == nil {
		t.Fatalf("expected retained order, got exclusion")
	}

	if !classified.Net.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected net 20 (35 gross - 15 void), got %s", classified.Net)
	}
	if !classified.Voids.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected voids 15, got %s", classified.Voids)
	}
	if counters.Voided != 1 {
		t.Fatalf("expected voided counter 1, got %d", counters.Voided)
	}
	if counters.Excluded != 0 {
		t.Fatalf("expected excluded counter 0, got %d", counters.Excluded)
	}
}

func TestClassifyOrder_RefundReducesNet(t *testing.T) {
	order := tablyOrder{
		ID:           "o5",
		BusinessDate: "2025-01-15",
		RefundAmount: number("10"),
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("50")},
		},
		Tenders: []tablyTender{
			{Type: "card", Amount: number("40")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err != nil {
		t.Fatalf("classifyOrder error: %v", err)
	}
	if !classified.Net.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected net 40, got %s", classified.Net)
	}
	if counters.Refunded != 1 {
		t.Fatalf("expected refunded counter 1, got %d", counters.Refunded)
	}
	if counters.Voided != 0 {
		t.Fatalf("refund must not count as void, got %d", counters.Voided)
	}
}

func TestClassifyOrder_MalformedDate(t *testing.T) {
	order := tablyOrder{
		ID:           "o6",
		BusinessDate: "not-a-date",
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("10")},
		},
		Tenders: []tablyTender{
			{Type: "cash", Amount: number("10")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err == nil {
		t.Fatalf("expected malformed-date error, got %+v", classified)
	}
	if !errors.Is(err, ErrMalformedDate) {
		t.Fatalf("expected ErrMalformedDate, got %v", err)
	}
	if counters.Excluded != 1 {
		t.Fatalf("expected excluded counter 1, got %d", counters.Excluded)
	}
}

func TestClassifyOrder_DaypartResolution(t *testing.T) {
	cases := []struct {
		name            string
		revenueCenterId string
		openedAt        string
		expected        models.Daypart
		unresolved      int
	}{
		{"mapping hint wins over clock", "RC-Lunch", "2025-01-15T19:00:00", models.DaypartLunch, 0},
		{"late night only via mapping", "rc-late", "2025-01-15T09:00:00", models.DaypartLateNight, 0},
		{"heuristic breakfast", "rc-unmapped", "2025-01-15T08:30:00", models.DaypartBreakfast, 0},
		{"heuristic lunch lower bound", "rc-unmapped", "2025-01-15T11:00:00", models.DaypartLunch, 0},
		{"heuristic lunch upper bound", "rc-unmapped", "2025-01-15T15:59:00", models.DaypartLunch, 0},
		{"heuristic dinner", "rc-unmapped", "2025-01-15T16:00:00", models.DaypartDinner, 0},
		{"zone suffix ignored", "rc-unmapped", "2025-01-15T19:00:00Z", models.DaypartDinner, 0},
		{"offset suffix ignored", "rc-unmapped", "2025-01-15T08:00:00+09:00", models.DaypartBreakfast, 0},
		{"bare clock accepted", "rc-unmapped", "09:15:00", models.DaypartBreakfast, 0},
		{"no clock unresolved", "rc-unmapped", "", models.DaypartUnresolved, 1},
		{"garbage clock unresolved", "rc-unmapped", "noonish", models.DaypartUnresolved, 1},
	}

	for _, tc := range cases {
		order := tablyOrder{
			ID:              "o7",
			BusinessDate:    "2025-01-15",
			RevenueCenterId: tc.revenueCenterId,
			OpenedAt:        tc.openedAt,
			Lines: []tablyOrderLine{
				{CategoryId: "cat-food", GrossAmount: number("10")},
			},
			Tenders: []tablyTender{
				{Type: "cash", Amount: number("10")},
			},
		}

		var counters QualityCounters
		classified, err := classifyOrder(order, testMappings(), &counters)
		if err != nil {
			t.Fatalf("%s: classifyOrder error: %v", tc.name, err)
		}
		if classified.Daypart != tc.expected {
			t.Fatalf("%s: expected daypart %s, got %s", tc.name, tc.expected, classified.Daypart)
		}
		if counters.DaypartUnresolved != tc.unresolved {
			t.Fatalf("%s: expected unresolved counter %d, got %d", tc.name, tc.unresolved, counters.DaypartUnresolved)
		}
	}
}

func TestClassifyOrder_BucketConservation(t *testing.T) {
	order := tablyOrder{
		ID:              "o8",
		BusinessDate:    "2025-01-15",
		RevenueCenterId: "rc-dinner",
		DiscountAmount:  number("3"),
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("42.50"), DiscountAmount: number("2.50")},
			{CategoryId: "cat-wine", GrossAmount: number("28")},
			{CategoryId: "cat-never-mapped", GrossAmount: number("9.75")},
		},
		Tenders: []tablyTender{
			{Type: "card", Amount: number("74.75")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err != nil {
		t.Fatalf("classifyOrder error: %v", err)
	}

	expectedGross := decimal.NewFromFloat(80.25)
	if !classified.Gross.Equal(expectedGross) {
		t.Fatalf("expected gross %s, got %s", expectedGross, classified.Gross)
	}

	bucketSum := decimal.Zero
	for _, amount := range classified.BucketSales {
		bucketSum = bucketSum.Add(amount)
	}
	if !bucketSum.Equal(classified.Gross) {
		t.Fatalf("bucket sum %s must equal gross %s", bucketSum, classified.Gross)
	}

	if !classified.BucketSales[models.RevenueBucketOther].Equal(decimal.NewFromFloat(9.75)) {
		t.Fatalf("unmapped category expected in other bucket, got %s", classified.BucketSales[models.RevenueBucketOther])
	}
	if !classified.Discounts.Equal(decimal.NewFromFloat(5.50)) {
		t.Fatalf("expected discounts 5.50 (line + order), got %s", classified.Discounts)
	}
	if !classified.Net.Equal(decimal.NewFromFloat(74.75)) {
		t.Fatalf("expected net 74.75, got %s", classified.Net)
	}
}

func TestClassifyOrder_TenderMix(t *testing.T) {
	order := tablyOrder{
		ID:            "o9",
		BusinessDate:  "2025-01-15",
		ServiceTypeId: "ST-DineIn",
		GuestCount:    4,
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("100")},
		},
		Tenders: []tablyTender{
			{Type: "cash", Amount: number("20"), TipAmount: number("2")},
			{Type: "credit_card", Amount: number("50"), TipAmount: number("8")},
			{Type: "Card", Amount: number("10")},
			{Type: "giftcard", Amount: number("15")},
			{Type: "house_account", Amount: number("5")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err != nil {
		t.Fatalf("classifyOrder error: %v", err)
	}

	tenders := classified.Tenders
	checks := []struct {
		name     string
		got      decimal.Decimal
		expected int64
	}{
		{"cash", tenders.Cash, 20},
		{"card", tenders.Card, 60},
		{"gift card", tenders.GiftCard, 15},
		{"other", tenders.Other, 5},
		{"tips", tenders.Tips, 10},
	}
	for _, check := range checks {
		if !check.got.Equal(decimal.NewFromInt(check.expected)) {
			t.Fatalf("expected %s total %d, got %s", check.name, check.expected, check.got)
		}
	}
	if !tenders.total().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("tender total must exclude tips: expected 100, got %s", tenders.total())
	}

	if classified.Channel != models.ChannelDineIn {
		t.Fatalf("expected dine_in channel, got %s", classified.Channel)
	}
	if classified.Covers != 4 {
		t.Fatalf("expected 4 covers, got %d", classified.Covers)
	}
	if classified.BusinessDate != (civil.Date{Year: 2025, Month: time.January, Day: 15}) {
		t.Fatalf("unexpected business date %s", classified.BusinessDate)
	}
}

func TestClassifyOrder_UnknownChannelHasNoCounter(t *testing.T) {
	order := tablyOrder{
		ID:              "o10",
		BusinessDate:    "2025-01-15",
		RevenueCenterId: "rc-lunch",
		ServiceTypeId:   "st-unmapped",
		Lines: []tablyOrderLine{
			{CategoryId: "cat-food", GrossAmount: number("10")},
		},
		Tenders: []tablyTender{
			{Type: "cash", Amount: number("10")},
		},
	}

	var counters QualityCounters
	classified, err := classifyOrder(order, testMappings(), &counters)
	if err != nil {
		t.Fatalf("classifyOrder error: %v", err)
	}
	if classified.Channel != models.ChannelUnknown {
		t.Fatalf("expected unknown channel, got %s", classified.Channel)
	}
	if counters != (QualityCounters{}) {
		t.Fatalf("unknown channel must not move any counter, got %+v", counters)
	}
}
