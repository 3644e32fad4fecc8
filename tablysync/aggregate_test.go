package tablysync

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/shopspring/decimal"
)

// The canonical three-order day: A lands in lunch, B is fully voided with no
// tender and must vanish from both aggregates, C has an unmapped revenue
// center and no usable clock so it lands in unresolved.
func threeOrderDay() []tablyOrder {
	return []tablyOrder{
		{
			ID:              "order-a",
			BusinessDate:    "2025-01-15",
			RevenueCenterId: "rc-lunch",
			GuestCount:      2,
			Lines: []tablyOrderLine{
				{CategoryId: "cat-food", GrossAmount: number("40")},
			},
			Tenders: []tablyTender{
				{Type: "card", Amount: number("40"), TipAmount: number("6")},
			},
		},
		{
			ID:              "order-b",
			BusinessDate:    "2025-01-15",
			RevenueCenterId: "rc-dinner",
			Voided:          true,
			GuestCount:      2,
			Lines: []tablyOrderLine{
				{CategoryId: "cat-food", GrossAmount: number("60")},
			},
		},
		{
			ID:              "order-c",
			BusinessDate:    "2025-01-15",
			RevenueCenterId: "rc-nobody-mapped",
			GuestCount:      1,
			Lines: []tablyOrderLine{
				{CategoryId: "cat-wine", GrossAmount: number("25")},
			},
			Tenders: []tablyTender{
				{Type: "cash", Amount: number("25")},
			},
		},
	}
}

func classifyAll(t *testing.T, orders []tablyOrder, counters *QualityCounters) []*classifiedOrder {
	t.Helper()
	mappings := testMappings()
	classified := make([]*classifiedOrder, 0, len(orders))
	for _, order := range orders {
		result, err := classifyOrder(order, mappings, counters)
		if err != nil {
			t.Fatalf("classifyOrder(%s) error: %v", order.ID, err)
		}
		if result != nil {
			classified = append(classified, result)
		}
	}
	return classified
}

func TestAggregate_ThreeOrderScenario(t *testing.T) {
	var counters QualityCounters
	classified := classifyAll(t, threeOrderDay(), &counters)

	if len(classified) != 2 {
		t.Fatalf("expected 2 retained orders, got %d", len(classified))
	}
	if counters.Excluded != 1 {
		t.Fatalf("expected 1 excluded order, got %d", counters.Excluded)
	}
	if counters.DaypartUnresolved != 1 {
		t.Fatalf("expected 1 unresolved order, got %d", counters.DaypartUnresolved)
	}

	dailyFacts := buildDailyFacts("org-1", 7, aggregateDaily(classified), time.Now())
	if len(dailyFacts) != 1 {
		t.Fatalf("expected 1 daily row, got %d", len(dailyFacts))
	}
	day := dailyFacts[0]
	if !day.NetSales.Equal(decimal.NewFromInt(65)) {
		t.Fatalf("expected daily net 65, got %s", day.NetSales)
	}
	if day.TransactionCount != 2 {
		t.Fatalf("expected 2 transactions, got %d", day.TransactionCount)
	}
	if day.BusinessDate.Format("2006-01-02") != "2025-01-15" {
		t.Fatalf("unexpected business date %s", day.BusinessDate)
	}

	daypartFacts := buildDaypartFacts("org-1", 7, aggregateByDaypart(classified))
	if len(daypartFacts) != 2 {
		t.Fatalf("expected 2 daypart rows (lunch, unresolved), got %d", len(daypartFacts))
	}
	for _, fact := range daypartFacts {
		switch fact.Daypart {
		case models.DaypartLunch:
			if !fact.NetSales.Equal(decimal.NewFromInt(40)) || fact.Covers != 2 {
				t.Fatalf("lunch row expected net 40 / 2 covers, got %s / %d", fact.NetSales, fact.Covers)
			}
		case models.DaypartUnresolved:
			if !fact.NetSales.Equal(decimal.NewFromInt(25)) || fact.Covers != 1 {
				t.Fatalf("unresolved row expected net 25 / 1 cover, got %s / %d", fact.NetSales, fact.Covers)
			}
		case models.DaypartDinner:
			t.Fatalf("voided order must not produce a dinner row")
		default:
			t.Fatalf("unexpected daypart row %s", fact.Daypart)
		}
	}
}

// randomDay builds a deterministic pseudo-random order for the conservation
// and commutativity checks.
func randomOrder(r *rand.Rand, i int) tablyOrder {
	centers := []string{"rc-lunch", "rc-dinner", "rc-late", "rc-unmapped"}
	categories := []string{"cat-food", "cat-wine", "cat-unmapped"}
	tenderTypes := []string{"cash", "card", "gift_card", "house_account"}

	gross := r.Intn(200) + 1
	return tablyOrder{
		ID:              fmt.Sprintf("order-%d", i),
		BusinessDate:    fmt.Sprintf("2025-02-%02d", r.Intn(5)+10),
		RevenueCenterId: centers[r.Intn(len(centers))],
		OpenedAt:        fmt.Sprintf("%02d:30:00", r.Intn(24)),
		GuestCount:      r.Intn(6),
		DiscountAmount:  number(fmt.Sprintf("%d", r.Intn(5))),
		VoidAmount:      number(fmt.Sprintf("%d", r.Intn(3))),
		Lines: []tablyOrderLine{
			{CategoryId: categories[r.Intn(len(categories))], GrossAmount: number(fmt.Sprintf("%d", gross))},
			{CategoryId: categories[r.Intn(len(categories))], GrossAmount: number(fmt.Sprintf("%d.25", r.Intn(40)))},
		},
		Tenders: []tablyTender{
			{Type: tenderTypes[r.Intn(len(tenderTypes))], Amount: number(fmt.Sprintf("%d", gross)), TipAmount: number(fmt.Sprintf("%d", r.Intn(10)))},
		},
	}
}

func TestAggregate_DaypartNetReconcilesWithDailyNet(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	orders := make([]tablyOrder, 0, 60)
	for i := 0; i < 60; i++ {
		orders = append(orders, randomOrder(r, i))
	}

	var counters QualityCounters
	classified := classifyAll(t, orders, &counters)

	daypartTotals := aggregateByDaypart(classified)
	dailyTotals := aggregateDaily(classified)

	perDate := make(map[civil.Date]decimal.Decimal)
	for key, agg := range daypartTotals {
		perDate[key.Date] = perDate[key.Date].Add(agg.Net)
	}

	if len(perDate) != len(dailyTotals) {
		t.Fatalf("daypart dates %d != daily dates %d", len(perDate), len(dailyTotals))
	}
	for date, daily := range dailyTotals {
		if !perDate[date].Equal(daily.Net) {
			t.Fatalf("date %s: daypart net sum %s != daily net %s", date, perDate[date], daily.Net)
		}
	}
}

func TestAggregate_ShuffleInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	orders := make([]tablyOrder, 0, 40)
	for i := 0; i < 40; i++ {
		orders = append(orders, randomOrder(r, i))
	}

	var counters QualityCounters
	baselineOrders := classifyAll(t, orders, &counters)
	baselineDaypart := buildDaypartFacts("org-1", 3, aggregateByDaypart(baselineOrders))
	baselineDaily := buildDailyFacts("org-1", 3, aggregateDaily(baselineOrders), time.Unix(0, 0))

	for trial := 0; trial < 5; trial++ {
		shuffled := make([]*classifiedOrder, len(baselineOrders))
		copy(shuffled, baselineOrders)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		daypartFacts := buildDaypartFacts("org-1", 3, aggregateByDaypart(shuffled))
		if len(daypartFacts) != len(baselineDaypart) {
			t.Fatalf("trial %d: daypart row count changed: %d != %d", trial, len(daypartFacts), len(baselineDaypart))
		}
		for i, fact := range daypartFacts {
			base := baselineDaypart[i]
			if !fact.BusinessDate.Equal(base.BusinessDate) || fact.Daypart != base.Daypart {
				t.Fatalf("trial %d row %d: key moved: %s/%s != %s/%s", trial, i,
					fact.BusinessDate, fact.Daypart, base.BusinessDate, base.Daypart)
			}
			if !fact.NetSales.Equal(base.NetSales) || !fact.GrossSales.Equal(base.GrossSales) ||
				fact.OrderCount != base.OrderCount || fact.Covers != base.Covers {
				t.Fatalf("trial %d row %d: totals changed under shuffle", trial, i)
			}
		}

		dailyFacts := buildDailyFacts("org-1", 3, aggregateDaily(shuffled), time.Unix(0, 0))
		if len(dailyFacts) != len(baselineDaily) {
			t.Fatalf("trial %d: daily row count changed", trial)
		}
		for i, fact := range dailyFacts {
			base := baselineDaily[i]
			if !fact.NetSales.Equal(base.NetSales) || fact.TransactionCount != base.TransactionCount ||
				!fact.CardTotal.Equal(base.CardTotal) || !fact.TipTotal.Equal(base.TipTotal) {
				t.Fatalf("trial %d daily row %d: totals changed under shuffle", trial, i)
			}
		}
	}
}

func TestBuildDaypartFacts_BucketColumnsAndOrder(t *testing.T) {
	jan15 := civil.Date{Year: 2025, Month: time.January, Day: 15}
	jan16 := civil.Date{Year: 2025, Month: time.January, Day: 16}
	totals := map[daypartKey]*daypartTotals{
		{Date: jan16, Daypart: models.DaypartBreakfast}: {
			Gross: decimal.NewFromInt(10), Net: decimal.NewFromInt(10), Orders: 1,
			Buckets: map[models.RevenueBucket]decimal.Decimal{
				models.RevenueBucketFood: decimal.NewFromInt(10),
			},
		},
		{Date: jan15, Daypart: models.DaypartDinner}: {
			Gross: decimal.NewFromInt(90), Net: decimal.NewFromInt(85), Orders: 3,
			Buckets: map[models.RevenueBucket]decimal.Decimal{
				models.RevenueBucketFood:   decimal.NewFromInt(50),
				models.RevenueBucketWine:   decimal.NewFromInt(30),
				models.RevenueBucketLiquor: decimal.NewFromInt(10),
			},
		},
		{Date: jan15, Daypart: models.DaypartLunch}: {
			Gross: decimal.NewFromInt(20), Net: decimal.NewFromInt(20), Orders: 1,
			Buckets: map[models.RevenueBucket]decimal.Decimal{
				models.RevenueBucketOther: decimal.NewFromInt(20),
			},
		},
	}

	facts := buildDaypartFacts("org-1", 5, totals)
	if len(facts) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(facts))
	}

	if facts[0].Daypart != models.DaypartLunch || facts[1].Daypart != models.DaypartDinner {
		t.Fatalf("expected jan15 lunch then dinner first, got %s then %s", facts[0].Daypart, facts[1].Daypart)
	}
	if facts[2].Daypart != models.DaypartBreakfast {
		t.Fatalf("expected jan16 breakfast last, got %s", facts[2].Daypart)
	}

	dinner := facts[1]
	if !dinner.FoodSales.Equal(decimal.NewFromInt(50)) ||
		!dinner.WineSales.Equal(decimal.NewFromInt(30)) ||
		!dinner.LiquorSales.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("bucket columns wrong: food=%s wine=%s liquor=%s",
			dinner.FoodSales, dinner.WineSales, dinner.LiquorSales)
	}
	bucketSum := dinner.FoodSales.Add(dinner.WineSales).Add(dinner.BeerSales).
		Add(dinner.LiquorSales).Add(dinner.NonAlcoholicSales).Add(dinner.OtherSales)
	if !bucketSum.Equal(dinner.GrossSales) {
		t.Fatalf("bucket columns %s must sum to gross %s", bucketSum, dinner.GrossSales)
	}
}

func TestBuildDailyFacts_ZeroGuards(t *testing.T) {
	date := civil.Date{Year: 2025, Month: time.March, Day: 1}
	totals := map[civil.Date]*dailyTotals{
		date: {
			Tips: decimal.NewFromInt(5),
		},
	}

	facts := buildDailyFacts("org-1", 1, totals, time.Now())
	if len(facts) != 1 {
		t.Fatalf("expected 1 row, got %d", len(facts))
	}
	if !facts[0].AverageCheck.IsZero() {
		t.Fatalf("zero transactions must give average check 0, got %s", facts[0].AverageCheck)
	}
	if !facts[0].TipPercent.IsZero() {
		t.Fatalf("zero net must give tip percent 0, got %s", facts[0].TipPercent)
	}
}

func TestBuildDailyFacts_Ratios(t *testing.T) {
	date := civil.Date{Year: 2025, Month: time.March, Day: 2}
	totals := map[civil.Date]*dailyTotals{
		date: {
			Net:    decimal.NewFromInt(200),
			Orders: 8,
			Tips:   decimal.NewFromInt(30),
		},
	}

	facts := buildDailyFacts("org-1", 1, totals, time.Now())
	if !facts[0].AverageCheck.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected average check 25, got %s", facts[0].AverageCheck)
	}
	if !facts[0].TipPercent.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected tip percent 15, got %s", facts[0].TipPercent)
	}
}
