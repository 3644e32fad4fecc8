package tablysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/models"
)

// NOTE: These tests are intentionally DB-free. The fetcher, store and
// recorder seams are faked so they validate the orchestration semantics:
// month isolation, progress monotonicity, per-order error handling.
// Full DB integration tests need MySQL and belong in a separate environment.

type fakeFetcher struct {
	ordersByMonth map[string][]json.RawMessage
	failMonth     string
	calls         []dateWindow
}

func (f *fakeFetcher) fetchOrders(ctx context.Context, window dateWindow, onPage func(page, fetched int)) ([]json.RawMessage, error) {
	f.calls = append(f.calls, window)
	month := monthLabel(window)
	if month == f.failMonth {
		return nil, errors.New("tably api error 503: upstream unavailable")
	}
	orders := f.ordersByMonth[month]
	if onPage != nil {
		onPage(1, len(orders))
	}
	return orders, nil
}

type persistCall struct {
	dates        []time.Time
	daypartFacts []models.DaypartSalesFact
	dailyFacts   []models.DailySalesFact
}

type fakeStore struct {
	calls   []persistCall
	failure error
}

func (s *fakeStore) persistFacts(ctx context.Context, orgId string, locationId int, dates []time.Time,
	daypartFacts []models.DaypartSalesFact, dailyFacts []models.DailySalesFact) error {
	if s.failure != nil {
		return s.failure
	}
	s.calls = append(s.calls, persistCall{dates: dates, daypartFacts: daypartFacts, dailyFacts: dailyFacts})
	return nil
}

type fakeRecorder struct {
	phases     []string
	errorCodes []string
}

func (r *fakeRecorder) setPhase(ctx context.Context, phase string) {
	r.phases = append(r.phases, phase)
}

func (r *fakeRecorder) recordOrderError(ctx context.Context, externalOrderId string, code string, message string, payload []byte) {
	r.errorCodes = append(r.errorCodes, code)
}

func rawOrder(id string, businessDate string, gross string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"business_date":%q,"revenue_center_id":"rc-lunch","guest_count":2,`+
			`"lines":[{"category_id":"cat-food","gross_amount":%s}],`+
			`"tenders":[{"type":"card","amount":%s}]}`,
		id, businessDate, gross, gross))
}

func testWindow(year int, month time.Month, lastDay int) dateWindow {
	return dateWindow{
		Start: civil.Date{Year: year, Month: month, Day: 1},
		End:   civil.Date{Year: year, Month: month, Day: lastDay},
	}
}

func testSyncDeps(fetcher *fakeFetcher, store *fakeStore, recorder *fakeRecorder) syncDeps {
	return syncDeps{
		orgId:      "org-1",
		locationId: 7,
		fetcher:    fetcher,
		store:      store,
		recorder:   recorder,
		mappings:   testMappings(),
	}
}

func TestRunWindowSync_PerOrderErrorsDoNotStopTheSync(t *testing.T) {
	window := testWindow(2025, time.June, 30)
	fetcher := &fakeFetcher{
		ordersByMonth: map[string][]json.RawMessage{
			"2025-06": {
				rawOrder("ok-1", "2025-06-10", "40"),
				json.RawMessage(`{"id":"bad-date","business_date":"junk","lines":[{"category_id":"cat-food","gross_amount":10}],"tenders":[{"type":"cash","amount":10}]}`),
				json.RawMessage(`{not json`),
				rawOrder("ok-2", "2025-06-11", "25"),
			},
		},
	}
	store := &fakeStore{}
	recorder := &fakeRecorder{}

	result, err := runWindowSync(context.Background(), testSyncDeps(fetcher, store, recorder), window)
	if err != nil {
		t.Fatalf("runWindowSync error: %v", err)
	}

	if result.OrdersFetched != 4 || result.OrdersSynced != 2 || result.ErrorCount != 2 {
		t.Fatalf("expected fetched=4 synced=2 errors=2, got fetched=%d synced=%d errors=%d",
			result.OrdersFetched, result.OrdersSynced, result.ErrorCount)
	}
	if result.NetSales.String() != "65" {
		t.Fatalf("expected net sales 65, got %s", result.NetSales)
	}

	if len(recorder.errorCodes) != 2 {
		t.Fatalf("expected 2 recorded order errors, got %v", recorder.errorCodes)
	}
	seen := map[string]bool{}
	for _, code := range recorder.errorCodes {
		seen[code] = true
	}
	if !seen["malformed_date"] || !seen["invalid_payload"] {
		t.Fatalf("expected malformed_date and invalid_payload codes, got %v", recorder.errorCodes)
	}

	if len(store.calls) != 1 {
		t.Fatalf("expected 1 persist call, got %d", len(store.calls))
	}
	if len(store.calls[0].dailyFacts) != 2 {
		t.Fatalf("expected 2 daily rows, got %d", len(store.calls[0].dailyFacts))
	}

	expectedPhases := []string{
		models.SyncPhaseFetching,
		models.SyncPhaseClassifying,
		models.SyncPhaseAggregating,
		models.SyncPhasePersisting,
		models.SyncPhaseDone,
	}
	if len(recorder.phases) != len(expectedPhases) {
		t.Fatalf("expected phases %v, got %v", expectedPhases, recorder.phases)
	}
	for i, phase := range expectedPhases {
		if recorder.phases[i] != phase {
			t.Fatalf("phase %d expected %s, got %s", i, phase, recorder.phases[i])
		}
	}
}

func TestRunWindowSync_DeleteCoversEveryWindowDate(t *testing.T) {
	// A date whose orders all disappeared still needs its stale rows
	// cleared, so the delete set is the whole window.
	window := dateWindow{
		Start: civil.Date{Year: 2025, Month: time.June, Day: 10},
		End:   civil.Date{Year: 2025, Month: time.June, Day: 12},
	}
	fetcher := &fakeFetcher{
		ordersByMonth: map[string][]json.RawMessage{
			"2025-06": {rawOrder("only", "2025-06-11", "30")},
		},
	}
	store := &fakeStore{}

	_, err := runWindowSync(context.Background(), testSyncDeps(fetcher, store, &fakeRecorder{}), window)
	if err != nil {
		t.Fatalf("runWindowSync error: %v", err)
	}

	if len(store.calls) != 1 {
		t.Fatalf("expected 1 persist call, got %d", len(store.calls))
	}
	if len(store.calls[0].dates) != 3 {
		t.Fatalf("expected delete set to cover all 3 window dates, got %d", len(store.calls[0].dates))
	}
	if len(store.calls[0].dailyFacts) != 1 {
		t.Fatalf("expected 1 daily row, got %d", len(store.calls[0].dailyFacts))
	}
}

func TestRunWindowSync_ResyncProducesIdenticalRows(t *testing.T) {
	// Resyncing an unchanged window must produce identical fact rows;
	// only the synced-at stamp moves.
	window := testWindow(2025, time.June, 30)
	orders := map[string][]json.RawMessage{
		"2025-06": {
			rawOrder("a", "2025-06-10", "40"),
			rawOrder("b", "2025-06-10", "25"),
			rawOrder("c", "2025-06-20", "30"),
		},
	}
	store := &fakeStore{}

	for run := 0; run < 2; run++ {
		fetcher := &fakeFetcher{ordersByMonth: orders}
		if _, err := runWindowSync(context.Background(), testSyncDeps(fetcher, store, &fakeRecorder{}), window); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
	}

	if len(store.calls) != 2 {
		t.Fatalf("expected 2 persist calls, got %d", len(store.calls))
	}
	first, second := store.calls[0], store.calls[1]
	if !reflect.DeepEqual(first.daypartFacts, second.daypartFacts) {
		t.Fatalf("daypart rows differ between identical syncs:\nfirst:  %+v\nsecond: %+v",
			first.daypartFacts, second.daypartFacts)
	}
	if len(first.dailyFacts) != len(second.dailyFacts) {
		t.Fatalf("daily row count differs: %d vs %d", len(first.dailyFacts), len(second.dailyFacts))
	}
	for i := range second.dailyFacts {
		second.dailyFacts[i].SyncedAt = first.dailyFacts[i].SyncedAt
	}
	if !reflect.DeepEqual(first.dailyFacts, second.dailyFacts) {
		t.Fatalf("daily rows differ between identical syncs:\nfirst:  %+v\nsecond: %+v",
			first.dailyFacts, second.dailyFacts)
	}
}

func TestRunWindowSync_FetchFailurePersistsNothing(t *testing.T) {
	window := testWindow(2025, time.June, 30)
	fetcher := &fakeFetcher{failMonth: "2025-06"}
	store := &fakeStore{}
	recorder := &fakeRecorder{}

	_, err := runWindowSync(context.Background(), testSyncDeps(fetcher, store, recorder), window)
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	if len(store.calls) != 0 {
		t.Fatalf("fetch failure must persist nothing, got %d calls", len(store.calls))
	}
	if len(recorder.phases) != 1 || recorder.phases[0] != models.SyncPhaseFetching {
		t.Fatalf("expected to stop in fetching phase, got %v", recorder.phases)
	}
}

func testBackfillDeps(fetcher *fakeFetcher, store *fakeStore) backfillDeps {
	return backfillDeps{
		orgId:      "org-1",
		locationId: 7,
		fetcher:    fetcher,
		store:      store,
		recorder:   &fakeRecorder{},
		mappings:   testMappings(),
	}
}

func terminalEvents(events []ProgressEvent) []ProgressEvent {
	var out []ProgressEvent
	for _, ev := range events {
		if ev.Phase == BackfillPhaseComplete || ev.Phase == BackfillPhaseError {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunBackfillWindows_MonthFailureKeepsEarlierMonths(t *testing.T) {
	windows := []dateWindow{
		testWindow(2025, time.June, 30),
		testWindow(2025, time.July, 31),
	}
	fetcher := &fakeFetcher{
		ordersByMonth: map[string][]json.RawMessage{
			"2025-06": {rawOrder("jun-1", "2025-06-05", "100")},
		},
		failMonth: "2025-07",
	}
	store := &fakeStore{}

	var events []ProgressEvent
	summary, err := runBackfillWindows(context.Background(), testBackfillDeps(fetcher, store), windows,
		func(ev ProgressEvent) { events = append(events, ev) })

	if err == nil {
		t.Fatalf("expected backfill error")
	}
	if !strings.Contains(err.Error(), "backfill month 2025-07") {
		t.Fatalf("error must name the failed month, got %v", err)
	}

	if summary.MonthsDone != 1 {
		t.Fatalf("expected 1 completed month, got %d", summary.MonthsDone)
	}
	if len(store.calls) != 1 {
		t.Fatalf("june must stay persisted and july must not: got %d persist calls", len(store.calls))
	}

	terminal := terminalEvents(events)
	if len(terminal) != 1 {
		t.Fatalf("expected exactly one terminal event, got %d (%v)", len(terminal), terminal)
	}
	last := events[len(events)-1]
	if last.Phase != BackfillPhaseError || last.Month != "2025-07" {
		t.Fatalf("terminal event must be an error naming 2025-07, got %+v", last)
	}
}

func TestRunBackfillWindows_ProgressIsMonotonicWithOneTerminal(t *testing.T) {
	windows := []dateWindow{
		testWindow(2025, time.May, 31),
		testWindow(2025, time.June, 30),
		testWindow(2025, time.July, 31),
	}
	fetcher := &fakeFetcher{
		ordersByMonth: map[string][]json.RawMessage{
			"2025-05": {rawOrder("may-1", "2025-05-10", "10")},
			"2025-06": {rawOrder("jun-1", "2025-06-10", "20"), rawOrder("jun-2", "2025-06-20", "30")},
			"2025-07": {rawOrder("jul-1", "2025-07-01", "40")},
		},
	}
	store := &fakeStore{}

	var events []ProgressEvent
	summary, err := runBackfillWindows(context.Background(), testBackfillDeps(fetcher, store), windows,
		func(ev ProgressEvent) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("runBackfillWindows error: %v", err)
	}

	if summary.MonthsDone != 3 || summary.OrdersSynced != 4 {
		t.Fatalf("expected 3 months / 4 orders, got %d / %d", summary.MonthsDone, summary.OrdersSynced)
	}
	if summary.NetSales.String() != "100" {
		t.Fatalf("expected rolled-up net 100, got %s", summary.NetSales)
	}

	last := 0
	starts, completes := 0, 0
	for i, ev := range events {
		if ev.Percent < last {
			t.Fatalf("event %d (%s) went backwards: %d after %d", i, ev.Phase, ev.Percent, last)
		}
		last = ev.Percent
		switch ev.Phase {
		case BackfillPhaseMonthStart:
			starts++
		case BackfillPhaseMonthComplete:
			completes++
		}
	}
	if starts != 3 || completes != 3 {
		t.Fatalf("expected 3 month_start and 3 month_complete events, got %d / %d", starts, completes)
	}

	terminal := terminalEvents(events)
	if len(terminal) != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", len(terminal))
	}
	final := events[len(events)-1]
	if final.Phase != BackfillPhaseComplete || final.Percent != 100 {
		t.Fatalf("expected terminal complete at 100, got %+v", final)
	}
}

func TestRunBackfillWindows_CancelBetweenMonths(t *testing.T) {
	windows := []dateWindow{
		testWindow(2025, time.June, 30),
		testWindow(2025, time.July, 31),
	}
	fetcher := &fakeFetcher{
		ordersByMonth: map[string][]json.RawMessage{
			"2025-06": {rawOrder("jun-1", "2025-06-05", "10")},
			"2025-07": {rawOrder("jul-1", "2025-07-05", "10")},
		},
	}
	store := &fakeStore{}

	ctx, cancel := context.WithCancel(context.Background())
	var events []ProgressEvent
	_, err := runBackfillWindows(ctx, testBackfillDeps(fetcher, store), windows,
		func(ev ProgressEvent) {
			events = append(events, ev)
			if ev.Phase == BackfillPhaseMonthComplete {
				cancel()
			}
		})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.calls) != 1 {
		t.Fatalf("june must stay persisted after cancel, got %d persist calls", len(store.calls))
	}

	last := events[len(events)-1]
	if last.Phase != BackfillPhaseError || last.Message != "backfill canceled" {
		t.Fatalf("expected cancel error event, got %+v", last)
	}
	if len(terminalEvents(events)) != 1 {
		t.Fatalf("expected exactly one terminal event")
	}
}

func TestRunBackfillWindows_PersistFailureIsTerminal(t *testing.T) {
	windows := []dateWindow{testWindow(2025, time.June, 30)}
	fetcher := &fakeFetcher{
		ordersByMonth: map[string][]json.RawMessage{
			"2025-06": {rawOrder("jun-1", "2025-06-05", "10")},
		},
	}
	store := &fakeStore{failure: errors.New("deadlock found when trying to get lock")}

	var events []ProgressEvent
	_, err := runBackfillWindows(context.Background(), testBackfillDeps(fetcher, store), windows,
		func(ev ProgressEvent) { events = append(events, ev) })

	if err == nil {
		t.Fatalf("expected persist error")
	}
	terminal := terminalEvents(events)
	if len(terminal) != 1 || terminal[0].Phase != BackfillPhaseError {
		t.Fatalf("expected one terminal error event, got %v", terminal)
	}
}
