package tablysync

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

// Backfill progress phases, in emission order. Each backfill stream ends
// with exactly one terminal event: complete or error.
const (
	BackfillPhaseMonthStart    = "month_start"
	BackfillPhasePageFetched   = "page_fetched"
	BackfillPhaseProcessing    = "processing"
	BackfillPhaseMonthComplete = "month_complete"
	BackfillPhaseComplete      = "complete"
	BackfillPhaseError         = "error"
)

// ProgressEvent is one frame of the backfill progress stream, serialized as
// an SSE data payload for the dashboard and as a log line for the CLI.
type ProgressEvent struct {
	Phase      string `json:"phase"`
	Percent    int    `json:"percent"`
	Month      string `json:"month,omitempty"`
	Page       int    `json:"page,omitempty"`
	Orders     int    `json:"orders,omitempty"`
	Days       int    `json:"days,omitempty"`
	NetSales   string `json:"netSales,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Message    string `json:"message,omitempty"`
}

// progressTracker keeps the reported percent monotonic. Month boundaries are
// computed from the month index, and the in-month interpolation must never
// show the bar moving backwards.
type progressTracker struct {
	emit func(ProgressEvent)
	last int
}

func (p *progressTracker) send(ev ProgressEvent) {
	if p == nil || p.emit == nil {
		return
	}
	if ev.Percent < p.last {
		ev.Percent = p.last
	}
	if ev.Percent > 100 {
		ev.Percent = 100
	}
	p.last = ev.Percent
	p.emit(ev)
}

// progressRecorder wraps the run recorder so the fetch-to-classify handoff
// surfaces as a processing event on the stream.
type progressRecorder struct {
	syncRecorder
	tracker *progressTracker
	month   string
	percent int
}

func (r progressRecorder) setPhase(ctx context.Context, phase string) {
	r.syncRecorder.setPhase(ctx, phase)
	if phase == models.SyncPhaseClassifying {
		r.tracker.send(ProgressEvent{Phase: BackfillPhaseProcessing, Percent: r.percent, Month: r.month})
	}
}

type backfillDeps struct {
	orgId      string
	locationId int
	fetcher    orderFetcher
	store      factStore
	recorder   syncRecorder
	mappings   *models.MappingSet
}

type backfillSummary struct {
	MonthsDone    int
	OrdersFetched int
	OrdersSynced  int
	ErrorCount    int
	DaysPersisted int
	NetSales      decimal.Decimal
	Counters      QualityCounters
}

func (c *QualityCounters) add(other QualityCounters) {
	c.Excluded += other.Excluded
	c.Voided += other.Voided
	c.Refunded += other.Refunded
	c.DaypartUnresolved += other.DaypartUnresolved
}

// runBackfillWindows syncs the windows strictly in order, oldest first. Each
// month commits on its own, so a failure in month n leaves months 1..n-1
// fully persisted and stops there: the terminal error event names the month
// that broke.
func runBackfillWindows(ctx context.Context, deps backfillDeps, windows []dateWindow, emit func(ProgressEvent)) (backfillSummary, error) {

	tracker := &progressTracker{emit: emit}
	var summary backfillSummary
	started := time.Now()
	total := len(windows)

	for i, window := range windows {
		month := monthLabel(window)
		if err := ctx.Err(); err != nil {
			tracker.send(ProgressEvent{Phase: BackfillPhaseError, Percent: tracker.last, Month: month, Message: "backfill canceled"})
			return summary, err
		}

		lo := i * 100 / total
		hi := (i + 1) * 100 / total

		tracker.send(ProgressEvent{Phase: BackfillPhaseMonthStart, Percent: lo, Month: month})

		monthDeps := syncDeps{
			orgId:      deps.orgId,
			locationId: deps.locationId,
			fetcher:    deps.fetcher,
			store:      deps.store,
			recorder: progressRecorder{
				syncRecorder: deps.recorder,
				tracker:      tracker,
				month:        month,
				percent:      lo + 2*(hi-lo)/3,
			},
			mappings: deps.mappings,
			onPage: func(page, fetched int) {
				tracker.send(ProgressEvent{Phase: BackfillPhasePageFetched, Percent: lo + (hi-lo)/3, Month: month, Page: page, Orders: fetched})
			},
		}

		result, err := runWindowSync(ctx, monthDeps, window)
		summary.OrdersFetched += result.OrdersFetched
		summary.OrdersSynced += result.OrdersSynced
		summary.ErrorCount += result.ErrorCount
		summary.Counters.add(result.Counters)
		if err != nil {
			tracker.send(ProgressEvent{Phase: BackfillPhaseError, Percent: tracker.last, Month: month, Message: err.Error()})
			return summary, fmt.Errorf("backfill month %s: %w", month, err)
		}

		summary.MonthsDone++
		summary.DaysPersisted += result.DaysPersisted
		summary.NetSales = summary.NetSales.Add(result.NetSales)

		tracker.send(ProgressEvent{
			Phase:    BackfillPhaseMonthComplete,
			Percent:  hi,
			Month:    month,
			Orders:   result.OrdersSynced,
			Days:     result.DaysPersisted,
			NetSales: result.NetSales.String(),
		})
	}

	tracker.send(ProgressEvent{
		Phase:      BackfillPhaseComplete,
		Percent:    100,
		Orders:     summary.OrdersSynced,
		Days:       summary.DaysPersisted,
		NetSales:   summary.NetSales.String(),
		DurationMs: time.Since(started).Milliseconds(),
	})
	return summary, nil
}

// RunBackfill pulls the connection's history month by month and streams
// progress to emit. One PosSyncRun row covers the whole span; its window is
// the full range and its stats roll up every month.
func RunBackfill(ctx context.Context, conn models.PosConnection, months int, emit func(ProgressEvent)) error {

	fail := func(err error) error {
		if emit != nil {
			emit(ProgressEvent{Phase: BackfillPhaseError, Message: err.Error()})
		}
		return err
	}

	if conn.Status != models.IntegrationStatusConnected {
		return fail(ErrNotConnected)
	}

	ctx = utils.SetOrgIdInContext(ctx, conn.OrgId)

	if months <= 0 {
		months = DecodeSettings(conn.SettingsJSON).BackfillMonths
	}
	windows := monthWindows(civil.DateOf(time.Now()), months)
	if len(windows) == 0 {
		return fail(errors.New("no backfill window"))
	}

	release, err := utils.ObtainConnectionLock(ctx, int(conn.ID), "tablysync", "RunBackfill")
	if err != nil {
		return fail(err)
	}
	defer release()

	client, err := newTablyClient(conn.AuthSecretRef)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNotConfigured, err))
	}

	mappings, err := models.LoadMappingSet(ctx, conn.OrgId, conn.LocationId)
	if err != nil {
		return fail(err)
	}

	now := time.Now()
	run := models.PosSyncRun{
		OrgId:        conn.OrgId,
		ConnectionId: conn.ID,
		LocationId:   conn.LocationId,
		Provider:     models.IntegrationProviderTably,
		Status:       models.SyncRunStatusRunning,
		Phase:        models.SyncPhaseFetching,
		TriggeredBy:  models.SyncTriggeredBackfill,
		WindowStart:  civilToTime(windows[0].Start),
		WindowEnd:    civilToTime(windows[len(windows)-1].End),
		StartedAt:    &now,
	}
	db := config.GetDB().WithContext(ctx)
	if err := db.Create(&run).Error; err != nil {
		return fail(err)
	}

	deps := backfillDeps{
		orgId:      conn.OrgId,
		locationId: conn.LocationId,
		fetcher:    client,
		store:      gormFactStore{},
		recorder:   gormSyncRecorder{runId: run.ID, orgId: conn.OrgId},
		mappings:   mappings,
	}

	summary, backfillErr := runBackfillWindows(ctx, deps, windows, emit)

	result := windowSyncResult{
		OrdersFetched: summary.OrdersFetched,
		OrdersSynced:  summary.OrdersSynced,
		ErrorCount:    summary.ErrorCount,
		DaysPersisted: summary.DaysPersisted,
		NetSales:      summary.NetSales,
		Counters:      summary.Counters,
	}
	return finalizeRun(context.WithoutCancel(ctx), &run, &conn, result, &now, backfillErr)
}
