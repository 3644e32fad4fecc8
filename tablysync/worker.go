package tablysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("tablysync")

var (
	ErrNotConnected  = errors.New("tably is not connected")
	ErrNotConfigured = errors.New("tably connection is not configured")
)

// orderFetcher and factStore are the two outward seams of a window sync:
// everything between them is pure classification and folding.
type orderFetcher interface {
	fetchOrders(ctx context.Context, window dateWindow, onPage func(page, fetched int)) ([]json.RawMessage, error)
}

type factStore interface {
	persistFacts(ctx context.Context, orgId string, locationId int, dates []time.Time,
		daypartFacts []models.DaypartSalesFact, dailyFacts []models.DailySalesFact) error
}

// syncRecorder receives run-progress side effects. The production recorder
// writes the run row; tests swap in a fake.
type syncRecorder interface {
	setPhase(ctx context.Context, phase string)
	recordOrderError(ctx context.Context, externalOrderId string, code string, message string, payload []byte)
}

type gormFactStore struct{}

// persistFacts writes both fact tables in one transaction. Daypart rows are
// deleted and reinserted for every date in the window, daily rows are
// upserted whole; a failure rolls back both.
func (gormFactStore) persistFacts(ctx context.Context, orgId string, locationId int, dates []time.Time,
	daypartFacts []models.DaypartSalesFact, dailyFacts []models.DailySalesFact) error {

	db := config.GetDB().WithContext(ctx)
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if err := models.ReplaceDaypartFacts(tx, orgId, locationId, dates, daypartFacts); err != nil {
		tx.Rollback()
		return err
	}
	if err := models.UpsertDailyFacts(tx, dailyFacts); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

type gormSyncRecorder struct {
	runId uint
	orgId string
}

func (r gormSyncRecorder) setPhase(ctx context.Context, phase string) {
	if r.runId == 0 {
		return
	}
	db := config.GetDB().WithContext(ctx)
	_ = db.Model(&models.PosSyncRun{}).Where("id = ?", r.runId).UpdateColumn("phase", phase).Error
}

func (r gormSyncRecorder) recordOrderError(ctx context.Context, externalOrderId string, code string, message string, payload []byte) {
	if r.runId == 0 {
		return
	}
	errRec := models.PosSyncError{
		SyncRunId:       r.runId,
		OrgId:           r.orgId,
		ExternalOrderId: externalOrderId,
		ErrorCode:       code,
		Message:         message,
		PayloadJSON:     payload,
	}
	db := config.GetDB().WithContext(ctx)
	_ = db.Create(&errRec).Error
}

type syncDeps struct {
	orgId      string
	locationId int
	fetcher    orderFetcher
	store      factStore
	recorder   syncRecorder
	mappings   *models.MappingSet

	// onPage reports fetch progress; afterPersist runs post-commit side
	// effects (cache invalidation, notifications, archive). Both optional.
	onPage       func(page, fetched int)
	afterPersist func(ctx context.Context, window dateWindow, raw []json.RawMessage)
}

type windowSyncResult struct {
	OrdersFetched int
	OrdersSynced  int
	ErrorCount    int
	DaysPersisted int
	NetSales      decimal.Decimal
	Counters      QualityCounters
}

// runWindowSync executes one window end to end: fetch, classify, fold,
// persist. A fetch or persist error is fatal and leaves the window's fact
// rows untouched; per-order errors are recorded and the sync keeps going.
func runWindowSync(ctx context.Context, deps syncDeps, window dateWindow) (windowSyncResult, error) {
	ctx, span := tracer.Start(ctx, "tablysync.runWindowSync")
	defer span.End()

	var result windowSyncResult

	deps.recorder.setPhase(ctx, models.SyncPhaseFetching)
	raw, err := deps.fetcher.fetchOrders(ctx, window, deps.onPage)
	if err != nil {
		return result, err
	}
	result.OrdersFetched = len(raw)

	deps.recorder.setPhase(ctx, models.SyncPhaseClassifying)
	classified := make([]*classifiedOrder, 0, len(raw))
	for _, payload := range raw {
		var order tablyOrder
		if err := json.Unmarshal(payload, &order); err != nil {
			result.ErrorCount++
			result.Counters.Excluded++
			deps.recorder.recordOrderError(ctx, "", "invalid_payload", err.Error(), payload)
			continue
		}
		item, err := classifyOrder(order, deps.mappings, &result.Counters)
		if err != nil {
			result.ErrorCount++
			deps.recorder.recordOrderError(ctx, order.ID, "malformed_date", err.Error(), payload)
			continue
		}
		if item == nil {
			continue
		}
		classified = append(classified, item)
	}
	result.OrdersSynced = len(classified)

	deps.recorder.setPhase(ctx, models.SyncPhaseAggregating)
	daypartTotals := aggregateByDaypart(classified)
	dailyTotals := aggregateDaily(classified)
	daypartFacts := buildDaypartFacts(deps.orgId, deps.locationId, daypartTotals)
	dailyFacts := buildDailyFacts(deps.orgId, deps.locationId, dailyTotals, time.Now())

	for _, agg := range dailyTotals {
		result.NetSales = result.NetSales.Add(agg.Net)
	}
	result.DaysPersisted = len(dailyFacts)

	deps.recorder.setPhase(ctx, models.SyncPhasePersisting)
	// The delete covers every date in the window, not just dates that still
	// have rows: a resync of a date whose orders were since voided away must
	// clear the stale daypart rows.
	persistCtx := context.WithoutCancel(ctx)
	if err := deps.store.persistFacts(persistCtx, deps.orgId, deps.locationId, windowDates(window), daypartFacts, dailyFacts); err != nil {
		return result, err
	}

	if deps.afterPersist != nil {
		deps.afterPersist(persistCtx, window, raw)
	}

	deps.recorder.setPhase(ctx, models.SyncPhaseDone)
	return result, nil
}

// processSyncRun drives one queued PosSyncRun to a terminal status. It is
// the landing point for both the Pub/Sub push path and direct dispatch.
func processSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	ctx, span := tracer.Start(ctx, "tablysync.processSyncRun")
	defer span.End()

	if payload.RunId == 0 || payload.OrgId == "" {
		return errors.New("invalid payload")
	}

	ctx = utils.SetOrgIdInContext(ctx, payload.OrgId)
	db := config.GetDB().WithContext(ctx)

	var run models.PosSyncRun
	if err := db.Where("id = ? AND org_id = ?", payload.RunId, payload.OrgId).Take(&run).Error; err != nil {
		return err
	}

	// Pub/Sub redelivers; a finished run is simply acked again.
	if run.IsTerminal() {
		return nil
	}

	var conn models.PosConnection
	if err := db.Where("id = ? AND org_id = ?", run.ConnectionId, payload.OrgId).Take(&conn).Error; err != nil {
		return err
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}

	if conn.Status != models.IntegrationStatusConnected {
		return finalizeRun(ctx, &run, nil, windowSyncResult{}, startedAt, ErrNotConnected)
	}

	release, err := utils.ObtainConnectionLock(ctx, int(conn.ID), "tablysync", "processSyncRun")
	if err != nil {
		return finalizeRun(ctx, &run, nil, windowSyncResult{}, startedAt, err)
	}
	defer release()

	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	client, err := newTablyClient(conn.AuthSecretRef)
	if err != nil {
		return finalizeRun(ctx, &run, &conn, windowSyncResult{}, startedAt, fmt.Errorf("%w: %v", ErrNotConfigured, err))
	}

	mappings, err := models.LoadMappingSet(ctx, payload.OrgId, conn.LocationId)
	if err != nil {
		return finalizeRun(ctx, &run, &conn, windowSyncResult{}, startedAt, err)
	}

	window := runWindow(run)
	deps := syncDeps{
		orgId:      payload.OrgId,
		locationId: conn.LocationId,
		fetcher:    client,
		store:      gormFactStore{},
		recorder:   gormSyncRecorder{runId: run.ID, orgId: payload.OrgId},
		mappings:   mappings,
		afterPersist: func(persistCtx context.Context, w dateWindow, raw []json.RawMessage) {
			notifyAggregatesUpdated(persistCtx, conn, w, raw)
		},
	}

	result, syncErr := runWindowSync(ctx, deps, window)
	return finalizeRun(ctx, &run, &conn, result, startedAt, syncErr)
}

// ProcessQueuedRun drives one queued run synchronously. The HTTP path rides
// Pub/Sub into processSyncRun; the backfill CLI calls this directly.
func ProcessQueuedRun(ctx context.Context, runId uint, orgId string, connectionId uint) error {
	return processSyncRun(ctx, SyncPubSubPayload{
		RunId:        runId,
		OrgId:        orgId,
		ConnectionId: connectionId,
	})
}

// runWindow reads the run's date window, defaulting to yesterday and today:
// late closes for yesterday keep arriving past midnight, so the scheduled
// sync always refreshes both.
func runWindow(run models.PosSyncRun) dateWindow {
	if run.WindowStart.IsZero() || run.WindowEnd.IsZero() {
		return yesterdayTodayWindow(civil.DateOf(time.Now()))
	}
	return dateWindow{Start: civil.DateOf(run.WindowStart), End: civil.DateOf(run.WindowEnd)}
}

// finalizeRun stamps the terminal status on the run row and the sync health
// fields on the connection, exactly once, and returns syncErr unchanged.
// conn may be nil when the connection state must not be touched (lock not
// obtained, connection missing).
func finalizeRun(ctx context.Context, run *models.PosSyncRun, conn *models.PosConnection,
	result windowSyncResult, startedAt *time.Time, syncErr error) error {

	db := config.GetDB().WithContext(ctx)

	finishedAt := time.Now()
	durationMs := int64(0)
	if startedAt != nil {
		durationMs = finishedAt.Sub(*startedAt).Milliseconds()
	}

	status := models.SyncRunStatusSuccess
	if syncErr != nil || (result.ErrorCount > 0 && result.OrdersSynced == 0) {
		status = models.SyncRunStatusFailed
	} else if result.ErrorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	if err := db.Model(run).Updates(map[string]interface{}{
		"status":         status,
		"phase":          models.SyncPhaseDone,
		"finished_at":    finishedAt,
		"duration_ms":    durationMs,
		"records_synced": result.OrdersSynced,
		"error_count":    result.ErrorCount,
		"stats_json":     encodeRunStats(result),
	}).Error; err != nil {
		return err
	}

	logSyncOutcome(run, status, result, durationMs, syncErr)

	if conn != nil {
		connUpdates := map[string]interface{}{
			"last_sync_at": finishedAt,
		}
		switch status {
		case models.SyncRunStatusSuccess:
			connUpdates["last_sync_status"] = models.LastSyncStatusSuccess
			connUpdates["last_sync_error"] = ""
			connUpdates["last_success_sync_at"] = finishedAt
		case models.SyncRunStatusPartial:
			connUpdates["last_sync_status"] = models.LastSyncStatusSuccess
			connUpdates["last_sync_error"] = fmt.Sprintf("%d orders failed classification", result.ErrorCount)
		default:
			connUpdates["last_sync_status"] = models.LastSyncStatusFailed
			connUpdates["last_sync_error"] = syncErrorMessage(result, syncErr)
			if errors.Is(syncErr, ErrNotConfigured) {
				connUpdates["status"] = models.IntegrationStatusError
			}
		}
		if err := db.Model(&models.PosConnection{}).
			Where("id = ? AND org_id = ?", conn.ID, run.OrgId).
			Updates(connUpdates).Error; err != nil {
			return err
		}
	}

	return syncErr
}

func syncErrorMessage(result windowSyncResult, syncErr error) string {
	if syncErr != nil {
		return syncErr.Error()
	}
	return fmt.Sprintf("all %d orders failed classification", result.ErrorCount)
}

// encodeRunStats snapshots the window totals and quality counters into the
// run's stats column. The counters are the operator's drift signal, so they
// ride along with every run.
func encodeRunStats(result windowSyncResult) []byte {
	stats := map[string]interface{}{
		"orders_fetched": result.OrdersFetched,
		"orders_synced":  result.OrdersSynced,
		"days_persisted": result.DaysPersisted,
		"net_sales":      result.NetSales.String(),
		"counters":       result.Counters,
	}
	statsJSON, _ := json.Marshal(stats)
	return statsJSON
}

func logSyncOutcome(run *models.PosSyncRun, status string, result windowSyncResult, durationMs int64, syncErr error) {
	logger := config.GetLogger()
	entry := logger.WithFields(logrus.Fields{
		"run_id":             run.ID,
		"org_id":             run.OrgId,
		"location_id":        run.LocationId,
		"status":             status,
		"duration_ms":        durationMs,
		"orders_fetched":     result.OrdersFetched,
		"orders_synced":      result.OrdersSynced,
		"error_count":        result.ErrorCount,
		"days_persisted":     result.DaysPersisted,
		"net_sales":          result.NetSales.String(),
		"excluded":           result.Counters.Excluded,
		"voided":             result.Counters.Voided,
		"refunded":           result.Counters.Refunded,
		"daypart_unresolved": result.Counters.DaypartUnresolved,
	})
	if syncErr != nil {
		entry.Error("[tably.sync] " + syncErr.Error())
		return
	}
	entry.Info("[tably.sync] completed")
}

// notifyAggregatesUpdated runs the post-commit side effects: drop the cached
// narrative for any synced date that is still current, tell the dashboard
// consumers that aggregates moved, and archive the raw pages. All best
// effort; the facts are already committed.
func notifyAggregatesUpdated(ctx context.Context, conn models.PosConnection, window dateWindow, raw []json.RawMessage) {
	logger := config.GetLogger()

	today := civil.DateOf(time.Now())
	for _, date := range windowDates(window) {
		day := civil.DateOf(date)
		if day.Before(today) {
			continue
		}
		if err := utils.ClearNarrativeCache(conn.LocationId, day.String()); err != nil {
			config.LogError(logger, "tablysync", "notifyAggregatesUpdated", "clear narrative cache", day.String(), err)
		}
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := config.PubSubMessage{
		OrgId:         conn.OrgId,
		LocationId:    conn.LocationId,
		OccurredAt:    time.Now(),
		ReferenceId:   int(conn.ID),
		ReferenceType: "pos_connection",
		Action:        "tably.aggregates.updated",
		CorrelationId: correlationId,
	}
	if err := config.PublishDashboardEvent(conn.OrgId, event); err != nil {
		config.LogError(logger, "tablysync", "notifyAggregatesUpdated", "publish dashboard event", window.String(), err)
	}

	archiveOrderPages(ctx, conn, window, raw)
}

// dispatchSyncRun hands a queued run to a worker. Behind the feature flag it
// rides Pub/Sub; otherwise it runs on a goroutine detached from the request.
func dispatchSyncRun(ctx context.Context, run models.PosSyncRun) {
	if config.UseSyncDispatchFor(models.IntegrationProviderTably) {
		if err := PublishSyncRun(ctx, run.ID, run.OrgId, run.ConnectionId); err != nil {
			config.LogError(config.GetLogger(), "tablysync", "dispatchSyncRun", "publish sync run", run.ID, err)
		}
		return
	}

	payload := SyncPubSubPayload{
		RunId:        run.ID,
		OrgId:        run.OrgId,
		ConnectionId: run.ConnectionId,
	}
	go func() {
		_ = processSyncRun(context.Background(), payload)
	}()
}
