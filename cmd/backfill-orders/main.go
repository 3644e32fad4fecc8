package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/tablysync"
	"github.com/platemetrics/analytics_backend/utils"
)

func main() {
	connectionId := flag.Int("connection-id", 0, "Optional: backfill only one connection.")
	orgId := flag.String("org-id", "", "Optional: backfill every connected location of one org (uuid string). If empty, backfills all connected locations.")
	months := flag.Int("months", 12, "How many calendar months of history to pull (1-24).")
	from := flag.String("from", "", "Optional: window start (YYYY-MM-DD). Runs a single window sync instead of a monthly backfill; requires -to.")
	to := flag.String("to", "", "Optional: window end (YYYY-MM-DD). Requires -from.")
	flag.Parse()

	hasFrom := strings.TrimSpace(*from) != ""
	hasTo := strings.TrimSpace(*to) != ""
	if hasFrom != hasTo {
		fmt.Fprintln(os.Stderr, "-from and -to must be provided together")
		os.Exit(1)
	}
	var windowStart, windowEnd civil.Date
	if hasFrom {
		var err error
		windowStart, err = civil.ParseDate(strings.TrimSpace(*from))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -from date: %v\n", err)
			os.Exit(1)
		}
		windowEnd, err = civil.ParseDate(strings.TrimSpace(*to))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to date: %v\n", err)
			os.Exit(1)
		}
		if windowEnd.Before(windowStart) {
			fmt.Fprintln(os.Stderr, "-from must not be after -to")
			os.Exit(1)
		}
	}

	ctx := context.Background()
	// Ops CLI runs across tenants; mark the context so the tenant guard
	// stays out of the connection listing below.
	ctx = utils.SetIsAdminInContext(ctx, true)
	// Explicit connects (config no longer connects in init()). Redis is needed
	// for the per-connection sync lock and the mapping cache.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	models.MigrateTable()

	var connections []models.PosConnection
	query := db.WithContext(ctx).
		Where("provider = ? AND status = ?", models.IntegrationProviderTably, models.IntegrationStatusConnected)
	if *connectionId > 0 {
		query = query.Where("id = ?", *connectionId)
	}
	if strings.TrimSpace(*orgId) != "" {
		query = query.Where("org_id = ?", strings.TrimSpace(*orgId))
	}
	if err := query.Find(&connections).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list connections: %v\n", err)
		os.Exit(1)
	}
	if len(connections) == 0 {
		fmt.Fprintln(os.Stderr, "no connected tably integrations found")
		return
	}

	failed := 0
	for _, conn := range connections {
		connCtx := utils.SetOrgIdInContext(ctx, conn.OrgId)

		if hasFrom {
			fmt.Printf("Syncing connection=%d org=%s location=%d window=%s..%s\n",
				conn.ID, conn.OrgId, conn.LocationId, windowStart, windowEnd)
			if err := syncWindow(connCtx, conn, windowStart, windowEnd); err != nil {
				fmt.Fprintf(os.Stderr, "connection %d window sync failed: %v\n", conn.ID, err)
				failed++
			}
			continue
		}

		fmt.Printf("Backfilling connection=%d org=%s location=%d months=%d\n",
			conn.ID, conn.OrgId, conn.LocationId, *months)
		if err := tablysync.RunBackfill(connCtx, conn, *months, printEvent); err != nil {
			fmt.Fprintf(os.Stderr, "connection %d backfill failed: %v\n", conn.ID, err)
			failed++
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d connections failed\n", failed, len(connections))
		os.Exit(1)
	}
	fmt.Println("Backfill complete")
}

// syncWindow records a manual run for the given window and drives it to a
// terminal status in-process.
func syncWindow(ctx context.Context, conn models.PosConnection, from civil.Date, to civil.Date) error {
	db := config.GetDB().WithContext(ctx)
	run := models.PosSyncRun{
		OrgId:        conn.OrgId,
		ConnectionId: conn.ID,
		LocationId:   conn.LocationId,
		Provider:     models.IntegrationProviderTably,
		Status:       models.SyncRunStatusQueued,
		TriggeredBy:  models.SyncTriggeredManual,
		WindowStart:  from.In(time.UTC),
		WindowEnd:    to.In(time.UTC),
	}
	if err := db.Create(&run).Error; err != nil {
		return err
	}
	return tablysync.ProcessQueuedRun(ctx, run.ID, conn.OrgId, conn.ID)
}

func printEvent(ev tablysync.ProgressEvent) {
	parts := []string{fmt.Sprintf("[%3d%%] %s", ev.Percent, ev.Phase)}
	if ev.Month != "" {
		parts = append(parts, "month="+ev.Month)
	}
	if ev.Page > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", ev.Page))
	}
	if ev.Orders > 0 {
		parts = append(parts, fmt.Sprintf("orders=%d", ev.Orders))
	}
	if ev.Days > 0 {
		parts = append(parts, fmt.Sprintf("days=%d", ev.Days))
	}
	if ev.NetSales != "" {
		parts = append(parts, "net="+ev.NetSales)
	}
	if ev.DurationMs > 0 {
		parts = append(parts, fmt.Sprintf("duration_ms=%d", ev.DurationMs))
	}
	if ev.Message != "" {
		parts = append(parts, "message="+ev.Message)
	}
	fmt.Println(strings.Join(parts, " "))
}
