package tablysync

import (
	"context"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartSyncScheduler wires the nightly sync cron. Disabled by default so
// only one instance in a deployment runs it; returns nil when disabled.
func StartSyncScheduler() *cron.Cron {
	if !envBoolDefault("ENABLE_TABLY_SYNC_CRON", false) {
		return nil
	}

	schedule := strings.TrimSpace(os.Getenv("TABLY_SYNC_CRON"))
	if schedule == "" {
		schedule = "0 30 5 * * *"
	}

	logger := config.GetLogger()
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, runScheduledSyncs); err != nil {
		config.LogError(logger, "tablysync", "StartSyncScheduler", "register sync cron", schedule, err)
		return nil
	}
	c.Start()

	logger.WithFields(logrus.Fields{
		"schedule": schedule,
	}).Info("[tably.cron] sync scheduler started")
	return c
}

// runScheduledSyncs queues one run per connected location with auto sync on.
// It runs without an org scope on purpose: the nightly pass covers every
// tenant, and each queued run carries its own org id from there on.
func runScheduledSyncs() {
	ctx := context.Background()
	logger := config.GetLogger()
	db := config.GetDB().WithContext(ctx)

	var connections []models.PosConnection
	if err := db.Where("provider = ? AND status = ?", models.IntegrationProviderTably, models.IntegrationStatusConnected).
		Find(&connections).Error; err != nil {
		config.LogError(logger, "tablysync", "runScheduledSyncs", "list connected locations", nil, err)
		return
	}

	today := civil.DateOf(time.Now())
	window := yesterdayTodayWindow(today)
	queued := 0

	for _, conn := range connections {
		settings := DecodeSettings(conn.SettingsJSON)
		if !settings.AutoSyncEnabled {
			continue
		}

		run := models.PosSyncRun{
			OrgId:        conn.OrgId,
			ConnectionId: conn.ID,
			LocationId:   conn.LocationId,
			Provider:     models.IntegrationProviderTably,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredSchedule,
			WindowStart:  civilToTime(window.Start),
			WindowEnd:    civilToTime(window.End),
		}
		if err := db.Create(&run).Error; err != nil {
			config.LogError(logger, "tablysync", "runScheduledSyncs", "queue scheduled run", conn.ID, err)
			continue
		}

		dispatchSyncRun(ctx, run)
		queued++
	}

	logger.WithFields(logrus.Fields{
		"connections": len(connections),
		"queued":      queued,
		"window":      window.String(),
	}).Info("[tably.cron] scheduled syncs queued")
}
