package tablysync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/utils"
)

// archiveOrderPages drops the raw order payloads for one synced window into
// the archive bucket. The aggregates are derived data; the archive is the
// only place the original orders survive for a re-run or an audit. Best
// effort: an upload failure is logged, never fails the sync.
func archiveOrderPages(ctx context.Context, conn models.PosConnection, window dateWindow, raw []json.RawMessage) {
	if !config.ArchiveOrderPayloads() {
		return
	}
	bucket := strings.TrimSpace(os.Getenv("TABLY_ARCHIVE_BUCKET"))
	if bucket == "" || len(raw) == 0 {
		return
	}

	data, err := json.Marshal(raw)
	if err != nil {
		config.LogError(config.GetLogger(), "tablysync", "archiveOrderPages", "marshal order payloads", window.String(), err)
		return
	}

	objectName := fmt.Sprintf("orders/%s/%d/%s_%s_%d.json",
		conn.OrgId, conn.LocationId, window.Start.String(), window.End.String(), time.Now().Unix())
	if err := utils.UploadBytesToGCSBucket(ctx, bucket, objectName, data, "application/json"); err != nil {
		config.LogError(config.GetLogger(), "tablysync", "archiveOrderPages", "upload order archive", objectName, err)
	}
}
