package tablysync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/utils"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		locationId, err := resolveLocationId(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "location_id is required"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db, orgId, locationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{
					Status:     models.IntegrationStatusDisconnected,
					LocationId: locationId,
				},
				Settings: DefaultSettings(),
			})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:       conn.Status,
				LocationId:   conn.LocationId,
				MerchantId:   conn.MerchantId,
				MerchantName: conn.MerchantName,
			},
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSyncStatus:    conn.LastSyncStatus,
			LastSyncError:     conn.LastSyncError,
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
			Settings:          DecodeSettings(conn.SettingsJSON),
		})
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.LocationId <= 0 || strings.TrimSpace(req.MerchantId) == "" || strings.TrimSpace(req.APIKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationId, merchantId and apiKey are required"})
			return
		}

		ctx := c.Request.Context()
		if err := utils.ValidateResourceId[models.Location](ctx, orgId, req.LocationId); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "location not found"})
			return
		}
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, orgId, req.LocationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		merchantName := strings.TrimSpace(req.MerchantName)
		if merchantName == "" {
			merchantName = req.MerchantId
		}

		if conn == nil {
			conn = &models.PosConnection{
				OrgId:         orgId,
				LocationId:    req.LocationId,
				Provider:      models.IntegrationProviderTably,
				Status:        models.IntegrationStatusConnected,
				AuthSecretRef: req.APIKey,
				MerchantId:    req.MerchantId,
				MerchantName:  merchantName,
				SettingsJSON:  EncodeSettings(DefaultSettings()),
				UpdatedAt:     now,
			}
			if err := db.Create(conn).Error; err != nil {
				// Two concurrent connects for the same location race past the
				// lookup above; the unique index catches the loser.
				if isDuplicateKeyErr(err) {
					c.JSON(http.StatusConflict, gin.H{"error": "a connection already exists for this location"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":          models.IntegrationStatusConnected,
				"auth_secret_ref": req.APIKey,
				"merchant_id":     req.MerchantId,
				"merchant_name":   merchantName,
				"last_sync_error": "",
				"updated_at":      now,
			}
			if len(conn.SettingsJSON) == 0 {
				update["settings_json"] = EncodeSettings(DefaultSettings())
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		locationId, err := resolveLocationId(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "location_id is required"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db, orgId, locationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":          models.IntegrationStatusDisconnected,
			"auth_secret_ref": "",
			"updated_at":      time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.LocationId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationId is required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(db, orgId, req.LocationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		settings := EncodeSettings(req.Settings)
		if conn == nil {
			conn = &models.PosConnection{
				OrgId:        orgId,
				LocationId:   req.LocationId,
				Provider:     models.IntegrationProviderTably,
				Status:       models.IntegrationStatusDisconnected,
				SettingsJSON: settings,
			}
			if err := db.Create(conn).Error; err != nil {
				if isDuplicateKeyErr(err) {
					c.JSON(http.StatusConflict, gin.H{"error": "settings were updated concurrently, retry"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			if err := db.Model(conn).Updates(map[string]interface{}{
				"settings_json": settings,
				"updated_at":    time.Now(),
			}).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func MappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveOrg(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		locationId := 0
		if v := strings.TrimSpace(c.Query("location_id")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
				return
			}
			locationId = n
		}

		rows, err := models.GetMappings(c.Request.Context(), locationId, strings.TrimSpace(c.Query("mapping_type")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func UpdateMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveOrg(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input models.NewPosMappingSet
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		rows, err := models.ReplaceMappings(c.Request.Context(), input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.LocationId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationId is required"})
			return
		}

		var windowStart, windowEnd time.Time
		hasFrom := strings.TrimSpace(req.FromDate) != ""
		hasTo := strings.TrimSpace(req.ToDate) != ""
		if hasFrom != hasTo {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fromDate and toDate must be provided together"})
			return
		}
		if hasFrom {
			from, err := resolveBusinessDate(req.FromDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fromDate"})
				return
			}
			to, err := resolveBusinessDate(req.ToDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid toDate"})
				return
			}
			if to.Before(from) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "fromDate must not be after toDate"})
				return
			}
			windowStart = civilToTime(from)
			windowEnd = civilToTime(to)
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(db, orgId, req.LocationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.IntegrationStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "tably is not connected"})
			return
		}

		run := models.PosSyncRun{
			OrgId:        orgId,
			ConnectionId: conn.ID,
			LocationId:   conn.LocationId,
			Provider:     models.IntegrationProviderTably,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredManual,
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		dispatchSyncRun(c.Request.Context(), run)

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

// BackfillHandler streams backfill progress to the dashboard as server-sent
// events. The stream carries one progress event per frame and ends after the
// terminal complete or error event; closing the browser tab cancels the
// request context and with it the backfill.
func BackfillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		locationId, err := resolveLocationId(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "location_id is required"})
			return
		}

		months := 0
		if v := strings.TrimSpace(c.Query("months")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 24 {
				months = n
			}
		}

		ctx := c.Request.Context()
		db := config.GetDB().WithContext(ctx)
		conn, err := getConnection(db, orgId, locationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.IntegrationStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "tably is not connected"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		// The emitter never blocks the sync: when the consumer falls behind
		// the buffer, frames are dropped and the stream close remains the
		// definitive end-of-backfill signal.
		events := make(chan ProgressEvent, 64)
		go func() {
			defer close(events)
			_ = RunBackfill(ctx, *conn, months, func(ev ProgressEvent) {
				select {
				case events <- ev:
				default:
				}
			})
		}()

		c.Stream(func(w io.Writer) bool {
			ev, ok := <-events
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return true
		})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := c.Request.Context()
		db := config.GetDB().WithContext(ctx)

		dbCtx := db.Where("org_id = ? AND provider = ?", orgId, models.IntegrationProviderTably)
		if v := strings.TrimSpace(c.Query("location_id")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				dbCtx = dbCtx.Where("location_id = ?", n)
			}
		}

		var runs []models.PosSyncRun
		if err := dbCtx.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		locationNames := locationNameIndex(ctx)
		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run, locationNames))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB().WithContext(ctx)

		var run models.PosSyncRun
		if err := db.Where("id = ? AND org_id = ?", id, orgId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.PosSyncError
		if err := db.Where("sync_run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run, locationNameIndex(ctx)),
			Stats:           run.StatsJSON,
			Errors:          mapErrors(errs),
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgId, err := resolveOrg(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var run models.PosSyncRun
		if err := db.Where("id = ? AND org_id = ?", id, orgId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !run.IsTerminal() {
			c.JSON(http.StatusConflict, gin.H{"error": "run has not finished"})
			return
		}

		newRun := models.PosSyncRun{
			OrgId:        orgId,
			ConnectionId: run.ConnectionId,
			LocationId:   run.LocationId,
			Provider:     run.Provider,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredRetry,
			WindowStart:  run.WindowStart,
			WindowEnd:    run.WindowEnd,
			ParentRunId:  &run.ID,
		}
		if err := db.Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		dispatchSyncRun(c.Request.Context(), newRun)

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

func resolveOrg(c *gin.Context) (string, error) {
	orgId, ok := utils.GetOrgIdFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(orgId) == "" {
		return "", errors.New("unauthorized")
	}
	return orgId, nil
}

func resolveLocationId(c *gin.Context) (int, error) {
	locationId, err := strconv.Atoi(strings.TrimSpace(c.Query("location_id")))
	if err != nil || locationId <= 0 {
		return 0, errors.New("location_id is required")
	}
	return locationId, nil
}

func getConnection(db *gorm.DB, orgId string, locationId int) (*models.PosConnection, error) {
	var conn models.PosConnection
	err := db.Where("org_id = ? AND location_id = ? AND provider = ?", orgId, locationId, models.IntegrationProviderTably).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// locationNameIndex resolves location ids to display names for the history
// list. Best effort: a lookup failure leaves the names blank rather than
// failing the request.
func locationNameIndex(ctx context.Context) map[int]string {
	names := make(map[int]string)
	all, err := models.MapAllModel[models.Location, models.AllLocation](ctx)
	if err != nil {
		return names
	}
	for id, location := range all {
		if location != nil {
			names[id] = location.Name
		}
	}
	return names
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func mapRunToResponse(run models.PosSyncRun, locationNames map[int]string) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		Phase:         run.Phase,
		TriggeredBy:   run.TriggeredBy,
		LocationId:    run.LocationId,
		LocationName:  locationNames[run.LocationId],
		WindowStart:   formatDate(run.WindowStart),
		WindowEnd:     formatDate(run.WindowEnd),
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
	}
}

func mapErrors(errorsList []models.PosSyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:              errItem.ID,
			ExternalOrderId: errItem.ExternalOrderId,
			ErrorCode:       errItem.ErrorCode,
			Message:         errItem.Message,
		})
	}
	return out
}
