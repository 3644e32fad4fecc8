package models

import "time"

const (
	IntegrationProviderTably = "tably"
)

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

// Sync phases, in pipeline order. Persisted on the run row so a stuck or
// failed run shows how far it got.
const (
	SyncPhaseFetching    = "fetching"
	SyncPhaseClassifying = "classifying"
	SyncPhaseAggregating = "aggregating"
	SyncPhasePersisting  = "persisting"
	SyncPhaseDone        = "done"
)

const (
	SyncTriggeredManual   = "manual"
	SyncTriggeredSchedule = "schedule"
	SyncTriggeredBackfill = "backfill"
	SyncTriggeredRetry    = "retry"
)

const (
	LastSyncStatusSuccess = "success"
	LastSyncStatusFailed  = "failed"
)

type PosConnection struct {
	ID            uint   `gorm:"primary_key" json:"id"`
	OrgId         string `gorm:"uniqueIndex:idx_pos_connection,priority:1;size:64;not null" json:"org_id"`
	LocationId    int    `gorm:"uniqueIndex:idx_pos_connection,priority:2;not null" json:"location_id"`
	Provider      string `gorm:"uniqueIndex:idx_pos_connection,priority:3;size:50;not null" json:"provider"`
	Status        string `gorm:"size:20;not null" json:"status"`
	AuthSecretRef string `gorm:"type:text" json:"auth_secret_ref"`
	MerchantId    string `gorm:"size:100" json:"merchant_id"`
	MerchantName  string `gorm:"size:255" json:"merchant_name"`
	SettingsJSON  []byte `gorm:"type:json" json:"settings"`

	// Sync health state. Written exactly once at the end of every sync
	// attempt; a success clears LastSyncError.
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSyncStatus    string     `gorm:"size:20" json:"last_sync_status"`
	LastSyncError     string     `gorm:"type:text" json:"last_sync_error"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c PosConnection) GetOrgId() string {
	return c.OrgId
}

type PosSyncRun struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	OrgId        string    `gorm:"index;size:64;not null" json:"org_id"`
	ConnectionId uint      `gorm:"index;not null" json:"connection_id"`
	LocationId   int       `gorm:"index;not null" json:"location_id"`
	Provider     string    `gorm:"index;size:50;not null" json:"provider"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	Phase        string    `gorm:"size:20" json:"phase"`
	TriggeredBy  string    `gorm:"size:20" json:"triggered_by"`
	WindowStart  time.Time `gorm:"type:date" json:"window_start"`
	WindowEnd    time.Time `gorm:"type:date" json:"window_end"`

	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r PosSyncRun) IsTerminal() bool {
	return r.Status == SyncRunStatusSuccess ||
		r.Status == SyncRunStatusFailed ||
		r.Status == SyncRunStatusPartial
}

type PosSyncError struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	SyncRunId       uint      `gorm:"index;not null" json:"sync_run_id"`
	OrgId           string    `gorm:"index;size:64;not null" json:"org_id"`
	ExternalOrderId string    `gorm:"size:128" json:"external_order_id"`
	ErrorCode       string    `gorm:"size:64" json:"error_code"`
	Message         string    `gorm:"type:text" json:"message"`
	PayloadJSON     []byte    `gorm:"type:json" json:"payload"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
