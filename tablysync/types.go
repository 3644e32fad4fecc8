package tablysync

import "encoding/json"

// Raw Tably order payloads. Money fields arrive as json.Number so amounts
// never round-trip through float64.
type tablyOrder struct {
	ID              string           `json:"id"`
	BusinessDate    string           `json:"business_date"`
	OpenedAt        string           `json:"opened_at"`
	ClosedAt        string           `json:"closed_at"`
	GuestCount      int              `json:"guest_count"`
	RevenueCenterId string           `json:"revenue_center_id"`
	ServiceTypeId   string           `json:"service_type_id"`
	IsTraining      bool             `json:"is_training"`
	IsTest          bool             `json:"is_test"`
	Voided          bool             `json:"voided"`
	VoidAmount      json.Number      `json:"void_amount"`
	RefundAmount    json.Number      `json:"refund_amount"`
	CompAmount      json.Number      `json:"comp_amount"`
	DiscountAmount  json.Number      `json:"discount_amount"`
	Lines           []tablyOrderLine `json:"lines"`
	Tenders         []tablyTender    `json:"tenders"`
}

type tablyOrderLine struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	CategoryId     string      `json:"category_id"`
	Quantity       json.Number `json:"quantity"`
	GrossAmount    json.Number `json:"gross_amount"`
	DiscountAmount json.Number `json:"discount_amount"`
	Voided         bool        `json:"voided"`
}

type tablyTender struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Amount    json.Number `json:"amount"`
	TipAmount json.Number `json:"tip_amount"`
}

// ConnectionSettings is the per-connection settings blob stored on the
// connection row.
type ConnectionSettings struct {
	AutoSyncEnabled bool `json:"autoSyncEnabled"`
	BackfillMonths  int  `json:"backfillMonths"`
}

func DefaultSettings() ConnectionSettings {
	return ConnectionSettings{
		AutoSyncEnabled: true,
		BackfillMonths:  12,
	}
}

func NormalizeSettings(settings ConnectionSettings) ConnectionSettings {
	if settings.BackfillMonths <= 0 || settings.BackfillMonths > 24 {
		settings.BackfillMonths = 12
	}
	return settings
}

func DecodeSettings(raw []byte) ConnectionSettings {
	if len(raw) == 0 {
		return DefaultSettings()
	}
	var settings ConnectionSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSettings()
	}
	return NormalizeSettings(settings)
}

func EncodeSettings(settings ConnectionSettings) []byte {
	b, _ := json.Marshal(NormalizeSettings(settings))
	return b
}

type ConnectRequest struct {
	LocationId   int    `json:"locationId"`
	MerchantId   string `json:"merchantId"`
	MerchantName string `json:"merchantName"`
	APIKey       string `json:"apiKey"`
}

type UpdateSettingsRequest struct {
	LocationId int                `json:"locationId"`
	Settings   ConnectionSettings `json:"settings"`
}

type TriggerSyncRequest struct {
	LocationId int    `json:"locationId"`
	FromDate   string `json:"fromDate"`
	ToDate     string `json:"toDate"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSyncStatus    string             `json:"lastSyncStatus"`
	LastSyncError     string             `json:"lastSyncError"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
	Settings          ConnectionSettings `json:"settings"`
}

type ConnectionResponse struct {
	Status       string `json:"status"`
	LocationId   int    `json:"locationId"`
	MerchantId   string `json:"merchantId"`
	MerchantName string `json:"merchantName"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	Phase         string  `json:"phase"`
	TriggeredBy   string  `json:"triggeredBy"`
	LocationId    int     `json:"locationId"`
	LocationName  string  `json:"locationName,omitempty"`
	WindowStart   string  `json:"windowStart"`
	WindowEnd     string  `json:"windowEnd"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Stats  json.RawMessage     `json:"stats,omitempty"`
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID              uint   `json:"id"`
	ExternalOrderId string `json:"externalOrderId"`
	ErrorCode       string `json:"errorCode"`
	Message         string `json:"message"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId        uint   `json:"run_id"`
	OrgId        string `json:"org_id"`
	ConnectionId uint   `json:"connection_id"`
}
