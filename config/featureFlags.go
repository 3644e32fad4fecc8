package config

import (
	"os"
	"strings"
)

// ArchiveOrderPayloads enables archiving of raw provider order pages to GCS
// before classification. Pages are replayable for backfill audits.
//
// Set via env:
// - ARCHIVE_ORDER_PAYLOADS=true (bucket comes from TABLY_ARCHIVE_BUCKET)
func ArchiveOrderPayloads() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ARCHIVE_ORDER_PAYLOADS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// UseSyncDispatchFor enables incremental migration from inline sync goroutines
// to Pub/Sub push-based workers, per POS provider.
//
// Set via env:
// - SYNC_DISPATCH_PROVIDERS="TABLY,SQUARE,TOAST"
//
// Provider keys are case-insensitive.
func UseSyncDispatchFor(provider string) bool {
	provider = strings.ToUpper(strings.TrimSpace(provider))
	if provider == "" {
		return false
	}
	raw := os.Getenv("SYNC_DISPATCH_PROVIDERS")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == provider {
			return true
		}
	}
	return false
}
