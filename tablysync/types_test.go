package tablysync

import "testing"

func TestDecodeSettingsDefaults(t *testing.T) {
	settings := DecodeSettings(nil)
	if !settings.AutoSyncEnabled || settings.BackfillMonths != 12 {
		t.Fatalf("empty blob should decode to defaults, got %+v", settings)
	}

	// A connection row with an unreadable blob must still sync.
	settings = DecodeSettings([]byte("{not json"))
	if !settings.AutoSyncEnabled || settings.BackfillMonths != 12 {
		t.Fatalf("unreadable blob should decode to defaults, got %+v", settings)
	}
}

func TestDecodeSettingsClampsBackfillMonths(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"autoSyncEnabled":false,"backfillMonths":6}`, 6},
		{`{"autoSyncEnabled":true,"backfillMonths":24}`, 24},
		{`{"autoSyncEnabled":true,"backfillMonths":0}`, 12},
		{`{"autoSyncEnabled":true,"backfillMonths":-3}`, 12},
		{`{"autoSyncEnabled":true,"backfillMonths":48}`, 12},
	}

	for _, tc := range cases {
		settings := DecodeSettings([]byte(tc.raw))
		if settings.BackfillMonths != tc.want {
			t.Errorf("DecodeSettings(%s).BackfillMonths = %d, want %d", tc.raw, settings.BackfillMonths, tc.want)
		}
	}
}

func TestDecodeSettingsPreservesAutoSyncFlag(t *testing.T) {
	settings := DecodeSettings([]byte(`{"autoSyncEnabled":false,"backfillMonths":3}`))
	if settings.AutoSyncEnabled {
		t.Fatal("autoSyncEnabled=false should survive decoding")
	}
}
