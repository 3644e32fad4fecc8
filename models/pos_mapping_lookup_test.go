package models_test

import (
	"testing"

	"github.com/platemetrics/analytics_backend/models"
)

func buildMappingSet() *models.MappingSet {
	set := models.NewMappingSet()
	set.Categories["cat-food"] = models.RevenueBucketFood
	set.RevenueCenters["rc-patio"] = models.DaypartDinner
	set.ServiceTypes["st-togo"] = models.ChannelToGo
	return set
}

func TestMappingSetLookupsAreCaseInsensitive(t *testing.T) {
	set := buildMappingSet()

	if got := set.BucketFor("CAT-Food"); got != models.RevenueBucketFood {
		t.Fatalf("BucketFor(CAT-Food) = %s, want %s", got, models.RevenueBucketFood)
	}
	if daypart, ok := set.DaypartFor("RC-PATIO"); !ok || daypart != models.DaypartDinner {
		t.Fatalf("DaypartFor(RC-PATIO) = %s/%v, want %s/true", daypart, ok, models.DaypartDinner)
	}
	if got := set.ChannelFor("ST-ToGo"); got != models.ChannelToGo {
		t.Fatalf("ChannelFor(ST-ToGo) = %s, want %s", got, models.ChannelToGo)
	}
}

func TestMappingSetUnmappedFallbacks(t *testing.T) {
	set := buildMappingSet()

	if got := set.BucketFor("never-seen"); got != models.RevenueBucketOther {
		t.Fatalf("unmapped category bucket = %s, want %s", got, models.RevenueBucketOther)
	}
	if _, ok := set.DaypartFor("never-seen"); ok {
		t.Fatal("unmapped revenue center should not resolve a daypart")
	}
	if got := set.ChannelFor("never-seen"); got != models.ChannelUnknown {
		t.Fatalf("unmapped service type channel = %s, want %s", got, models.ChannelUnknown)
	}

	// A freshly built set behaves the same as one with misses.
	empty := models.NewMappingSet()
	if got := empty.BucketFor("anything"); got != models.RevenueBucketOther {
		t.Fatalf("empty set bucket = %s, want %s", got, models.RevenueBucketOther)
	}
	if got := empty.ChannelFor("anything"); got != models.ChannelUnknown {
		t.Fatalf("empty set channel = %s, want %s", got, models.ChannelUnknown)
	}
}

func TestValidMappingTarget(t *testing.T) {
	cases := []struct {
		mappingType models.MappingType
		target      string
		want        bool
	}{
		{models.MappingTypeCategory, "food", true},
		{models.MappingTypeCategory, "non_alcoholic", true},
		{models.MappingTypeCategory, "lunch", false},
		{models.MappingTypeRevenueCenter, "late_night", true},
		{models.MappingTypeRevenueCenter, "unresolved", true},
		{models.MappingTypeRevenueCenter, "food", false},
		{models.MappingTypeServiceType, "delivery", true},
		{models.MappingTypeServiceType, "dine_in", true},
		{models.MappingTypeServiceType, "breakfast", false},
		{models.MappingType("order"), "food", false},
	}

	for _, tc := range cases {
		if got := models.ValidMappingTarget(tc.mappingType, tc.target); got != tc.want {
			t.Errorf("ValidMappingTarget(%s, %s) = %v, want %v", tc.mappingType, tc.target, got, tc.want)
		}
	}
}
