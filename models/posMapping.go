package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/utils"
)

// PosMapping translates raw Tably ids into dashboard dimensions. One table
// holds all three mapping kinds, discriminated by MappingType:
// category -> revenue bucket, revenue_center -> daypart, service_type -> channel.
type PosMapping struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	OrgId       string    `gorm:"uniqueIndex:idx_pos_mapping,priority:1;size:64;not null" json:"org_id"`
	LocationId  int       `gorm:"uniqueIndex:idx_pos_mapping,priority:2;not null" json:"location_id"`
	MappingType string    `gorm:"uniqueIndex:idx_pos_mapping,priority:3;size:50;not null" json:"mapping_type"`
	SourceValue string    `gorm:"uniqueIndex:idx_pos_mapping,priority:4;size:128;not null" json:"source_value"`
	TargetValue string    `gorm:"size:64;not null" json:"target_value"`
	Label       string    `gorm:"size:255" json:"label"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m PosMapping) GetOrgId() string {
	return m.OrgId
}

type NewPosMappingEntry struct {
	SourceValue string `json:"source_value" binding:"required"`
	TargetValue string `json:"target_value" binding:"required"`
	Label       string `json:"label"`
}

type NewPosMappingSet struct {
	LocationId  int                  `json:"location_id" binding:"required"`
	MappingType string               `json:"mapping_type" binding:"required"`
	Entries     []NewPosMappingEntry `json:"entries" binding:"dive"`
}

func (input *NewPosMappingSet) validate(ctx context.Context, orgId string) error {

	if !MappingType(input.MappingType).IsValid() {
		return fmt.Errorf("invalid mapping type: %s", input.MappingType)
	}
	if err := utils.ValidateResourceId[Location](ctx, orgId, input.LocationId); err != nil {
		return errors.New("location not found")
	}

	seen := make(map[string]bool, len(input.Entries))
	for _, entry := range input.Entries {
		source := strings.ToLower(strings.TrimSpace(entry.SourceValue))
		if source == "" {
			return errors.New("source value cannot be blank")
		}
		if seen[source] {
			return fmt.Errorf("duplicate source value: %s", entry.SourceValue)
		}
		seen[source] = true
		if !ValidMappingTarget(MappingType(input.MappingType), entry.TargetValue) {
			return fmt.Errorf("invalid target %s for mapping type %s", entry.TargetValue, input.MappingType)
		}
	}

	return nil
}

// ReplaceMappings swaps out the whole mapping list of one type for a location.
// Partial edits are not supported on purpose: the dashboard settings page
// always submits the full list, so replace keeps db and UI trivially in sync.
func ReplaceMappings(ctx context.Context, input NewPosMappingSet) ([]PosMapping, error) {

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	if err := input.validate(ctx, orgId); err != nil {
		return nil, err
	}

	rows := make([]PosMapping, 0, len(input.Entries))
	for _, entry := range input.Entries {
		rows = append(rows, PosMapping{
			OrgId:       orgId,
			LocationId:  input.LocationId,
			MappingType: input.MappingType,
			SourceValue: strings.ToLower(strings.TrimSpace(entry.SourceValue)),
			TargetValue: entry.TargetValue,
			Label:       entry.Label,
		})
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).
		Where("org_id = ? AND location_id = ? AND mapping_type = ?", orgId, input.LocationId, input.MappingType).
		Delete(&PosMapping{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(rows) > 0 {
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisList[PosMapping](orgId); err != nil {
		return nil, err
	}

	return rows, nil
}

func GetMappings(ctx context.Context, locationId int, mappingType string) ([]PosMapping, error) {

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	var results []PosMapping
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("org_id = ?", orgId)
	if locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", locationId)
	}
	if mappingType != "" {
		dbCtx = dbCtx.Where("mapping_type = ?", mappingType)
	}
	if err := dbCtx.Order("mapping_type").Order("source_value").Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

// MappingSet is the in-memory view of one location's mapping rows, loaded once
// per sync run. Lookups are case-insensitive and never fail: an unmapped id
// falls back to the catch-all value instead of erroring the order.
type MappingSet struct {
	Categories     map[string]RevenueBucket
	RevenueCenters map[string]Daypart
	ServiceTypes   map[string]Channel
}

func NewMappingSet() *MappingSet {
	return &MappingSet{
		Categories:     make(map[string]RevenueBucket),
		RevenueCenters: make(map[string]Daypart),
		ServiceTypes:   make(map[string]Channel),
	}
}

func (m *MappingSet) BucketFor(categoryId string) RevenueBucket {
	if bucket, ok := m.Categories[strings.ToLower(categoryId)]; ok {
		return bucket
	}
	return RevenueBucketOther
}

func (m *MappingSet) DaypartFor(revenueCenterId string) (Daypart, bool) {
	daypart, ok := m.RevenueCenters[strings.ToLower(revenueCenterId)]
	return daypart, ok
}

func (m *MappingSet) ChannelFor(serviceTypeId string) Channel {
	if channel, ok := m.ServiceTypes[strings.ToLower(serviceTypeId)]; ok {
		return channel
	}
	return ChannelUnknown
}

// LoadMappingSet reads the org's mapping rows (redis first, then db) and
// builds the lookup maps for one location.
func LoadMappingSet(ctx context.Context, orgId string, locationId int) (*MappingSet, error) {

	rows, err := utils.RetrieveRedisList[PosMapping](orgId)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).
			Where("org_id = ?", orgId).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[PosMapping](rows, orgId); err != nil {
			return nil, err
		}
	}

	set := NewMappingSet()
	for _, row := range rows {
		if row.LocationId != locationId {
			continue
		}
		source := strings.ToLower(row.SourceValue)
		switch MappingType(row.MappingType) {
		case MappingTypeCategory:
			set.Categories[source] = RevenueBucket(row.TargetValue)
		case MappingTypeRevenueCenter:
			set.RevenueCenters[source] = Daypart(row.TargetValue)
		case MappingTypeServiceType:
			set.ServiceTypes[source] = Channel(row.TargetValue)
		}
	}

	return set, nil
}
