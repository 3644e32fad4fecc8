package models

import (
	"context"
	"errors"
	"time"

	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/utils"
)

type Location struct {
	ID       int    `gorm:"primary_key" json:"id"`
	OrgId    string `gorm:"index;size:64;not null" json:"org_id"`
	Name     string `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Timezone string `gorm:"size:64;not null;default:'America/New_York'" json:"timezone"`
	// ServiceDayStartHour is the local hour the trading day rolls over.
	// Display only: business dates always come from the POS provider.
	ServiceDayStartHour int       `gorm:"not null;default:5" json:"service_day_start_hour"`
	Address             string    `gorm:"type:text" json:"address"`
	City                string    `gorm:"size:100" json:"city"`
	Country             string    `gorm:"size:100" json:"country"`
	IsActive            *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l Location) GetOrgId() string {
	return l.OrgId
}

type NewLocation struct {
	Name                string `json:"name" binding:"required"`
	Timezone            string `json:"timezone"`
	ServiceDayStartHour int    `json:"service_day_start_hour"`
	Address             string `json:"address"`
	City                string `json:"city"`
	Country             string `json:"country"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewLocation) validate(ctx context.Context, orgId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Location](ctx, orgId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Location](ctx, orgId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return errors.New("invalid timezone")
		}
	}
	if input.ServiceDayStartHour < 0 || input.ServiceDayStartHour > 23 {
		return errors.New("service day start hour must be 0-23")
	}
	return nil
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	if err := input.validate(ctx, orgId, 0); err != nil {
		return nil, err
	}

	timezone := input.Timezone
	if timezone == "" {
		timezone = "America/New_York"
	}

	location := Location{
		OrgId:               orgId,
		Name:                input.Name,
		Timezone:            timezone,
		ServiceDayStartHour: input.ServiceDayStartHour,
		Address:             input.Address,
		City:                input.City,
		Country:             input.Country,
		IsActive:            utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&location).Error
	if err != nil {
		return nil, err
	}

	return &location, nil
}

func UpdateLocation(ctx context.Context, id int, input *NewLocation) (*Location, error) {

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	if err := input.validate(ctx, orgId, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[Location](ctx, orgId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"Name":                input.Name,
		"Timezone":            input.Timezone,
		"ServiceDayStartHour": input.ServiceDayStartHour,
		"Address":             input.Address,
		"City":                input.City,
		"Country":             input.Country,
	}).Error
	if err != nil {
		return nil, err
	}

	return location, nil
}

func GetLocation(ctx context.Context, id int) (*Location, error) {

	return GetResource[Location](ctx, id)
}

func GetLocations(ctx context.Context, name *string) ([]*Location, error) {
	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	db := config.GetDB()
	var results []*Location

	dbCtx := db.WithContext(ctx).Where("org_id = ?", orgId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%").Limit(config.SearchLimit)
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveLocation(ctx context.Context, id int, isActive bool) (*Location, error) {
	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}
	if !isActive {
		// a location with a connected integration keeps syncing; force
		// disconnect first
		db := config.GetDB()
		var count int64
		if err := db.WithContext(ctx).Model(&PosConnection{}).
			Where("location_id = ? AND status = ?", id, IntegrationStatusConnected).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("disconnect the POS integration before deactivating the location")
		}
	}
	return ToggleActiveModel[Location](ctx, orgId, id, isActive)
}
