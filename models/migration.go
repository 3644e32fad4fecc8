package models

import (
	"log"

	"github.com/platemetrics/analytics_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Location{},
		&PosConnection{}, &PosSyncRun{}, &PosSyncError{},
		&PosMapping{},
		&DailySalesFact{}, &DaypartSalesFact{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
