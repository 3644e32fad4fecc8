package models

import (
	"gorm.io/gorm"
)

// Cache invalidation lives in gorm hooks so every write path clears the
// cached location list/map, not just the handlers that remember to.
// ToggleActiveLocation uses UpdateColumn (no hooks) and clears explicitly.

func (l *Location) AfterCreate(tx *gorm.DB) (err error) {
	return l.RemoveAllRedis()
}

func (l *Location) BeforeUpdate(tx *gorm.DB) (err error) {
	return RemoveRedisBoth(l)
}

func (l *Location) AfterDelete(tx *gorm.DB) (err error) {
	return RemoveRedisBoth(l)
}
