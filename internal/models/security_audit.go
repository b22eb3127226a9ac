package models

import (
	"time"
)

// SecurityAudit records an operator action taken through the Sentinel control
// plane (block, unblock, allow, unallow, resync).
type SecurityAudit struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action" gorm:"index"`
	Target    string    `json:"target"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
