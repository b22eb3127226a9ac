package models

import (
	"time"
)

// SecurityDecision stores a hard block served by the engine or applied by an
// operator so it can be surfaced next to the event log.
type SecurityDecision struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Source    string    `json:"source"` // auto, admin, intel, blocklist
	Action    string    `json:"action"` // block
	IP        string    `json:"ip" gorm:"index"`
	Host      string    `json:"host"`
	Category  string    `json:"category"`
	Pattern   string    `json:"pattern"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
