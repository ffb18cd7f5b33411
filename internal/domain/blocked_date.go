package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// BlockedDate closes one calendar date for new events in one zone
type BlockedDate struct {
	ID             int64      `json:"id"`
	ContractZoneID int64      `json:"contract_zone_id"`
	Date           civil.Date `json:"date"`
	Reason         string     `json:"reason"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
}
