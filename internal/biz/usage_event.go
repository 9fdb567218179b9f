package biz

import "time"

// UsageEvent is the message sent to RocketMQ for asynchronous batch processing
type UsageEvent struct {
	RecordID       string    `json:"record_id"`
	UserID         string    `json:"user_id"`
	ServiceType    string    `json:"service_type"`
	ResourceID     string    `json:"resource_id"`
	CharacterCount int64     `json:"character_count"`
	CostCents      int64     `json:"cost_cents"`
	WasOverage     bool      `json:"was_overage"`
	RecordedAt     time.Time `json:"recorded_at"`
	Month          string    `json:"month"` // Used to identify which month's counters/record this belongs to
}
