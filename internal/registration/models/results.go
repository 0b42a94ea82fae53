package models

import (
	"time"

	id "onboard/pkg/domain"
)

type StageResult struct {
	SessionID id.SessionID `json:"session_id"`
	Status    Status       `json:"status"`
	NextStep  string       `json:"next_step"`
	ExpiresAt time.Time    `json:"expires_at"`
	Resumed   bool         `json:"resumed"`
}

type VerifyResult struct {
	Status      Status          `json:"status"`
	AffiliateID *id.AffiliateID `json:"affiliate_id,omitempty"`
	NextStep    string          `json:"next_step"`
}

type ApprovalResult struct {
	Status           Status    `json:"status"`
	Action           Action    `json:"action"`
	ProcessedAt      time.Time `json:"processed_at"`
	AlreadyProcessed bool      `json:"already_processed"`
}
