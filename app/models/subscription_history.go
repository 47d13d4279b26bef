package models

import (
	"fmt"
	"strings"
	"time"
)

// HistoryAction is the closed set of recordable subscription transitions.
// Unknown actions are rejected at the boundary, never silently mapped to a
// fallback value.
type HistoryAction string

const (
	HistoryCreated             HistoryAction = "created"
	HistoryTrialStarted        HistoryAction = "trial_started"
	HistoryActivated           HistoryAction = "activated"
	HistoryManualGrant         HistoryAction = "manual_grant"
	HistoryManualRevoke        HistoryAction = "manual_revoke"
	HistoryPlanChanged         HistoryAction = "plan_changed"
	HistoryManualExtension     HistoryAction = "manual_extension"
	HistoryNoteAdded           HistoryAction = "note_added"
	HistoryCancelled           HistoryAction = "cancelled"
	HistoryExpired             HistoryAction = "expired"
	HistoryPaymentCaptured     HistoryAction = "payment_captured"
	HistoryMandateCancelFailed HistoryAction = "mandate_cancel_failed"
	HistoryMandateCancelled    HistoryAction = "mandate_cancelled"
)

var knownHistoryActions = map[HistoryAction]struct{}{
	HistoryCreated: {}, HistoryTrialStarted: {}, HistoryActivated: {},
	HistoryManualGrant: {}, HistoryManualRevoke: {}, HistoryPlanChanged: {},
	HistoryManualExtension: {}, HistoryNoteAdded: {}, HistoryCancelled: {},
	HistoryExpired: {}, HistoryPaymentCaptured: {}, HistoryMandateCancelFailed: {},
	HistoryMandateCancelled: {},
}

// ParseHistoryAction validates a raw action value.
func ParseHistoryAction(raw string) (HistoryAction, error) {
	a := HistoryAction(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownHistoryActions[a]; !ok {
		return "", fmt.Errorf("unknown history action %q", raw)
	}
	return a, nil
}

// SubscriptionHistory is the append-only transition trail on a subscription.
type SubscriptionHistory struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	SubscriptionID uint          `gorm:"not null;index" json:"subscription_id"`
	Action         HistoryAction `gorm:"type:varchar(40);not null" json:"action"`
	Actor          string        `gorm:"type:varchar(100);not null;default:'system'" json:"actor"`
	Note           string        `gorm:"type:text" json:"note"`
	CreatedAt      time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
}
