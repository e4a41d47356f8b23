package enums

import "fmt"

// PayoutLedgerStatus tracks the outcome of an escrow payout attempt.
type PayoutLedgerStatus string

const (
	PayoutLedgerStatusCompleted PayoutLedgerStatus = "completed"
	PayoutLedgerStatusFailed    PayoutLedgerStatus = "failed"
)

var validPayoutLedgerStatuses = []PayoutLedgerStatus{
	PayoutLedgerStatusCompleted,
	PayoutLedgerStatusFailed,
}

// String implements fmt.Stringer.
func (s PayoutLedgerStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutLedgerStatus.
func (s PayoutLedgerStatus) IsValid() bool {
	for _, candidate := range validPayoutLedgerStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayoutLedgerStatus converts raw input into a PayoutLedgerStatus.
func ParsePayoutLedgerStatus(value string) (PayoutLedgerStatus, error) {
	for _, candidate := range validPayoutLedgerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout ledger status %q", value)
}

// ItemPayoutStatus tracks per-line-item payout progress.
type ItemPayoutStatus string

const (
	ItemPayoutStatusPending ItemPayoutStatus = "pending"
	ItemPayoutStatusPaid    ItemPayoutStatus = "paid"
	ItemPayoutStatusFailed  ItemPayoutStatus = "failed"
)

var validItemPayoutStatuses = []ItemPayoutStatus{
	ItemPayoutStatusPending,
	ItemPayoutStatusPaid,
	ItemPayoutStatusFailed,
}

// String implements fmt.Stringer.
func (s ItemPayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ItemPayoutStatus.
func (s ItemPayoutStatus) IsValid() bool {
	for _, candidate := range validItemPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
