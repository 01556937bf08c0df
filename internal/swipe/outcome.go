package swipe

import "fmt"

// Direction is the swipe gesture.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection converts a raw string to a Direction, returning an error
// for unknown values.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	switch d {
	case Left, Right:
		return d, nil
	}
	return "", fmt.Errorf("unknown swipe direction %q", s)
}

// Result enumerates everything a caller can observe from a swipe.
type Result string

const (
	Committed         Result = "committed"
	Skipped           Result = "skipped"
	QuotaExceeded     Result = "quota_exceeded"
	InsufficientFunds Result = "insufficient_funds"
	AlreadyUnlocked   Result = "already_unlocked"
	Rejected          Result = "rejected"
)

// Rejection reasons.
const (
	ReasonBadDirection    = "unknown swipe direction"
	ReasonViewerNotFound  = "viewer not found"
	ReasonViewerInactive  = "viewer is deactivated"
	ReasonListingNotFound = "listing not found"
	ReasonWrongKind       = "listing is not swipeable by this role"
	ReasonNotOpen         = "listing is no longer open"
	ReasonOwnListing      = "cannot swipe your own listing"
	ReasonStorage         = "storage unavailable"
	ReasonConflict        = "conflicting update, refresh and retry"
)

// Request is one swipe against an explicit listing.
type Request struct {
	ViewerID       uint
	ListingID      uint
	Direction      Direction
	IdempotencyKey string
}

// Outcome is the only thing the processor returns. A non-committed outcome
// guarantees nothing in the ledger changed.
type Outcome struct {
	Result        Result `json:"result"`
	Reason        string `json:"reason,omitempty"`
	Cost          int64  `json:"cost"`
	WalletBalance *int64 `json:"walletBalance,omitempty"`
	QuotaUsed     *int   `json:"quotaUsed,omitempty"`
	QuotaLimit    *int   `json:"quotaLimit,omitempty"`
	Replayed      bool   `json:"replayed,omitempty"`
}

// Committed reports whether the swipe changed the ledger.
func (o Outcome) Committed() bool { return o.Result == Committed }

func rejected(reason string) Outcome {
	return Outcome{Result: Rejected, Reason: reason}
}

func (o Outcome) withWallet(balance int64) Outcome {
	o.WalletBalance = &balance
	return o
}

func (o Outcome) withQuota(used, limit int) Outcome {
	o.QuotaUsed = &used
	o.QuotaLimit = &limit
	return o
}
