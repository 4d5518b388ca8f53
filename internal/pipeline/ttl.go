package pipeline

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of one evaluation.
type Outcome string

const (
	// OutcomeInvalid: the candidate lacked a chain or address.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeSkipped: a live ledger entry or a lost claim.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRejected: a present metric violated a threshold.
	OutcomeRejected Outcome = "rejected"
	// OutcomeMissingData: the filter failed only because metrics were absent.
	OutcomeMissingData Outcome = "missing_data"
	// OutcomeArithmeticInvalid: total supply was zero or negative.
	OutcomeArithmeticInvalid Outcome = "arithmetic_invalid"
	// OutcomeDelivered: the alert was delivered.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDeliveryFailed: the alert could not be delivered; the claim was released.
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	// OutcomeError: evaluation panicked; the claim was released.
	OutcomeError Outcome = "error"
)

// TTLPolicy maps outcomes onto ledger TTLs.
type TTLPolicy struct {
	Lease             time.Duration // written by the initial claim
	Rejected          time.Duration
	MissingData       time.Duration
	ArithmeticInvalid time.Duration
	Delivered         time.Duration
}

// DefaultTTLPolicy returns the default TTLs. Rejected and delivered tokens
// are suppressed for a day; incomplete data is re-checked after five minutes.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Lease:             2 * time.Minute,
		Rejected:          24 * time.Hour,
		MissingData:       5 * time.Minute,
		ArithmeticInvalid: 5 * time.Minute,
		Delivered:         24 * time.Hour,
	}
}

// For returns the TTL to mark for outcome, or false when the outcome does
// not leave a mark.
func (p TTLPolicy) For(outcome Outcome) (time.Duration, bool) {
	switch outcome {
	case OutcomeRejected:
		return p.Rejected, true
	case OutcomeMissingData:
		return p.MissingData, true
	case OutcomeArithmeticInvalid:
		return p.ArithmeticInvalid, true
	case OutcomeDelivered:
		return p.Delivered, true
	}
	return 0, false
}

// Validate checks that every TTL is positive.
func (p TTLPolicy) Validate() error {
	for name, d := range map[string]time.Duration{
		"lease":              p.Lease,
		"rejected":           p.Rejected,
		"missing_data":       p.MissingData,
		"arithmetic_invalid": p.ArithmeticInvalid,
		"delivered":          p.Delivered,
	} {
		if d <= 0 {
			return fmt.Errorf("ttl %s must be positive, got %s", name, d)
		}
	}
	return nil
}

// CheckLease fails unless the lease outlives a whole evaluation: the token
// deadline, the detached mark or release, and one more ledger timeout of
// slack. A shorter lease can expire mid-evaluation and let a second worker
// claim and dispatch the same token.
func (p TTLPolicy) CheckLease(tokenDeadline, ledgerTimeout time.Duration) error {
	if floor := tokenDeadline + 2*ledgerTimeout; p.Lease <= floor {
		return fmt.Errorf("ttl lease %s must exceed token deadline %s plus two ledger timeouts %s (%s)",
			p.Lease, tokenDeadline, ledgerTimeout, floor)
	}
	return nil
}
