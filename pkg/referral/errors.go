package referral

import "errors"

var (
	// ErrInvalidReferrer means the referrer address is malformed, zero, or
	// the wallet's own address. Rejected locally, before any network call.
	ErrInvalidReferrer = errors.New("invalid referrer address")

	// ErrAlreadyBound means the wallet already has a referrer. Binding is
	// permanent.
	ErrAlreadyBound = errors.New("wallet is already bound to a referrer")

	// ErrInsufficientBalance means accrued rewards are below the claim
	// threshold.
	ErrInsufficientBalance = errors.New("accrued rewards below claim threshold")

	// ErrAlreadyClaimed means the reward was claimed before.
	ErrAlreadyClaimed = errors.New("reward already claimed")

	// ErrNoReferralContract means the active chain has no referral
	// contract configured.
	ErrNoReferralContract = errors.New("chain has no referral contract")
)
