package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IdentityInfo is the identity registry's answer for a subject.
type IdentityInfo struct {
	Exists  bool   `json:"exists"`
	TokenID uint64 `json:"token_id,omitempty"`
}

// ReputationInfo is the reputation registry's answer for a subject.
// Score is on a 0-100 scale.
type ReputationInfo struct {
	Score        int       `json:"score"`
	Interactions uint64    `json:"interactions"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Validation is one typed attestation from the validation registry.
type Validation struct {
	Type  string `json:"type"`
	Valid bool   `json:"valid"`
}

// TrustVerdict is the result of resolving a counterparty's identity,
// reputation and validation signals. Reasons is never empty: a trusted
// verdict explains why it was allowed just as a rejection explains why not.
type TrustVerdict struct {
	Subject     common.Address  `json:"subject"`
	IsTrusted   bool            `json:"is_trusted"`
	Identity    *IdentityInfo   `json:"identity,omitempty"`
	Reputation  *ReputationInfo `json:"reputation,omitempty"`
	Validations []Validation    `json:"validations,omitempty"`
	Reasons     []string        `json:"reasons"`
	CheckedAt   time.Time       `json:"checked_at"`
}

// TrustCacheEntry pairs a verdict with its cache bookkeeping.
// ExpiresAt is always StoredAt + ttl; an expired entry is never served.
type TrustCacheEntry struct {
	Subject   common.Address `json:"subject"`
	Verdict   TrustVerdict   `json:"verdict"`
	StoredAt  time.Time      `json:"stored_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}
