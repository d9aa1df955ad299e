package trust

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/logger"
	"github.com/agentvault/vaultgate/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// Policy configures which trust signals are required and how strictly.
type Policy struct {
	RequireIdentity    bool
	MinReputationScore int
	RequireValidation  bool

	// AllowList subjects are trusted without consulting any registry;
	// DenyList subjects are rejected the same way. Deny wins over allow.
	AllowList map[common.Address]bool
	DenyList  map[common.Address]bool

	// FailOpenWhenUnconfigured controls behavior when no registry is
	// wired: trust by default with an explicit reason, or reject.
	FailOpenWhenUnconfigured bool
}

// Resolver evaluates counterparties against the policy, consulting the
// three registries concurrently and caching verdicts.
type Resolver struct {
	identity   IdentityRegistry
	reputation ReputationRegistry
	validation ValidationRegistry

	policy Policy
	cache  *Cache
	now    func() time.Time
}

// NewResolver builds a resolver. Any registry may be nil; a fully
// unregistered resolver falls back per the policy's fail-open setting.
func NewResolver(identity IdentityRegistry, reputation ReputationRegistry, validation ValidationRegistry, policy Policy, cache *Cache) *Resolver {
	return &Resolver{
		identity:   identity,
		reputation: reputation,
		validation: validation,
		policy:     policy,
		cache:      cache,
		now:        time.Now,
	}
}

// SetClock replaces the resolver's time source.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Cache exposes the verdict cache for invalidation and state export.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// CheckTrust resolves a verdict for subject. The cache is consulted
// first; fromCache reports whether the verdict was served from it.
// Every configured requirement is evaluated even after the first
// failure, so Reasons lists everything wrong at once.
func (r *Resolver) CheckTrust(ctx context.Context, subject common.Address) (verdict *model.TrustVerdict, fromCache bool, err error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(subject); ok {
			metrics.TrustCacheHits.WithLabelValues("hit").Inc()
			return cached, true, nil
		}
		metrics.TrustCacheHits.WithLabelValues("miss").Inc()
	}

	v := r.evaluate(ctx, subject)

	if v.IsTrusted {
		metrics.TrustChecks.WithLabelValues("trusted").Inc()
	} else {
		metrics.TrustChecks.WithLabelValues("untrusted").Inc()
	}
	if r.cache != nil {
		r.cache.Set(subject, *v)
	}
	return v, false, nil
}

func (r *Resolver) evaluate(ctx context.Context, subject common.Address) *model.TrustVerdict {
	v := &model.TrustVerdict{
		Subject:   subject,
		CheckedAt: r.now(),
	}

	// 1. Deny list wins over everything, allow list included.
	if r.policy.DenyList[subject] {
		v.IsTrusted = false
		v.Reasons = append(v.Reasons, "recipient is explicitly denied by policy")
		return v
	}

	// 2. Allow-listed subjects skip registry resolution entirely.
	if r.policy.AllowList[subject] {
		v.IsTrusted = true
		v.Reasons = append(v.Reasons, "recipient is explicitly allowed by policy")
		return v
	}

	// 3. No registries wired: fall back per policy.
	if r.identity == nil && r.reputation == nil && r.validation == nil {
		if r.policy.FailOpenWhenUnconfigured {
			v.IsTrusted = true
			v.Reasons = append(v.Reasons, "no trust registries configured, trusting by default")
		} else {
			v.IsTrusted = false
			v.Reasons = append(v.Reasons, "no trust registries configured and fail-open is disabled")
		}
		return v
	}

	// 4. Resolve all three signals concurrently. A registry that errors
	// contributes an empty result, never a failed check on its own.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		v.Identity = r.resolveIdentity(ctx, subject)
	}()
	go func() {
		defer wg.Done()
		v.Reputation = r.resolveReputation(ctx, subject)
	}()
	go func() {
		defer wg.Done()
		v.Validations = r.resolveValidations(ctx, subject)
	}()
	wg.Wait()

	// 5. Apply every configured requirement.
	v.IsTrusted = true

	if r.policy.RequireIdentity {
		if v.Identity != nil && v.Identity.Exists {
			v.Reasons = append(v.Reasons, fmt.Sprintf("identity verified (token %d)", v.Identity.TokenID))
		} else {
			v.IsTrusted = false
			v.Reasons = append(v.Reasons, "identity required but not found in registry")
		}
	}

	if r.policy.MinReputationScore > 0 {
		switch {
		case v.Reputation == nil:
			v.IsTrusted = false
			v.Reasons = append(v.Reasons, fmt.Sprintf("reputation unavailable, minimum score %d required", r.policy.MinReputationScore))
		case v.Reputation.Score < r.policy.MinReputationScore:
			v.IsTrusted = false
			v.Reasons = append(v.Reasons, fmt.Sprintf("reputation score %d below required minimum %d", v.Reputation.Score, r.policy.MinReputationScore))
		default:
			v.Reasons = append(v.Reasons, fmt.Sprintf("reputation score %d meets minimum %d", v.Reputation.Score, r.policy.MinReputationScore))
		}
	}

	if r.policy.RequireValidation {
		valid := 0
		for _, val := range v.Validations {
			if val.Valid {
				valid++
			}
		}
		if valid > 0 {
			v.Reasons = append(v.Reasons, fmt.Sprintf("%d valid attestations found", valid))
		} else {
			v.IsTrusted = false
			v.Reasons = append(v.Reasons, "validation required but no valid attestations found")
		}
	}

	if len(v.Reasons) == 0 {
		v.Reasons = append(v.Reasons, "no trust requirements configured")
	}
	return v
}

// resolveIdentity degrades to nil on registry failure; the policy step
// decides whether a missing identity matters.
func (r *Resolver) resolveIdentity(ctx context.Context, subject common.Address) *model.IdentityInfo {
	if r.identity == nil {
		return nil
	}
	info, err := r.identity.ResolveIdentity(ctx, subject)
	if err != nil {
		logger.Warn("identity resolution failed", "subject", subject.Hex(), "error", err)
		return nil
	}
	return info
}

func (r *Resolver) resolveReputation(ctx context.Context, subject common.Address) *model.ReputationInfo {
	if r.reputation == nil {
		return nil
	}
	info, err := r.reputation.ResolveReputation(ctx, subject)
	if err != nil {
		logger.Warn("reputation resolution failed", "subject", subject.Hex(), "error", err)
		return nil
	}
	return info
}

func (r *Resolver) resolveValidations(ctx context.Context, subject common.Address) []model.Validation {
	if r.validation == nil {
		return nil
	}
	vals, err := r.validation.ResolveValidations(ctx, subject)
	if err != nil {
		logger.Warn("validation resolution failed", "subject", subject.Hex(), "error", err)
		return nil
	}
	return vals
}
