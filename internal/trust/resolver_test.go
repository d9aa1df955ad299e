package trust

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	subjectA = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	subjectB = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
)

type stubIdentity struct {
	calls int
	info  *model.IdentityInfo
	err   error
}

func (s *stubIdentity) ResolveIdentity(ctx context.Context, subject common.Address) (*model.IdentityInfo, error) {
	s.calls++
	return s.info, s.err
}

type stubReputation struct {
	calls int
	info  *model.ReputationInfo
	err   error
}

func (s *stubReputation) ResolveReputation(ctx context.Context, subject common.Address) (*model.ReputationInfo, error) {
	s.calls++
	return s.info, s.err
}

type stubValidation struct {
	calls int
	vals  []model.Validation
	err   error
}

func (s *stubValidation) ResolveValidations(ctx context.Context, subject common.Address) ([]model.Validation, error) {
	s.calls++
	return s.vals, s.err
}

func TestLowReputationRejectedAndCached(t *testing.T) {
	rep := &stubReputation{info: &model.ReputationInfo{Score: 30, Interactions: 12}}
	cache := NewCache(time.Minute, 10)
	r := NewResolver(nil, rep, nil, Policy{MinReputationScore: 50}, cache)

	verdict, fromCache, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.False(t, verdict.IsTrusted)
	require.NotEmpty(t, verdict.Reasons)
	assert.Contains(t, verdict.Reasons[0], "30")
	assert.Contains(t, verdict.Reasons[0], "50")

	// Second check within the TTL serves the identical verdict without
	// touching the registry again.
	again, fromCache, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, verdict, again)
	assert.Equal(t, 1, rep.calls)
}

func TestAllRequirementsEvaluated(t *testing.T) {
	// Every failing requirement must show up in Reasons, not just the
	// first one.
	id := &stubIdentity{info: &model.IdentityInfo{Exists: false}}
	rep := &stubReputation{info: &model.ReputationInfo{Score: 10}}
	val := &stubValidation{vals: []model.Validation{{Type: "kyc", Valid: false}}}
	r := NewResolver(id, rep, val, Policy{
		RequireIdentity:    true,
		MinReputationScore: 50,
		RequireValidation:  true,
	}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.False(t, verdict.IsTrusted)
	assert.Len(t, verdict.Reasons, 3)
}

func TestTrustedVerdictHasAffirmingReasons(t *testing.T) {
	id := &stubIdentity{info: &model.IdentityInfo{Exists: true, TokenID: 7}}
	rep := &stubReputation{info: &model.ReputationInfo{Score: 80}}
	val := &stubValidation{vals: []model.Validation{{Type: "kyc", Valid: true}, {Type: "audit", Valid: true}}}
	r := NewResolver(id, rep, val, Policy{
		RequireIdentity:    true,
		MinReputationScore: 50,
		RequireValidation:  true,
	}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.True(t, verdict.IsTrusted)
	assert.Len(t, verdict.Reasons, 3)
	assert.Equal(t, 1, id.calls)
	assert.Equal(t, 1, rep.calls)
	assert.Equal(t, 1, val.calls)
}

func TestDenyListWins(t *testing.T) {
	id := &stubIdentity{info: &model.IdentityInfo{Exists: true}}
	r := NewResolver(id, nil, nil, Policy{
		AllowList: map[common.Address]bool{subjectA: true},
		DenyList:  map[common.Address]bool{subjectA: true},
	}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.False(t, verdict.IsTrusted)
	assert.NotEmpty(t, verdict.Reasons)
	assert.Equal(t, 0, id.calls, "deny list must short-circuit registry calls")
}

func TestAllowListSkipsRegistries(t *testing.T) {
	id := &stubIdentity{info: &model.IdentityInfo{Exists: false}}
	r := NewResolver(id, nil, nil, Policy{
		RequireIdentity: true,
		AllowList:       map[common.Address]bool{subjectB: true},
	}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectB)
	require.NoError(t, err)
	assert.True(t, verdict.IsTrusted)
	assert.Equal(t, 0, id.calls)
}

func TestUnconfiguredFailOpen(t *testing.T) {
	r := NewResolver(nil, nil, nil, Policy{FailOpenWhenUnconfigured: true}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.True(t, verdict.IsTrusted)
	require.NotEmpty(t, verdict.Reasons)
	assert.Contains(t, verdict.Reasons[0], "trusting by default")
}

func TestUnconfiguredFailClosed(t *testing.T) {
	r := NewResolver(nil, nil, nil, Policy{FailOpenWhenUnconfigured: false}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.False(t, verdict.IsTrusted)
	assert.NotEmpty(t, verdict.Reasons)
}

func TestRegistryErrorDegradesGracefully(t *testing.T) {
	// An unreachable registry yields an empty signal, and the requirement
	// fails with a reason; the error never propagates to the caller.
	rep := &stubReputation{err: errors.New("rpc timeout")}
	r := NewResolver(nil, rep, nil, Policy{MinReputationScore: 50}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.False(t, verdict.IsTrusted)
	require.NotEmpty(t, verdict.Reasons)
	assert.Contains(t, verdict.Reasons[0], "unavailable")
}

func TestNoRequirementsStillGivesReason(t *testing.T) {
	id := &stubIdentity{info: &model.IdentityInfo{Exists: true}}
	r := NewResolver(id, nil, nil, Policy{}, nil)

	verdict, _, err := r.CheckTrust(context.Background(), subjectA)
	require.NoError(t, err)
	assert.True(t, verdict.IsTrusted)
	assert.NotEmpty(t, verdict.Reasons)
}
