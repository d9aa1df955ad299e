// Package vault holds the authoritative balance/limit/whitelist record per
// delegation and enforces agent-side spend checks atomically with balance
// mutation. The on-chain contract serializes these transitions implicitly;
// this off-chain port serializes them with one mutex per delegation.
package vault

import (
	"context"
	"sync"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/pkg/metrics"
	"github.com/agentvault/vaultgate/internal/txlayer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type record struct {
	mu sync.Mutex
	d  *model.Delegation
}

// Ledger owns every delegation. All mutations on one delegation are
// linearized by its record mutex; the outer lock only guards the maps.
type Ledger struct {
	mu          sync.RWMutex
	delegations map[uint64]*record
	agentIndex  map[common.Address]uint64
	nextID      uint64

	tx  txlayer.Layer
	now func() time.Time
}

func NewLedger(tx txlayer.Layer) *Ledger {
	return &Ledger{
		delegations: make(map[uint64]*record),
		agentIndex:  make(map[common.Address]uint64),
		tx:          tx,
		now:         time.Now,
	}
}

// SetClock replaces the ledger's time source. Tests use this to drive the
// rolling window.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Create allocates a new active delegation. At most one active delegation
// may exist per agent identity.
func (l *Ledger) Create(owner, agent common.Address, dailyLimit, perTxLimit, initialFunding decimal.Decimal) (*model.Delegation, error) {
	if agent == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("agent identity is required")
	}
	if owner == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("owner identity is required")
	}
	if dailyLimit.IsNegative() || perTxLimit.IsNegative() || initialFunding.IsNegative() {
		return nil, apperrors.NewInvalidRequest("limits and funding must be non-negative")
	}
	if perTxLimit.GreaterThan(dailyLimit) {
		return nil, apperrors.NewInvalidConfig("per-tx limit must not exceed daily limit")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.agentIndex[agent]; exists {
		return nil, apperrors.NewInvalidState("agent already has an active delegation")
	}

	l.nextID++
	now := l.now()
	d := &model.Delegation{
		ID:            l.nextID,
		Owner:         owner,
		Agent:         agent,
		Balance:       initialFunding,
		DailyLimit:    dailyLimit,
		PerTxLimit:    perTxLimit,
		SpentToday:    decimal.Zero,
		WindowStart:   now,
		Whitelist:     make(map[common.Address]bool),
		TokenBalances: make(map[common.Address]decimal.Decimal),
		CreatedAt:     now,
	}
	l.delegations[d.ID] = &record{d: d}
	l.agentIndex[agent] = d.ID
	return d.Clone(), nil
}

// Get returns a snapshot of the delegation.
func (l *Ledger) Get(id uint64) (*model.Delegation, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.d.Clone(), nil
}

// List returns snapshots of every delegation, drained ones included; a
// drained delegation persists as an auditable record.
func (l *Ledger) List() []*model.Delegation {
	l.mu.RLock()
	recs := make([]*record, 0, len(l.delegations))
	for _, rec := range l.delegations {
		recs = append(recs, rec)
	}
	l.mu.RUnlock()

	out := make([]*model.Delegation, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.d.Clone())
		rec.mu.Unlock()
	}
	return out
}

// Deposit credits the native balance. Deposits are never limited, even
// while paused or revoked.
func (l *Ledger) Deposit(id uint64, amount decimal.Decimal) (*model.Delegation, error) {
	if !amount.IsPositive() {
		return nil, apperrors.NewInvalidRequest("deposit amount must be positive")
	}
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.d.Balance = rec.d.Balance.Add(amount)
	return rec.d.Clone(), nil
}

// DepositToken credits a token balance, tracked independently of the
// native balance.
func (l *Ledger) DepositToken(id uint64, token common.Address, amount decimal.Decimal) (*model.Delegation, error) {
	if !amount.IsPositive() {
		return nil, apperrors.NewInvalidRequest("deposit amount must be positive")
	}
	if token == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("token address is required")
	}
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.d.TokenBalances[token] = rec.d.TokenBalances[token].Add(amount)
	return rec.d.Clone(), nil
}

// AgentSend is the only path by which the agent moves funds out. Checks
// run in a fixed order so the surfaced rejection reason is deterministic:
// paused, window reset, whitelist, per-tx cap, daily cap, balance. The
// balance/spent mutation lands before the outbound transfer is attempted;
// a transfer failure is surfaced but does not roll the mutation back, so
// callers must not retry blindly.
func (l *Ledger) AgentSend(ctx context.Context, caller common.Address, id uint64, to common.Address, amount decimal.Decimal, memo string) (string, *model.Delegation, error) {
	if !amount.IsPositive() {
		return "", nil, apperrors.NewInvalidRequest("send amount must be positive")
	}
	rec, err := l.record(id)
	if err != nil {
		return "", nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	d := rec.d

	if caller != d.Agent || d.Agent == (common.Address{}) {
		metrics.SendRejects.WithLabelValues("not_agent").Inc()
		return "", nil, apperrors.NewNotAuthorized("caller is not the delegation agent")
	}
	if d.Paused {
		metrics.SendRejects.WithLabelValues("paused").Inc()
		return "", nil, apperrors.NewInvalidState("delegation is paused")
	}

	rollWindowIfElapsed(d, l.now())

	if d.WhitelistEnabled && !d.Whitelist[to] {
		metrics.SendRejects.WithLabelValues("whitelist").Inc()
		return "", nil, apperrors.NewWhitelistViolation(to.Hex())
	}
	if amount.GreaterThan(d.PerTxLimit) {
		metrics.SendRejects.WithLabelValues("per_tx").Inc()
		return "", nil, apperrors.NewLimitExceeded(apperrors.LimitPerTx, amount, d.PerTxLimit)
	}
	if d.SpentToday.Add(amount).GreaterThan(d.DailyLimit) {
		metrics.SendRejects.WithLabelValues("daily").Inc()
		return "", nil, apperrors.NewLimitExceeded(apperrors.LimitDaily, d.SpentToday.Add(amount), d.DailyLimit)
	}
	if amount.GreaterThan(d.Balance) {
		metrics.SendRejects.WithLabelValues("balance").Inc()
		return "", nil, apperrors.NewInsufficientBalance(amount, d.Balance)
	}

	d.Balance = d.Balance.Sub(amount)
	d.SpentToday = d.SpentToday.Add(amount)

	txRef, err := l.tx.SubmitTransfer(ctx, to, amount, []byte(memo))
	if err != nil {
		// State already moved, mirroring the on-chain accounting. The
		// caller reconciles via the returned snapshot.
		return "", d.Clone(), apperrors.Wrap(err)
	}
	return txRef, d.Clone(), nil
}

// OwnerWithdraw moves native funds to the owner, unconstrained by limits
// or pause state. The owner is never limited; this asymmetry is the core
// of the design.
func (l *Ledger) OwnerWithdraw(ctx context.Context, caller common.Address, id uint64, amount decimal.Decimal) (string, *model.Delegation, error) {
	if !amount.IsPositive() {
		return "", nil, apperrors.NewInvalidRequest("withdraw amount must be positive")
	}
	rec, err := l.record(id)
	if err != nil {
		return "", nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	d := rec.d

	if caller != d.Owner {
		return "", nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	if amount.GreaterThan(d.Balance) {
		return "", nil, apperrors.NewInsufficientBalance(amount, d.Balance)
	}

	d.Balance = d.Balance.Sub(amount)
	txRef, err := l.tx.SubmitTransfer(ctx, d.Owner, amount, nil)
	if err != nil {
		return "", d.Clone(), apperrors.Wrap(err)
	}
	return txRef, d.Clone(), nil
}

// OwnerWithdrawAll drains the full native balance to the owner. A zero
// balance is a no-op success.
func (l *Ledger) OwnerWithdrawAll(ctx context.Context, caller common.Address, id uint64) (string, *model.Delegation, error) {
	rec, err := l.record(id)
	if err != nil {
		return "", nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	d := rec.d

	if caller != d.Owner {
		return "", nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	amount := d.Balance
	if amount.IsZero() {
		return "", d.Clone(), nil
	}
	d.Balance = decimal.Zero
	txRef, err := l.tx.SubmitTransfer(ctx, d.Owner, amount, nil)
	if err != nil {
		return "", d.Clone(), apperrors.Wrap(err)
	}
	return txRef, d.Clone(), nil
}

// OwnerWithdrawToken moves token funds to the owner, unconstrained by
// limits or pause state.
func (l *Ledger) OwnerWithdrawToken(ctx context.Context, caller common.Address, id uint64, token common.Address, amount decimal.Decimal) (string, *model.Delegation, error) {
	if !amount.IsPositive() {
		return "", nil, apperrors.NewInvalidRequest("withdraw amount must be positive")
	}
	rec, err := l.record(id)
	if err != nil {
		return "", nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	d := rec.d

	if caller != d.Owner {
		return "", nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	balance := d.TokenBalances[token]
	if amount.GreaterThan(balance) {
		return "", nil, apperrors.NewInsufficientBalance(amount, balance)
	}

	d.TokenBalances[token] = balance.Sub(amount)
	txRef, err := l.tx.SubmitTokenTransfer(ctx, token, d.Owner, amount)
	if err != nil {
		return "", d.Clone(), apperrors.Wrap(err)
	}
	return txRef, d.Clone(), nil
}

// Pause stops agent sends. Pausing an already-paused delegation is a
// no-op success.
func (l *Ledger) Pause(caller common.Address, id uint64) (*model.Delegation, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	rec.d.Paused = true
	return rec.d.Clone(), nil
}

// Unpause re-enables agent sends. A revoked delegation stays paused
// forever; a new delegation must be created instead.
func (l *Ledger) Unpause(caller common.Address, id uint64) (*model.Delegation, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	if rec.d.Agent == (common.Address{}) {
		return nil, apperrors.NewInvalidState("delegation is revoked")
	}
	rec.d.Paused = false
	return rec.d.Clone(), nil
}

// RevokeAgent clears the agent slot and forces pause. Terminal: the
// delegation can never return to active.
func (l *Ledger) RevokeAgent(caller common.Address, id uint64) (*model.Delegation, error) {
	l.mu.Lock()
	rec, ok := l.delegations[id]
	if !ok {
		l.mu.Unlock()
		return nil, apperrors.NewNotFound("delegation not found")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		l.mu.Unlock()
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	if rec.d.Agent != (common.Address{}) {
		delete(l.agentIndex, rec.d.Agent)
		rec.d.Agent = common.Address{}
	}
	l.mu.Unlock()
	rec.d.Paused = true
	return rec.d.Clone(), nil
}

// EmergencyDrain forces pause and moves the entire native balance plus
// each listed token balance to the owner in one logical operation. One
// token failing does not block the native transfer or the other tokens;
// failures are collected in the result and the failed balance is
// restored.
func (l *Ledger) EmergencyDrain(ctx context.Context, caller common.Address, id uint64, tokens []common.Address) (*model.DrainResult, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	d := rec.d

	if caller != d.Owner {
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	d.Paused = true

	result := &model.DrainResult{
		NativeAmount: decimal.Zero,
		TokenAmounts: make(map[common.Address]decimal.Decimal),
	}

	if d.Balance.IsPositive() {
		amount := d.Balance
		d.Balance = decimal.Zero
		txRef, err := l.tx.SubmitTransfer(ctx, d.Owner, amount, nil)
		if err != nil {
			d.Balance = amount
			result.Failures = append(result.Failures, model.DrainFailure{Err: err.Error()})
		} else {
			result.NativeAmount = amount
			result.NativeTxRef = txRef
		}
	}

	for _, token := range tokens {
		amount := d.TokenBalances[token]
		if !amount.IsPositive() {
			continue
		}
		d.TokenBalances[token] = decimal.Zero
		if _, err := l.tx.SubmitTokenTransfer(ctx, token, d.Owner, amount); err != nil {
			d.TokenBalances[token] = amount
			result.Failures = append(result.Failures, model.DrainFailure{Token: token, Err: err.Error()})
			continue
		}
		result.TokenAmounts[token] = amount
	}
	return result, nil
}

// SetAgent reassigns the agent slot. The new agent must not already hold
// an active delegation; a revoked delegation cannot be reassigned.
func (l *Ledger) SetAgent(caller common.Address, id uint64, agent common.Address) (*model.Delegation, error) {
	if agent == (common.Address{}) {
		return nil, apperrors.NewInvalidRequest("agent identity is required")
	}
	l.mu.Lock()
	rec, ok := l.delegations[id]
	if !ok {
		l.mu.Unlock()
		return nil, apperrors.NewNotFound("delegation not found")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		l.mu.Unlock()
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	if rec.d.Agent == (common.Address{}) {
		l.mu.Unlock()
		return nil, apperrors.NewInvalidState("delegation is revoked")
	}
	if existing, taken := l.agentIndex[agent]; taken && existing != id {
		l.mu.Unlock()
		return nil, apperrors.NewInvalidState("agent already has an active delegation")
	}
	delete(l.agentIndex, rec.d.Agent)
	rec.d.Agent = agent
	l.agentIndex[agent] = id
	l.mu.Unlock()
	return rec.d.Clone(), nil
}

// SetLimits replaces both spend limits, revalidating their ordering.
func (l *Ledger) SetLimits(caller common.Address, id uint64, dailyLimit, perTxLimit decimal.Decimal) (*model.Delegation, error) {
	if dailyLimit.IsNegative() || perTxLimit.IsNegative() {
		return nil, apperrors.NewInvalidRequest("limits must be non-negative")
	}
	if perTxLimit.GreaterThan(dailyLimit) {
		return nil, apperrors.NewInvalidConfig("per-tx limit must not exceed daily limit")
	}
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	rec.d.DailyLimit = dailyLimit
	rec.d.PerTxLimit = perTxLimit
	return rec.d.Clone(), nil
}

// SetWhitelistEnabled toggles whitelist mode for agent sends.
func (l *Ledger) SetWhitelistEnabled(caller common.Address, id uint64, enabled bool) (*model.Delegation, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	rec.d.WhitelistEnabled = enabled
	return rec.d.Clone(), nil
}

// SetWhitelistEntry adds or removes one recipient from the delegation's
// whitelist.
func (l *Ledger) SetWhitelistEntry(caller common.Address, id uint64, addr common.Address, allowed bool) (*model.Delegation, error) {
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if caller != rec.d.Owner {
		return nil, apperrors.NewNotAuthorized("caller is not the delegation owner")
	}
	if allowed {
		rec.d.Whitelist[addr] = true
	} else {
		delete(rec.d.Whitelist, addr)
	}
	return rec.d.Clone(), nil
}

func (l *Ledger) record(id uint64) (*record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.delegations[id]
	if !ok {
		return nil, apperrors.NewNotFound("delegation not found")
	}
	return rec, nil
}
