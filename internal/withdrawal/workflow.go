// Package withdrawal implements the off-chain owner withdrawal workflow:
// request/approve/reject/execute with optional two-party gating above a
// value threshold, plus an append-only action log for audit.
package withdrawal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/pkg/metrics"
	"github.com/agentvault/vaultgate/internal/txlayer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Workflow guards its request map and log with a single mutex; requests
// and log entries are shared mutable state with the same serialization
// needs as the ledger.
type Workflow struct {
	mu       sync.Mutex
	requests map[string]*model.WithdrawalRequest
	order    []string
	log      []model.ActionLogEntry

	owners    map[common.Address]bool
	threshold *decimal.Decimal

	tx     txlayer.Layer
	now    func() time.Time
	notify func(model.ActionLogEntry)
}

// New builds a workflow. threshold nil disables multi-sig entirely;
// multi-sig also needs at least two owner-class principals, otherwise no
// second approver exists and requests auto-approve.
func New(tx txlayer.Layer, owners []common.Address, threshold *decimal.Decimal) *Workflow {
	ownerSet := make(map[common.Address]bool, len(owners))
	for _, o := range owners {
		ownerSet[o] = true
	}
	return &Workflow{
		requests:  make(map[string]*model.WithdrawalRequest),
		owners:    ownerSet,
		threshold: threshold,
		tx:        tx,
		now:       time.Now,
	}
}

// SetClock replaces the workflow's time source.
func (w *Workflow) SetClock(now func() time.Time) {
	w.now = now
}

// OnAction registers a hook invoked after every logged transition. The
// hook runs with the workflow lock held; keep it fast and non-blocking.
func (w *Workflow) OnAction(fn func(model.ActionLogEntry)) {
	w.notify = fn
}

// Request opens a withdrawal. Requests below the multi-sig threshold are
// auto-approved by their requester.
func (w *Workflow) Request(kind model.WithdrawalKind, token *common.Address, amount decimal.Decimal, recipient common.Address, requester common.Address) (*model.WithdrawalRequest, error) {
	if !w.isOwner(requester) {
		return nil, apperrors.NewNotAuthorized("requester is not an owner-class principal")
	}
	if !amount.IsPositive() {
		return nil, apperrors.NewInvalidRequest("withdrawal amount must be positive")
	}
	switch kind {
	case model.WithdrawalNative:
		if token != nil {
			return nil, apperrors.NewInvalidRequest("native withdrawal must not name a token")
		}
	case model.WithdrawalToken:
		if token == nil || *token == (common.Address{}) {
			return nil, apperrors.NewInvalidRequest("token withdrawal requires a token address")
		}
	default:
		return nil, apperrors.NewInvalidRequest("unknown withdrawal kind")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	req := &model.WithdrawalRequest{
		ID:          uuid.New().String(),
		Kind:        kind,
		Token:       token,
		Amount:      amount,
		Recipient:   recipient,
		Status:      model.WithdrawalPending,
		RequestedAt: w.now(),
		RequestedBy: requester,
	}

	if w.multisigRequired(amount) {
		metrics.WithdrawalTransitions.WithLabelValues("pending").Inc()
		w.logAction("withdrawal_requested", requester,
			fmt.Sprintf("request %s for %s awaiting co-owner approval", req.ID, amount.String()), "")
	} else {
		approver := requester
		req.Status = model.WithdrawalApproved
		req.ApprovedBy = &approver
		metrics.WithdrawalTransitions.WithLabelValues("approved").Inc()
		w.logAction("withdrawal_auto_approved", requester,
			fmt.Sprintf("request %s for %s below threshold", req.ID, amount.String()), "")
	}

	w.requests[req.ID] = req
	w.order = append(w.order, req.ID)
	out := *req
	return &out, nil
}

// Approve moves a pending request to approved. The approver must differ
// from the requester; self-approval would defeat the multi-sig entirely.
func (w *Workflow) Approve(id string, approver common.Address) (*model.WithdrawalRequest, error) {
	if !w.isOwner(approver) {
		return nil, apperrors.NewNotAuthorized("approver is not an owner-class principal")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	req, ok := w.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("withdrawal request not found")
	}
	if req.Status != model.WithdrawalPending {
		return nil, apperrors.NewInvalidState(fmt.Sprintf("request is %s, not pending", req.Status))
	}
	if approver == req.RequestedBy {
		return nil, apperrors.NewNotAuthorized("self-approval is forbidden")
	}

	req.Status = model.WithdrawalApproved
	req.ApprovedBy = &approver
	metrics.WithdrawalTransitions.WithLabelValues("approved").Inc()
	w.logAction("withdrawal_approved", approver,
		fmt.Sprintf("request %s approved", req.ID), "")
	out := *req
	return &out, nil
}

// Reject terminates any non-terminal request.
func (w *Workflow) Reject(id string, rejecter common.Address) (*model.WithdrawalRequest, error) {
	if !w.isOwner(rejecter) {
		return nil, apperrors.NewNotAuthorized("rejecter is not an owner-class principal")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	req, ok := w.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("withdrawal request not found")
	}
	if req.Status == model.WithdrawalExecuted || req.Status == model.WithdrawalRejected {
		return nil, apperrors.NewInvalidState(fmt.Sprintf("request is already %s", req.Status))
	}

	req.Status = model.WithdrawalRejected
	metrics.WithdrawalTransitions.WithLabelValues("rejected").Inc()
	w.logAction("withdrawal_rejected", rejecter,
		fmt.Sprintf("request %s rejected", req.ID), "")
	out := *req
	return &out, nil
}

// Execute performs the transfer for an approved request and marks it
// executed with the transaction reference. Calling it on a non-approved
// request is a programming error surfaced immediately, not retried.
func (w *Workflow) Execute(ctx context.Context, id string, executor common.Address) (*model.WithdrawalRequest, error) {
	if !w.isOwner(executor) {
		return nil, apperrors.NewNotAuthorized("executor is not an owner-class principal")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	req, ok := w.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("withdrawal request not found")
	}
	if req.Status != model.WithdrawalApproved {
		return nil, apperrors.NewInvalidState(fmt.Sprintf("request is %s, not approved", req.Status))
	}

	var txRef string
	var err error
	if req.Kind == model.WithdrawalToken {
		txRef, err = w.tx.SubmitTokenTransfer(ctx, *req.Token, req.Recipient, req.Amount)
	} else {
		txRef, err = w.tx.SubmitTransfer(ctx, req.Recipient, req.Amount, nil)
	}
	if err != nil {
		// Status stays approved; the caller must check state before any
		// retry.
		return nil, apperrors.Wrap(err)
	}

	executedAt := w.now()
	req.Status = model.WithdrawalExecuted
	req.ExecutedAt = &executedAt
	req.TxRef = txRef
	metrics.WithdrawalTransitions.WithLabelValues("executed").Inc()
	w.logAction("withdrawal_executed", executor,
		fmt.Sprintf("request %s executed", req.ID), txRef)
	out := *req
	return &out, nil
}

// Get returns a copy of one request.
func (w *Workflow) Get(id string) (*model.WithdrawalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	req, ok := w.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("withdrawal request not found")
	}
	out := *req
	return &out, nil
}

// List returns all requests in creation order.
func (w *Workflow) List() []*model.WithdrawalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.WithdrawalRequest, 0, len(w.order))
	for _, id := range w.order {
		req := *w.requests[id]
		out = append(out, &req)
	}
	return out
}

// ActionLog returns a copy of the append-only log.
func (w *Workflow) ActionLog() []model.ActionLogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.ActionLogEntry, len(w.log))
	copy(out, w.log)
	return out
}

// ExportState snapshots requests and log as an opaque ordered sequence
// for the surrounding application to persist.
func (w *Workflow) ExportState() *model.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := &model.WorkflowState{
		Requests: make([]*model.WithdrawalRequest, 0, len(w.order)),
		Log:      make([]model.ActionLogEntry, len(w.log)),
	}
	for _, id := range w.order {
		req := *w.requests[id]
		state.Requests = append(state.Requests, &req)
	}
	copy(state.Log, w.log)
	return state
}

// ImportState replaces the workflow's requests and log with a previously
// exported snapshot.
func (w *Workflow) ImportState(state *model.WorkflowState) {
	if state == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = make(map[string]*model.WithdrawalRequest, len(state.Requests))
	w.order = make([]string, 0, len(state.Requests))
	for _, req := range state.Requests {
		cp := *req
		w.requests[cp.ID] = &cp
		w.order = append(w.order, cp.ID)
	}
	w.log = make([]model.ActionLogEntry, len(state.Log))
	copy(w.log, state.Log)
}

func (w *Workflow) isOwner(addr common.Address) bool {
	return w.owners[addr]
}

func (w *Workflow) multisigRequired(amount decimal.Decimal) bool {
	if w.threshold == nil || len(w.owners) < 2 {
		return false
	}
	return amount.GreaterThanOrEqual(*w.threshold)
}

func (w *Workflow) logAction(actionType string, actor common.Address, details, txRef string) {
	entry := model.ActionLogEntry{
		Type:      actionType,
		Timestamp: w.now(),
		Actor:     actor,
		Details:   details,
		TxRef:     txRef,
	}
	w.log = append(w.log, entry)
	if w.notify != nil {
		w.notify(entry)
	}
}
