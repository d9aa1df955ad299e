package service

import (
	"context"
	"strings"
	"time"

	"github.com/agentvault/vaultgate/internal/guardrail"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/pkg/logger"
	"github.com/agentvault/vaultgate/internal/pkg/metrics"
	"github.com/agentvault/vaultgate/internal/trust"
	"github.com/agentvault/vaultgate/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CustodyService orchestrates an agent send across the three gates:
// guardrail policy, trust resolution, then the ledger itself. The ledger
// is the last word; the earlier gates only ever make the answer stricter.
type CustodyService struct {
	ledger   *vault.Ledger
	resolver *trust.Resolver
	limits   guardrail.Limits
	sendLog  guardrail.SendLog
	now      func() time.Time
}

func NewCustodyService(ledger *vault.Ledger, resolver *trust.Resolver, limits guardrail.Limits, sendLog guardrail.SendLog) *CustodyService {
	return &CustodyService{
		ledger:   ledger,
		resolver: resolver,
		limits:   limits,
		sendLog:  sendLog,
		now:      time.Now,
	}
}

// SetClock replaces the service's time source.
func (s *CustodyService) SetClock(now func() time.Time) {
	s.now = now
}

// AgentSend runs the full pre-flight and, when everything passes, moves
// funds through the ledger. A send that trips the auto-approve threshold
// is not an error: it comes back with RequiresApproval set and no
// transfer performed.
func (s *CustodyService) AgentSend(ctx context.Context, caller common.Address, delegationID uint64, to common.Address, amount decimal.Decimal, memo string) (*model.SendResponse, error) {
	d, err := s.ledger.Get(delegationID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	// 1. Guardrail recipient policy.
	if verdict := guardrail.CheckRecipient(s.limits, to); !verdict.Allowed {
		metrics.AgentSendsTotal.WithLabelValues("rejected").Inc()
		return nil, apperrors.NewNotAuthorized(verdict.Reason)
	}

	// 2. Guardrail count and value caps over the recent send history.
	recent, err := s.sendLog.Recent(ctx, delegationID, now.Add(-24*time.Hour))
	if err != nil {
		// A broken send log must not let the caps be bypassed.
		metrics.AgentSendsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.New(apperrors.ErrInternal, "guardrail send history unavailable", err)
	}
	verdict := guardrail.Check(s.limits, recent, amount, now)
	if !verdict.Allowed {
		metrics.AgentSendsTotal.WithLabelValues("rejected").Inc()
		e := apperrors.New(apperrors.ErrLimitExceeded, verdict.Reason, nil)
		e.Limit = apperrors.LimitCount
		if strings.Contains(verdict.Reason, "value") {
			e.Limit = apperrors.LimitValue
		}
		return nil, e
	}
	if verdict.RequiresApproval {
		metrics.AgentSendsTotal.WithLabelValues("requires_approval").Inc()
		return &model.SendResponse{
			SpentToday:       d.SpentToday.String(),
			Balance:          d.Balance.String(),
			RequiresApproval: true,
			GuardrailReason:  verdict.Reason,
		}, nil
	}

	// 3. Trust resolution. Delegation-whitelisted recipients were already
	// vetted by the owner and skip the registries.
	resp := &model.SendResponse{}
	if d.WhitelistEnabled && d.Whitelist[to] {
		resp.WhitelistedSkip = true
	} else if s.resolver != nil {
		tv, fromCache, err := s.resolver.CheckTrust(ctx, to)
		if err != nil {
			metrics.AgentSendsTotal.WithLabelValues("error").Inc()
			return nil, apperrors.Wrap(err)
		}
		resp.TrustVerdict = tv
		resp.TrustFromCache = fromCache
		if !tv.IsTrusted {
			metrics.AgentSendsTotal.WithLabelValues("rejected").Inc()
			return nil, apperrors.NewNotAuthorized(
				"recipient failed trust verification: " + strings.Join(tv.Reasons, "; "))
		}
	}

	// 4. The ledger enforces pause, whitelist, limits and balance.
	txRef, snapshot, err := s.ledger.AgentSend(ctx, caller, delegationID, to, amount, memo)
	if snapshot != nil {
		resp.SpentToday = snapshot.SpentToday.String()
		resp.Balance = snapshot.Balance.String()
	}
	if err != nil {
		metrics.AgentSendsTotal.WithLabelValues("rejected").Inc()
		return resp, err
	}

	resp.TxRef = txRef
	if logErr := s.sendLog.Record(ctx, delegationID, now); logErr != nil {
		logger.Warn("failed to record send in guardrail log", "delegation_id", delegationID, "error", logErr)
	}
	metrics.AgentSendsTotal.WithLabelValues("ok").Inc()
	return resp, nil
}

// Ledger exposes the underlying ledger for owner operations that bypass
// the agent gates.
func (s *CustodyService) Ledger() *vault.Ledger {
	return s.ledger
}

// Resolver exposes the trust resolver for the trust endpoints.
func (s *CustodyService) Resolver() *trust.Resolver {
	return s.resolver
}
