package service

import (
	"context"
	"encoding/json"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/pkg/logger"
	"github.com/agentvault/vaultgate/internal/trust"
	"github.com/agentvault/vaultgate/internal/withdrawal"
)

const stateSnapshotName = "gateway_state"

// StateRepo persists opaque state blobs by name.
type StateRepo interface {
	Save(ctx context.Context, name string, blob []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// StateService exports and restores the gateway's off-chain state: the
// withdrawal workflow plus the trust verdict cache. Snapshots are opaque
// JSON; callers treat them as a single unit.
type StateService struct {
	workflow *withdrawal.Workflow
	cache    *trust.Cache
	repo     StateRepo
}

func NewStateService(workflow *withdrawal.Workflow, cache *trust.Cache, repo StateRepo) *StateService {
	return &StateService{workflow: workflow, cache: cache, repo: repo}
}

func (s *StateService) Export() *model.GatewayState {
	state := &model.GatewayState{}
	if s.workflow != nil {
		state.Workflow = s.workflow.ExportState()
	}
	if s.cache != nil {
		state.TrustCache = s.cache.Export()
	}
	return state
}

func (s *StateService) Import(state *model.GatewayState) {
	if state == nil {
		return
	}
	if s.workflow != nil && state.Workflow != nil {
		s.workflow.ImportState(state.Workflow)
	}
	if s.cache != nil && len(state.TrustCache) > 0 {
		s.cache.Import(state.TrustCache)
	}
}

// Persist writes the current snapshot to the state repo.
func (s *StateService) Persist(ctx context.Context) error {
	if s.repo == nil {
		return apperrors.NewInvalidConfig("state persistence is not configured")
	}
	blob, err := json.Marshal(s.Export())
	if err != nil {
		return apperrors.Wrap(err)
	}
	return s.repo.Save(ctx, stateSnapshotName, blob)
}

// Restore loads the last persisted snapshot, if any, into the live
// workflow and cache. Missing snapshots are not an error.
func (s *StateService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	blob, err := s.repo.Load(ctx, stateSnapshotName)
	if err != nil {
		return apperrors.Wrap(err)
	}
	if len(blob) == 0 {
		return nil
	}
	var state model.GatewayState
	if err := json.Unmarshal(blob, &state); err != nil {
		logger.Error("discarding corrupt state snapshot", "error", err)
		return nil
	}
	s.Import(&state)
	return nil
}
