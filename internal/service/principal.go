package service

import (
	"strings"
	"sync"

	"github.com/agentvault/vaultgate/internal/config"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// PrincipalManager maps gateway API keys to principals and holds each
// principal's rate limiter.
type PrincipalManager struct {
	mu         sync.RWMutex
	principals map[string]*model.Principal    // key: API key
	limiters   map[common.Address]*rate.Limiter
}

func NewPrincipalManager(cfg *config.Config) *PrincipalManager {
	pm := &PrincipalManager{
		principals: make(map[string]*model.Principal),
		limiters:   make(map[common.Address]*rate.Limiter),
	}

	for _, pCfg := range cfg.Principals {
		if !common.IsHexAddress(pCfg.Address) {
			logger.Warn("skipping principal with invalid address", "name", pCfg.Name, "address", pCfg.Address)
			continue
		}
		role := model.Role(strings.ToLower(pCfg.Role))
		if role != model.RoleOwner && role != model.RoleAgent {
			logger.Warn("skipping principal with unknown role", "name", pCfg.Name, "role", pCfg.Role)
			continue
		}
		pm.Register(&model.Principal{
			Name:    pCfg.Name,
			APIKey:  pCfg.APIKey,
			Address: common.HexToAddress(pCfg.Address),
			Role:    role,
			QPS:     pCfg.QPS,
			Burst:   pCfg.Burst,
		})
	}

	return pm
}

func (pm *PrincipalManager) Register(p *model.Principal) {
	if p == nil || p.APIKey == "" {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.principals[p.APIKey] = p

	limit := rate.Limit(p.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := p.Burst
	if burst == 0 {
		burst = 1
	}
	pm.limiters[p.Address] = rate.NewLimiter(limit, burst)
}

func (pm *PrincipalManager) GetByAPIKey(apiKey string) (*model.Principal, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	p, ok := pm.principals[apiKey]
	return p, ok
}

// GetLimiter returns the rate limiter for a principal address, nil when
// the address is unknown.
func (pm *PrincipalManager) GetLimiter(addr common.Address) *rate.Limiter {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.limiters[addr]
}

// Owners returns every owner-class principal address, deduplicated.
func (pm *PrincipalManager) Owners() []common.Address {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	seen := make(map[common.Address]struct{})
	out := make([]common.Address, 0)
	for _, p := range pm.principals {
		if p.Role != model.RoleOwner {
			continue
		}
		if _, ok := seen[p.Address]; ok {
			continue
		}
		seen[p.Address] = struct{}{}
		out = append(out, p.Address)
	}
	return out
}

func (pm *PrincipalManager) List() []*model.Principal {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]*model.Principal, 0, len(pm.principals))
	for _, p := range pm.principals {
		out = append(out, p)
	}
	return out
}
