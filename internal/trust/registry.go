// Package trust resolves a counterparty's identity, reputation and
// validation signals from three independent registries and produces a
// trust verdict with human-readable reasons.
package trust

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/txlayer"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// IdentityRegistry answers whether a subject has a registered identity.
type IdentityRegistry interface {
	ResolveIdentity(ctx context.Context, subject common.Address) (*model.IdentityInfo, error)
}

// ReputationRegistry answers a subject's reputation score and counters.
type ReputationRegistry interface {
	ResolveReputation(ctx context.Context, subject common.Address) (*model.ReputationInfo, error)
}

// ValidationRegistry answers a subject's typed attestations.
type ValidationRegistry interface {
	ResolveValidations(ctx context.Context, subject common.Address) ([]model.Validation, error)
}

const (
	identityABI   = `[{"constant":true,"inputs":[{"name":"subject","type":"address"}],"name":"getIdentity","outputs":[{"name":"exists","type":"bool"},{"name":"tokenId","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	reputationABI = `[{"constant":true,"inputs":[{"name":"subject","type":"address"}],"name":"getReputation","outputs":[{"name":"score","type":"uint256"},{"name":"interactions","type":"uint256"},{"name":"lastUpdated","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	validationABI = `[{"constant":true,"inputs":[{"name":"subject","type":"address"}],"name":"getValidations","outputs":[{"name":"types","type":"string[]"},{"name":"valids","type":"bool[]"}],"stateMutability":"view","type":"function"}]`
)

// ChainIdentityRegistry reads the identity registry contract through the
// transaction layer.
type ChainIdentityRegistry struct {
	addr common.Address
	tx   txlayer.Layer
	abi  abi.ABI
}

func NewChainIdentityRegistry(addr common.Address, tx txlayer.Layer) (*ChainIdentityRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(identityABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity abi: %w", err)
	}
	return &ChainIdentityRegistry{addr: addr, tx: tx, abi: parsed}, nil
}

func (r *ChainIdentityRegistry) ResolveIdentity(ctx context.Context, subject common.Address) (*model.IdentityInfo, error) {
	data, err := r.abi.Pack("getIdentity", subject)
	if err != nil {
		return nil, err
	}
	output, err := r.tx.ReadContractValue(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("identity registry call failed: %w", err)
	}
	values, err := r.abi.Unpack("getIdentity", output)
	if err != nil || len(values) != 2 {
		return nil, fmt.Errorf("identity registry returned malformed data")
	}
	exists, _ := values[0].(bool)
	tokenID, _ := values[1].(*big.Int)
	info := &model.IdentityInfo{Exists: exists}
	if tokenID != nil {
		info.TokenID = tokenID.Uint64()
	}
	return info, nil
}

// ChainReputationRegistry reads the reputation registry contract.
type ChainReputationRegistry struct {
	addr common.Address
	tx   txlayer.Layer
	abi  abi.ABI
}

func NewChainReputationRegistry(addr common.Address, tx txlayer.Layer) (*ChainReputationRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(reputationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse reputation abi: %w", err)
	}
	return &ChainReputationRegistry{addr: addr, tx: tx, abi: parsed}, nil
}

func (r *ChainReputationRegistry) ResolveReputation(ctx context.Context, subject common.Address) (*model.ReputationInfo, error) {
	data, err := r.abi.Pack("getReputation", subject)
	if err != nil {
		return nil, err
	}
	output, err := r.tx.ReadContractValue(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("reputation registry call failed: %w", err)
	}
	values, err := r.abi.Unpack("getReputation", output)
	if err != nil || len(values) != 3 {
		return nil, fmt.Errorf("reputation registry returned malformed data")
	}
	score, _ := values[0].(*big.Int)
	interactions, _ := values[1].(*big.Int)
	lastUpdated, _ := values[2].(*big.Int)
	info := &model.ReputationInfo{}
	if score != nil {
		info.Score = int(score.Int64())
	}
	if interactions != nil {
		info.Interactions = interactions.Uint64()
	}
	if lastUpdated != nil && lastUpdated.Sign() > 0 {
		info.LastUpdated = time.Unix(lastUpdated.Int64(), 0).UTC()
	}
	return info, nil
}

// ChainValidationRegistry reads the validation registry contract.
type ChainValidationRegistry struct {
	addr common.Address
	tx   txlayer.Layer
	abi  abi.ABI
}

func NewChainValidationRegistry(addr common.Address, tx txlayer.Layer) (*ChainValidationRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(validationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse validation abi: %w", err)
	}
	return &ChainValidationRegistry{addr: addr, tx: tx, abi: parsed}, nil
}

func (r *ChainValidationRegistry) ResolveValidations(ctx context.Context, subject common.Address) ([]model.Validation, error) {
	data, err := r.abi.Pack("getValidations", subject)
	if err != nil {
		return nil, err
	}
	output, err := r.tx.ReadContractValue(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("validation registry call failed: %w", err)
	}
	values, err := r.abi.Unpack("getValidations", output)
	if err != nil || len(values) != 2 {
		return nil, fmt.Errorf("validation registry returned malformed data")
	}
	types, _ := values[0].([]string)
	valids, _ := values[1].([]bool)
	if len(types) != len(valids) {
		return nil, fmt.Errorf("validation registry returned malformed data")
	}
	out := make([]model.Validation, 0, len(types))
	for i := range types {
		out = append(out, model.Validation{Type: types[i], Valid: valids[i]})
	}
	return out, nil
}
