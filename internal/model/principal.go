package model

import (
	"github.com/ethereum/go-ethereum/common"
)

type Role string

const (
	RoleOwner Role = "owner"
	RoleAgent Role = "agent"
)

// Principal is an authenticated API caller bound to an on-chain identity.
type Principal struct {
	Name    string         `json:"name"`
	APIKey  string         `json:"-"`
	Address common.Address `json:"address"`
	Role    Role           `json:"role"`

	QPS   float64 `json:"qps"`
	Burst int     `json:"burst"`
}

func (p *Principal) IsOwner() bool {
	return p != nil && p.Role == RoleOwner
}
