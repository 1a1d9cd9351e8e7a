package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"p2pswap/internal/types"
)

// SeedBalance mints Amount of Token to Account. With Approve set the same
// amount is also approved for custody.
type SeedBalance struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
	Approve bool   `yaml:"approve"`
}

// SeedPool creates a venue pool and funds it from Provider, which must hold
// both amounts after the balances are minted.
type SeedPool struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	Fee      uint32 `yaml:"fee"`
	AmountA  string `yaml:"amount_a"`
	AmountB  string `yaml:"amount_b"`
	Provider string `yaml:"provider"`
}

// Seed is the development bootstrap file: balances, pools and relayers.
type Seed struct {
	Balances []SeedBalance `yaml:"balances"`
	Pools    []SeedPool    `yaml:"pools"`
	Relayers []string      `yaml:"relayers"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) Validate() error {
	for i, b := range s.Balances {
		if !common.IsHexAddress(b.Account) || !common.IsHexAddress(b.Token) {
			return fmt.Errorf("seed balance %d: invalid account or token address", i)
		}
		if _, err := types.ParseAmount(b.Amount); err != nil {
			return fmt.Errorf("seed balance %d: %w", i, err)
		}
	}
	for i, p := range s.Pools {
		if !common.IsHexAddress(p.TokenA) || !common.IsHexAddress(p.TokenB) || !common.IsHexAddress(p.Provider) {
			return fmt.Errorf("seed pool %d: invalid token or provider address", i)
		}
		if _, err := types.ParseAmount(p.AmountA); err != nil {
			return fmt.Errorf("seed pool %d amount_a: %w", i, err)
		}
		if _, err := types.ParseAmount(p.AmountB); err != nil {
			return fmt.Errorf("seed pool %d amount_b: %w", i, err)
		}
	}
	for i, r := range s.Relayers {
		if !common.IsHexAddress(r) {
			return fmt.Errorf("seed relayer %d: invalid address %q", i, r)
		}
	}
	return nil
}

// Amounts returns the parsed balance fields.
func (b SeedBalance) Amounts() (account, token common.Address, amount *uint256.Int) {
	amount, _ = types.ParseAmount(b.Amount)
	return common.HexToAddress(b.Account), common.HexToAddress(b.Token), amount
}

// Amounts returns the parsed pool fields.
func (p SeedPool) Amounts() (tokenA, tokenB, provider common.Address, amountA, amountB *uint256.Int) {
	amountA, _ = types.ParseAmount(p.AmountA)
	amountB, _ = types.ParseAmount(p.AmountB)
	return common.HexToAddress(p.TokenA), common.HexToAddress(p.TokenB), common.HexToAddress(p.Provider), amountA, amountB
}
