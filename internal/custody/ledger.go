package custody

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"p2pswap/internal/logging"
	"p2pswap/internal/types"
)

var (
	ErrInsufficientBalance   = errors.New("custody: insufficient balance")
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")
	ErrZeroAddress           = errors.New("custody: zero address")
	ErrBalanceOverflow       = errors.New("custody: balance overflow")
)

// Custody moves tokens into and out of the engine's holding account. Every
// call is all-or-nothing.
type Custody interface {
	// TransferIn debits owner and credits the holding account.
	TransferIn(ctx context.Context, owner, token types.Address, amount *uint256.Int) error
	// TransferOut debits the holding account and credits to.
	TransferOut(ctx context.Context, token, to types.Address, amount *uint256.Int) error
	// ReverseIn undoes a TransferIn: amount goes back to owner together with
	// the allowance it consumed.
	ReverseIn(ctx context.Context, owner, token types.Address, amount *uint256.Int) error
	// Apply executes every transfer or none of them.
	Apply(ctx context.Context, transfers ...Transfer) error
	BalanceOf(account, token types.Address) *uint256.Int
	HoldingAccount() types.Address
}

// Transfer is a single ledger leg.
type Transfer struct {
	From   types.Address `json:"from" yaml:"from"`
	To     types.Address `json:"to" yaml:"to"`
	Token  types.Address `json:"token" yaml:"token"`
	Amount *uint256.Int  `json:"amount" yaml:"amount"`
}

type balanceKey struct {
	account types.Address
	token   types.Address
}

// Ledger is an in-memory multi-token ledger with ERC-20 style allowances
// toward the holding account.
type Ledger struct {
	mu         sync.RWMutex
	holding    types.Address
	balances   map[balanceKey]*uint256.Int
	allowances map[balanceKey]*uint256.Int
	logger     logging.Logger
}

// NewLedger creates a ledger whose custody lives at holding.
func NewLedger(holding types.Address, logger logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Ledger{
		holding:    holding,
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[balanceKey]*uint256.Int),
		logger:     logger,
	}
}

func (l *Ledger) HoldingAccount() types.Address { return l.holding }

// Mint credits account out of thin air. Used for seeding and tests.
func (l *Ledger) Mint(account, token types.Address, amount *uint256.Int) error {
	if account == (types.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{account, token}
	sum, overflow := new(uint256.Int).AddOverflow(l.balanceLocked(k), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	l.balances[k] = sum
	return nil
}

// Approve sets how much of token the holding account may pull from owner.
func (l *Ledger) Approve(owner, token types.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[balanceKey{owner, token}] = new(uint256.Int).Set(amount)
}

func (l *Ledger) Allowance(owner, token types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.allowances[balanceKey{owner, token}]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

func (l *Ledger) BalanceOf(account, token types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.balanceLocked(balanceKey{account, token}))
}

func (l *Ledger) TransferIn(ctx context.Context, owner, token types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ak := balanceKey{owner, token}
	allowance := l.allowances[ak]
	if allowance == nil || allowance.Lt(amount) {
		return fmt.Errorf("%w: %s of %s", ErrInsufficientAllowance, amount.Dec(), token.Hex())
	}
	leg := Transfer{From: owner, To: l.holding, Token: token, Amount: amount}
	if err := l.applyLocked([]Transfer{leg}); err != nil {
		return err
	}
	l.allowances[ak] = new(uint256.Int).Sub(allowance, amount)
	return nil
}

// ReverseIn ignores ctx cancellation; it runs while an aborted operation
// is being unwound.
func (l *Ledger) ReverseIn(_ context.Context, owner, token types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ak := balanceKey{owner, token}
	allowance, overflow := new(uint256.Int).AddOverflow(l.allowanceLocked(ak), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	leg := Transfer{From: l.holding, To: owner, Token: token, Amount: amount}
	if err := l.applyLocked([]Transfer{leg}); err != nil {
		return err
	}
	l.allowances[ak] = allowance
	return nil
}

func (l *Ledger) TransferOut(ctx context.Context, token, to types.Address, amount *uint256.Int) error {
	return l.Apply(ctx, Transfer{From: l.holding, To: to, Token: token, Amount: amount})
}

func (l *Ledger) Apply(ctx context.Context, transfers ...Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(transfers)
}

// applyLocked validates every leg against running balances before writing
// any of them.
func (l *Ledger) applyLocked(transfers []Transfer) error {
	staged := make(map[balanceKey]*uint256.Int)
	get := func(k balanceKey) *uint256.Int {
		if v, ok := staged[k]; ok {
			return v
		}
		v := new(uint256.Int).Set(l.balanceLocked(k))
		staged[k] = v
		return v
	}
	for _, t := range transfers {
		if t.To == (types.Address{}) {
			return ErrZeroAddress
		}
		if t.Amount == nil || t.Amount.IsZero() {
			continue
		}
		from := get(balanceKey{t.From, t.Token})
		if from.Lt(t.Amount) {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s",
				ErrInsufficientBalance, t.From.Hex(), from.Dec(), t.Token.Hex(), t.Amount.Dec())
		}
		from.Sub(from, t.Amount)
		to := get(balanceKey{t.To, t.Token})
		if _, overflow := to.AddOverflow(to, t.Amount); overflow {
			return ErrBalanceOverflow
		}
	}
	for k, v := range staged {
		l.balances[k] = v
	}
	return nil
}

func (l *Ledger) allowanceLocked(k balanceKey) *uint256.Int {
	if v, ok := l.allowances[k]; ok {
		return v
	}
	return new(uint256.Int)
}

func (l *Ledger) balanceLocked(k balanceKey) *uint256.Int {
	if v, ok := l.balances[k]; ok {
		return v
	}
	return new(uint256.Int)
}

// Balance is one non-zero ledger entry.
type Balance struct {
	Account types.Address `json:"account"`
	Token   types.Address `json:"token"`
	Amount  *uint256.Int  `json:"amount"`
}

// Export returns every non-zero balance in a deterministic order.
func (l *Ledger) Export() []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return exportLocked(l.balances)
}

// Allowances returns every non-zero allowance toward the holding account.
func (l *Ledger) Allowances() []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return exportLocked(l.allowances)
}

func exportLocked(m map[balanceKey]*uint256.Int) []Balance {
	out := make([]Balance, 0, len(m))
	for k, v := range m {
		if v == nil || v.IsZero() {
			continue
		}
		out = append(out, Balance{Account: k.account, Token: k.token, Amount: new(uint256.Int).Set(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account.Cmp(out[j].Account) < 0
		}
		return out[i].Token.Cmp(out[j].Token) < 0
	})
	return out
}

// Restore replaces all balances. Allowances are reset.
func (l *Ledger) Restore(balances []Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[balanceKey]*uint256.Int, len(balances))
	l.allowances = make(map[balanceKey]*uint256.Int)
	for _, b := range balances {
		l.balances[balanceKey{b.Account, b.Token}] = new(uint256.Int).Set(b.Amount)
	}
	l.logger.Infof("Restored custody ledger with %d balances", len(balances))
}

// RestoreAllowances replaces all allowances.
func (l *Ledger) RestoreAllowances(allowances []Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances = make(map[balanceKey]*uint256.Int, len(allowances))
	for _, a := range allowances {
		l.allowances[balanceKey{a.Account, a.Token}] = new(uint256.Int).Set(a.Amount)
	}
}
