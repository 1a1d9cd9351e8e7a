package matcher

import (
	"context"

	"github.com/holiman/uint256"

	"p2pswap/internal/types"
)

// Serial queues commands from concurrent callers in front of a Service. The
// engine rejects a command that overlaps a running one, so front ends that
// share it across goroutines (HTTP handlers, the keeper) go through Serial.
// Queries pass straight through.
type Serial struct {
	Service
	sem chan struct{}
}

func NewSerial(svc Service) *Serial {
	return &Serial{Service: svc, sem: make(chan struct{}, 1)}
}

// acquire waits for the previous command to finish or ctx to end.
func (s *Serial) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) release() { <-s.sem }

// Do runs fn in the command queue, for work that must not interleave with
// commands.
func (s *Serial) Do(ctx context.Context, fn func() error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn()
}

func (s *Serial) Submit(ctx context.Context, owner types.Address, req SubmitRequest) (types.Hash, error) {
	if err := s.acquire(ctx); err != nil {
		return types.Hash{}, err
	}
	defer s.release()
	return s.Service.Submit(ctx, owner, req)
}

func (s *Serial) Cancel(ctx context.Context, caller types.Address, id types.Hash) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.Service.Cancel(ctx, caller, id)
}

func (s *Serial) BatchMatch(ctx context.Context, caller types.Address, ids []types.Hash) (int, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()
	return s.Service.BatchMatch(ctx, caller, ids)
}

func (s *Serial) ExecuteViaAMM(ctx context.Context, caller types.Address, id types.Hash) (*FallbackResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.Service.ExecuteViaAMM(ctx, caller, id)
}

func (s *Serial) AuthorizeRelayer(ctx context.Context, caller, account types.Address, authorized bool) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.Service.AuthorizeRelayer(ctx, caller, account, authorized)
}

func (s *Serial) UpdateConfiguration(ctx context.Context, caller types.Address, rewardBps, feeBps uint16) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.Service.UpdateConfiguration(ctx, caller, rewardBps, feeBps)
}

func (s *Serial) EmergencyWithdraw(ctx context.Context, caller, token, to types.Address, amount *uint256.Int) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.Service.EmergencyWithdraw(ctx, caller, token, to, amount)
}

func (s *Serial) TransferOwnership(ctx context.Context, caller, next types.Address) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.Service.TransferOwnership(ctx, caller, next)
}

var _ Service = (*Serial)(nil)
