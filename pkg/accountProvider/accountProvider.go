package accountProvider

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// IAccountProvider supplies the currently connected account. Implementations
// return an error matching types.ErrNoActiveAccount when none is connected.
type IAccountProvider interface {
	ActiveAccount(ctx context.Context) (common.Address, error)
}

// StaticAccountProvider holds an account set by the caller, e.g. from
// configuration or a connect/disconnect call.
type StaticAccountProvider struct {
	mu      sync.RWMutex
	account *common.Address
}

func NewStaticAccountProvider(account *common.Address) *StaticAccountProvider {
	p := &StaticAccountProvider{}
	if account != nil {
		p.Connect(*account)
	}
	return p
}

func (s *StaticAccountProvider) ActiveAccount(ctx context.Context) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return common.Address{}, types.NewNoActiveAccount(nil)
	}
	return *s.account, nil
}

func (s *StaticAccountProvider) Connect(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = &account
}

func (s *StaticAccountProvider) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = nil
}

// SignerAccountProvider uses the first account a signer reports, optionally
// pinned to a preferred one.
type SignerAccountProvider struct {
	signer    signer.ISigner
	preferred *common.Address
}

func NewSignerAccountProvider(s signer.ISigner, preferred *common.Address) *SignerAccountProvider {
	return &SignerAccountProvider{
		signer:    s,
		preferred: preferred,
	}
}

func (s *SignerAccountProvider) ActiveAccount(ctx context.Context) (common.Address, error) {
	accounts, err := s.signer.Accounts(ctx)
	if err != nil {
		return common.Address{}, types.NewNoActiveAccount(fmt.Errorf("failed to list signer accounts: %w", err))
	}
	if len(accounts) == 0 {
		return common.Address{}, types.NewNoActiveAccount(nil)
	}
	if s.preferred == nil {
		return accounts[0], nil
	}
	for _, a := range accounts {
		if a == *s.preferred {
			return a, nil
		}
	}
	return common.Address{}, types.NewNoActiveAccount(fmt.Errorf("account %s is not available from the signer", s.preferred.Hex()))
}
