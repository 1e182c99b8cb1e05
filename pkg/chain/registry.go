package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"sifi-swap/config"
	"sifi-swap/pkg/approval"
	"sifi-swap/pkg/types"
)

// Registry routes chain access by chain id
type Registry struct {
	chains map[uint64]*EVM
}

// NewRegistry builds a registry from already connected chains
func NewRegistry(chains ...*EVM) *Registry {
	r := &Registry{chains: make(map[uint64]*EVM, len(chains))}
	for _, c := range chains {
		r.chains[c.ChainID()] = c
	}
	return r
}

// DialAll connects to every configured chain
func DialAll(cfg *config.Config, log logrus.FieldLogger) (*Registry, error) {
	r := NewRegistry()
	for _, id := range cfg.ChainIDs() {
		evm, err := Dial(cfg.Chains[id], cfg.PrivateKey, log)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("chain %d: %w", id, err)
		}
		r.chains[id] = evm
	}
	return r, nil
}

// Get returns the connection of a chain
func (r *Registry) Get(chainID uint64) (*EVM, error) {
	evm, ok := r.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d not configured", chainID)
	}
	return evm, nil
}

// ChainIDs returns the connected chain ids in ascending order
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetBalance implements the session balance oracle
func (r *Registry) GetBalance(ctx context.Context, token types.Token, chainID uint64, account common.Address) (*big.Int, error) {
	evm, err := r.Get(chainID)
	if err != nil {
		return nil, err
	}
	return evm.Balance(ctx, token, account)
}

// GetAllowance implements the session allowance oracle
func (r *Registry) GetAllowance(ctx context.Context, token types.Token, owner, spender common.Address) (*big.Int, error) {
	evm, err := r.Get(token.ChainID)
	if err != nil {
		return nil, err
	}
	return evm.Allowance(ctx, token, owner, spender)
}

// WriteContract implements the approval signer
func (r *Registry) WriteContract(ctx context.Context, call approval.ContractCall) (common.Hash, error) {
	evm, err := r.Get(call.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	return evm.WriteContract(ctx, call)
}

// WaitForReceipt implements the approval signer
func (r *Registry) WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash) error {
	evm, err := r.Get(chainID)
	if err != nil {
		return err
	}
	return evm.WaitForReceipt(ctx, hash)
}

// SendTransaction sends a swap transaction on the chain it was built for
func (r *Registry) SendTransaction(ctx context.Context, tx types.SwapTx) (common.Hash, error) {
	evm, err := r.Get(tx.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	return evm.SendTransaction(ctx, tx)
}

// Close closes every connection
func (r *Registry) Close() {
	for _, evm := range r.chains {
		evm.Close()
	}
}
