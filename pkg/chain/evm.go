package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"sifi-swap/config"
	"sifi-swap/pkg/approval"
	"sifi-swap/pkg/types"
)

var (
	ErrNoSigner = errors.New("no private key configured")
	ErrReverted = errors.New("transaction reverted")
)

// ERC-20 subset used for balances and approvals
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}

// Backend is the part of an RPC client the chain access needs
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	Close()
}

// EVM reads balances and allowances on one chain and, with a key, signs and
// sends transactions on it
type EVM struct {
	network      config.ChainConfig
	backend      Backend
	privateKey   *ecdsa.PrivateKey
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// Dial connects to the chain's RPC endpoint. privateKey may be empty for a
// read-only connection.
func Dial(network config.ChainConfig, privateKey string, log logrus.FieldLogger) (*EVM, error) {
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", network.ChainID)
	}

	var key *ecdsa.PrivateKey
	if privateKey != "" {
		var err error
		key, err = crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
	}

	client, err := ethclient.Dial(network.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	return NewEVM(network, client, key, log), nil
}

// NewEVM wraps an existing backend
func NewEVM(network config.ChainConfig, backend Backend, key *ecdsa.PrivateKey, log logrus.FieldLogger) *EVM {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EVM{
		network:      network,
		backend:      backend,
		privateKey:   key,
		pollInterval: 2 * time.Second,
		log:          log.WithField("chainID", network.ChainID),
	}
}

// ChainID returns the chain this connection serves
func (e *EVM) ChainID() uint64 {
	return e.network.ChainID
}

// Account returns the signing account, or nil without a key
func (e *EVM) Account() *common.Address {
	if e.privateKey == nil {
		return nil
	}
	addr := crypto.PubkeyToAddress(e.privateKey.PublicKey)
	return &addr
}

// Balance returns the account's balance of token in its smallest unit
func (e *EVM) Balance(ctx context.Context, token types.Token, account common.Address) (*big.Int, error) {
	if token.IsNative() {
		balance, err := e.backend.BalanceAt(ctx, account, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	balance, err := e.callUint256(ctx, common.HexToAddress(token.Address), "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	return balance, nil
}

// Allowance returns how much of token spender may move on behalf of owner.
// The native token needs no allowance.
func (e *EVM) Allowance(ctx context.Context, token types.Token, owner, spender common.Address) (*big.Int, error) {
	if token.IsNative() {
		return new(big.Int).Set(math.MaxBig256), nil
	}

	allowance, err := e.callUint256(ctx, common.HexToAddress(token.Address), "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return allowance, nil
}

func (e *EVM) callUint256(ctx context.Context, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	result, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := parsedERC20.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	return value, nil
}

// WriteContract signs and sends an ERC-20 call
func (e *EVM) WriteContract(ctx context.Context, call approval.ContractCall) (common.Hash, error) {
	data, err := parsedERC20.Pack(call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s data: %w", call.Method, err)
	}
	return e.send(ctx, call.Address, big.NewInt(0), data, 0)
}

// SendTransaction signs and sends a swap transaction built by the API
func (e *EVM) SendTransaction(ctx context.Context, tx types.SwapTx) (common.Hash, error) {
	if !common.IsHexAddress(tx.To) {
		return common.Hash{}, fmt.Errorf("invalid transaction target: %s", tx.To)
	}
	if tx.ChainID != 0 && tx.ChainID != e.network.ChainID {
		return common.Hash{}, fmt.Errorf("transaction for chain %d sent to chain %d", tx.ChainID, e.network.ChainID)
	}

	value, err := parseQuantity(tx.Value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid value: %w", err)
	}
	data, err := decodeHex(tx.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid data: %w", err)
	}
	gasLimit, err := parseQuantity(tx.GasLimit)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid gas limit: %w", err)
	}
	if !gasLimit.IsUint64() {
		return common.Hash{}, fmt.Errorf("gas limit out of range: %s", gasLimit)
	}

	return e.send(ctx, common.HexToAddress(tx.To), value, data, gasLimit.Uint64())
}

func (e *EVM) send(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (common.Hash, error) {
	from := e.Account()
	if from == nil {
		return common.Hash{}, ErrNoSigner
	}

	// Get nonce
	nonce, err := e.backend.PendingNonceAt(ctx, *from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	// Get gas price
	gasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	if e.network.GasLimit != nil {
		gasLimit = *e.network.GasLimit
	}
	if gasLimit == 0 {
		gasLimit = 100000 // typical ERC20 call
		estimatedGas, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  *from,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err == nil {
			gasLimit = estimatedGas * 120 / 100 // Add 20% buffer
		} else {
			e.log.WithError(err).Warn("gas estimation failed, using default limit")
		}
	}

	tx := gethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	// Sign transaction
	chainID := new(big.Int).SetUint64(e.network.ChainID)
	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(chainID), e.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"txHash":   signedTx.Hash().Hex(),
		"to":       to.Hex(),
		"nonce":    nonce,
		"gasLimit": gasLimit,
	}).Debug("transaction sent")

	return signedTx.Hash(), nil
}

// gasPrice returns the gas price to use for transactions
func (e *EVM) gasPrice(ctx context.Context) (*big.Int, error) {
	// Use configured gas price if available
	if e.network.GasPrice != nil {
		return big.NewInt(*e.network.GasPrice), nil
	}

	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

// WaitForReceipt polls until the transaction is mined or ctx ends. A mined
// but reverted transaction returns ErrReverted.
func (e *EVM) WaitForReceipt(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return nil
		case errors.Is(err, ethereum.NotFound):
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.WithError(err).WithField("txHash", hash.Hex()).Debug("receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the client connection
func (e *EVM) Close() {
	if e.backend != nil {
		e.backend.Close()
	}
}

// parseQuantity parses a hex (0x-prefixed) or decimal integer. Empty is zero.
func parseQuantity(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}
