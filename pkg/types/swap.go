package types

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeTokenAddress is the placeholder address used for a chain's gas token
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// SwapIntent represents what the user asked to swap
type SwapIntent struct {
	FromToken  string
	ToToken    string
	FromChain  uint64
	ToChain    uint64
	FromAmount string
}

// Token is resolved token metadata from a chain-scoped token list
type Token struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// IsNative returns true if the token is the chain's gas token
func (t *Token) IsNative() bool {
	if t == nil {
		return false
	}
	if strings.EqualFold(t.Address, NativeTokenAddress) {
		return true
	}
	return common.IsHexAddress(t.Address) && common.HexToAddress(t.Address) == (common.Address{})
}

// SameAs reports whether both tokens point at the same contract
func (t *Token) SameAs(other *Token) bool {
	if t == nil || other == nil {
		return false
	}
	return strings.EqualFold(t.Address, other.Address)
}

// QuoteSource identifies the liquidity source backing a quote
type QuoteSource struct {
	Name string      `json:"name"`
	Data interface{} `json:"data,omitempty"`
}

// Quote is a priced proposal for a single SwapIntent
type Quote struct {
	FromAmount           *big.Int
	FromToken            Token
	ToToken              Token
	ToAmount             *big.Int
	EstimatedGas         *big.Int
	ApproveAddress       string
	Permit2Address       string
	ToAmountAfterFeesUsd string
	Source               QuoteSource
}

// Spender returns the address that must be approved to move the from-token.
// Permit2 takes precedence over the plain approve target.
func (q *Quote) Spender() string {
	if q == nil {
		return ""
	}
	if q.Permit2Address != "" {
		return q.Permit2Address
	}
	return q.ApproveAddress
}

// QuoteRequest holds the parameters sent to the quote provider
type QuoteRequest struct {
	FromToken  string
	ToToken    string
	FromChain  uint64
	ToChain    uint64
	FromAmount *big.Int
}

// Permit carries a Permit2 signature for swaps that use it
type Permit struct {
	Nonce     *big.Int `json:"nonce"`
	Deadline  *big.Int `json:"deadline"`
	Signature string   `json:"signature"`
}

// SwapRequest asks the API to build a swap transaction for a quote
type SwapRequest struct {
	Quote       *Quote
	FromAddress string
	Slippage    float64
	ToAddress   string
	Partner     string
	FeeBps      int
	Permit      *Permit
}

// SwapTx is an unsigned swap transaction returned by the API
type SwapTx struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data"`
	ChainID  uint64 `json:"chainId"`
	GasLimit string `json:"gasLimit"`
}

// Swap bundles the transaction with its cost estimate
type Swap struct {
	Tx                   SwapTx `json:"tx"`
	EstimatedGasTotalUsd string `json:"estimatedGasTotalUsd"`
}

// JumpStatus is the state of a cross-chain jump
type JumpStatus string

const (
	JumpPending  JumpStatus = "pending"
	JumpInflight JumpStatus = "inflight"
	JumpSuccess  JumpStatus = "success"
	JumpUnknown  JumpStatus = "unknown"
)

// Jump describes the destination leg of a cross-chain swap
type Jump struct {
	Status JumpStatus `json:"status"`
	TxHash string     `json:"txhash,omitempty"`
}

// TokenUsdPrice holds a token's price in USD
type TokenUsdPrice struct {
	UsdPrice string `json:"usdPrice"`
}
