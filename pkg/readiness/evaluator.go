package readiness

import (
	"math/big"

	"sifi-swap/pkg/amount"
	"sifi-swap/pkg/types"
)

// Kind is the affordance the UI should present
type Kind string

const (
	ConnectWallet   Kind = "connect_wallet"
	SwitchNetwork   Kind = "switch_network"
	RequireApproval Kind = "require_approval"
	Blocked         Kind = "blocked"
	ExecuteReady    Kind = "execute_ready"
)

// Button labels shown for the execute affordance
const (
	ReasonSameTokens          = "Cannot swap same tokens"
	ReasonEnterAmount         = "Enter an amount"
	ReasonInvalidAmount       = "Enter a valid amount"
	ReasonInsufficientBalance = "Insufficient Balance"
	ReasonExecute             = "Execute Swap"
)

// Inputs are the facts the decision is derived from. Nil balance, allowance or
// quote means unknown.
type Inputs struct {
	WalletConnected    bool
	ActiveChainID      uint64
	Intent             types.SwapIntent
	FromToken          *types.Token
	ToToken            *types.Token
	Balance            *big.Int
	Allowance          *big.Int
	Quote              *types.Quote
	QuoteFetching      bool
	AllowanceFetching  bool
	ApprovalInProgress bool
	SwapSubmitting     bool
}

// Decision is the single affordance to render
type Decision struct {
	Kind    Kind
	Reason  string
	Loading bool
}

// Enabled returns true if the primary action can be taken right now
func (d Decision) Enabled() bool {
	switch d.Kind {
	case Blocked:
		return false
	case RequireApproval:
		return !d.Loading
	default:
		return true
	}
}

// Evaluate reduces the inputs to exactly one decision. First match wins:
// connect wallet, switch network, approval, blocked, ready.
func Evaluate(in Inputs) Decision {
	loading := in.QuoteFetching || in.AllowanceFetching || in.ApprovalInProgress || in.SwapSubmitting

	if !in.WalletConnected {
		return Decision{Kind: ConnectWallet}
	}

	if in.ActiveChainID != 0 && in.FromToken != nil && in.FromToken.ChainID != 0 &&
		in.ActiveChainID != in.FromToken.ChainID {
		return Decision{Kind: SwitchNetwork, Loading: loading}
	}

	isNative := in.FromToken.IsNative()
	requested := requestedUnits(in.Intent.FromAmount, in.FromToken)
	hasSufficientBalance := requested != nil && in.Balance != nil && in.Balance.Cmp(requested) >= 0
	allowanceAbove := requested != nil && in.Allowance != nil && in.Allowance.Cmp(requested) >= 0

	showApproval := (in.Quote != nil &&
		in.Allowance != nil &&
		!allowanceAbove &&
		!isNative &&
		hasSufficientBalance) || in.ApprovalInProgress
	if showApproval {
		return Decision{Kind: RequireApproval, Loading: loading}
	}

	validAmount := amount.IsValid(in.Intent.FromAmount, decimalsOf(in.FromToken))
	sameTokens := in.FromToken.SameAs(in.ToToken) && in.Intent.FromChain == in.Intent.ToChain

	disabled := sameTokens ||
		in.Intent.FromAmount == "" ||
		!validAmount ||
		!hasSufficientBalance ||
		in.Quote == nil ||
		(!isNative && !allowanceAbove) ||
		in.QuoteFetching ||
		in.AllowanceFetching

	reason := label(in, sameTokens, validAmount, isNative, hasSufficientBalance)
	if disabled {
		return Decision{Kind: Blocked, Reason: reason, Loading: loading}
	}

	return Decision{Kind: ExecuteReady, Reason: reason, Loading: loading}
}

func label(in Inputs, sameTokens, validAmount, isNative, hasSufficientBalance bool) string {
	if sameTokens {
		return ReasonSameTokens
	}
	if in.Intent.FromAmount == "" {
		return ReasonEnterAmount
	}
	if !validAmount {
		return ReasonInvalidAmount
	}

	// Before a quote arrives the balance check only applies to the native token
	hasFetchedQuote := in.Quote != nil || isNative
	// Without a resolved token the requested amount is unknown, not too large
	if in.FromToken != nil && in.Balance != nil && hasFetchedQuote && !hasSufficientBalance {
		return ReasonInsufficientBalance
	}

	return ReasonExecute
}

// requestedUnits returns nil when the token is unresolved or the amount cannot
// be converted, which keeps every sufficiency check false.
func requestedUnits(value string, token *types.Token) *big.Int {
	if token == nil {
		return nil
	}
	units, err := amount.ToSmallestUnit(value, token.Decimals)
	if err != nil {
		return nil
	}
	return units
}

func decimalsOf(token *types.Token) int {
	if token == nil {
		return -1
	}
	return int(token.Decimals)
}
