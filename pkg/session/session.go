package session

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"sifi-swap/pkg/amount"
	"sifi-swap/pkg/readiness"
	"sifi-swap/pkg/types"
)

// TokenCatalog resolves a symbol on a chain
type TokenCatalog interface {
	Resolve(symbol string, chainID uint64) (*types.Token, bool)
}

// QuoteProvider prices a swap request
type QuoteProvider interface {
	GetQuote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error)
}

// BalanceOracle reports a balance in the token's smallest unit
type BalanceOracle interface {
	GetBalance(ctx context.Context, token types.Token, chainID uint64, account common.Address) (*big.Int, error)
}

// AllowanceOracle reports the spend allowance granted by owner to spender
type AllowanceOracle interface {
	GetAllowance(ctx context.Context, token types.Token, owner, spender common.Address) (*big.Int, error)
}

// ApprovalStatus exposes whether an approval is being submitted
type ApprovalStatus interface {
	InProgress() bool
}

// Deps are the collaborators a Session reads facts from
type Deps struct {
	Catalog    TokenCatalog
	Quotes     QuoteProvider
	Balances   BalanceOracle
	Allowances AllowanceOracle
	Approvals  ApprovalStatus
	Logger     logrus.FieldLogger
}

// Wallet is the connected account and the chain it is on. A nil account means
// no wallet is connected.
type Wallet struct {
	Account *common.Address
	ChainID uint64
}

type balanceKey struct {
	token       string
	chainID     uint64
	account     common.Address
	walletChain uint64
}

type allowanceKey struct {
	token   string
	owner   common.Address
	spender string
	amount  string
}

// Session reconciles the form intent with quote, balance and allowance facts.
// Every fact slot has a generation counter; a response is applied only if no
// newer request was issued for that slot in the meantime.
type Session struct {
	deps Deps

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	intent types.SwapIntent
	wallet Wallet

	fromToken *types.Token
	toToken   *types.Token

	quote         *types.Quote
	quoteErr      error
	quoteFetching bool
	quoteGen      uint64

	balance    *big.Int
	balanceErr error
	balanceKey *balanceKey
	balanceGen uint64

	allowance         *big.Int
	allowanceErr      error
	allowanceFetching bool
	allowanceKey      *allowanceKey
	allowanceGen      uint64

	swapSubmitting bool
}

// New creates a Session. ctx bounds every fetch the session issues.
func New(ctx context.Context, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Session{deps: deps, ctx: ctx}
}

// SetWallet records the connected account and its active chain
func (s *Session) SetWallet(w Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallet = w
	s.refreshBalanceLocked()
	s.refreshAllowanceLocked()
}

// SetIntent replaces the form intent. The current quote and allowance become
// invalid and are refetched.
func (s *Session) SetIntent(intent types.SwapIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intent = intent
	s.resolveTokensLocked()

	s.refreshQuoteLocked()
	s.refreshBalanceLocked()
}

// RefreshAllowance drops the cached allowance and fetches it again, e.g. after
// an approval was mined.
func (s *Session) RefreshAllowance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowanceKey = nil
	s.refreshAllowanceLocked()
}

// RefreshBalance drops the cached balance and fetches it again
func (s *Session) RefreshBalance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balanceKey = nil
	s.refreshBalanceLocked()
}

// SetSwapSubmitting marks a swap transaction as in flight
func (s *Session) SetSwapSubmitting(submitting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapSubmitting = submitting
}

// Wait blocks until all fetches issued so far have completed
func (s *Session) Wait() {
	s.wg.Wait()
}

// Inputs snapshots the facts for the readiness evaluator
func (s *Session) Inputs() readiness.Inputs {
	approving := s.deps.Approvals != nil && s.deps.Approvals.InProgress()

	s.mu.Lock()
	defer s.mu.Unlock()

	return readiness.Inputs{
		WalletConnected:    s.wallet.Account != nil,
		ActiveChainID:      s.wallet.ChainID,
		Intent:             s.intent,
		FromToken:          s.fromToken,
		ToToken:            s.toToken,
		Balance:            copyInt(s.balance),
		Allowance:          copyInt(s.allowance),
		Quote:              s.quote,
		QuoteFetching:      s.quoteFetching,
		AllowanceFetching:  s.allowanceFetching,
		ApprovalInProgress: approving,
		SwapSubmitting:     s.swapSubmitting,
	}
}

// Decision evaluates the current facts
func (s *Session) Decision() readiness.Decision {
	return readiness.Evaluate(s.Inputs())
}

// Quote returns the current quote and the last quote error
func (s *Session) Quote() (*types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote, s.quoteErr
}

// Tokens returns the resolved from and to tokens
func (s *Session) Tokens() (*types.Token, *types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fromToken, s.toToken
}

// Intent returns the current form intent
func (s *Session) Intent() types.SwapIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// Errors returns the last fetch errors for balance and allowance
func (s *Session) Errors() (balanceErr, allowanceErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceErr, s.allowanceErr
}

func (s *Session) resolveTokensLocked() {
	s.fromToken, s.toToken = nil, nil
	if s.deps.Catalog == nil {
		return
	}
	if t, ok := s.deps.Catalog.Resolve(s.intent.FromToken, s.intent.FromChain); ok {
		s.fromToken = t
	}
	if t, ok := s.deps.Catalog.Resolve(s.intent.ToToken, s.intent.ToChain); ok {
		s.toToken = t
	}
}

func (s *Session) refreshQuoteLocked() {
	s.quoteGen++
	s.quote = nil
	s.quoteErr = nil
	s.quoteFetching = false

	// The allowance is tied to the quote's spender and must wait for it
	s.allowanceGen++
	s.allowance = nil
	s.allowanceErr = nil
	s.allowanceKey = nil
	s.allowanceFetching = false

	if s.fromToken == nil || s.toToken == nil || s.deps.Quotes == nil {
		return
	}
	if !amount.IsValid(s.intent.FromAmount, int(s.fromToken.Decimals)) {
		return
	}
	units, err := amount.ToSmallestUnit(s.intent.FromAmount, s.fromToken.Decimals)
	if err != nil {
		return
	}

	req := types.QuoteRequest{
		FromToken:  s.fromToken.Address,
		ToToken:    s.toToken.Address,
		FromChain:  s.intent.FromChain,
		ToChain:    s.intent.ToChain,
		FromAmount: units,
	}
	gen := s.quoteGen
	s.quoteFetching = true
	s.allowanceFetching = !s.fromToken.IsNative()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		quote, err := s.deps.Quotes.GetQuote(s.ctx, req)

		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.quoteGen {
			s.deps.Logger.WithField("gen", gen).Debug("discarding stale quote")
			return
		}
		s.quoteFetching = false
		if err != nil {
			s.deps.Logger.WithError(err).Warn("quote failed")
			s.quoteErr = err
			s.allowanceFetching = false
			return
		}
		s.quote = quote
		s.refreshAllowanceLocked()
	}()
}

func (s *Session) refreshBalanceLocked() {
	if s.fromToken == nil || s.wallet.Account == nil || s.deps.Balances == nil {
		s.balanceGen++
		s.balance = nil
		s.balanceErr = nil
		s.balanceKey = nil
		return
	}

	key := balanceKey{
		token:       strings.ToLower(s.fromToken.Address),
		chainID:     s.intent.FromChain,
		account:     *s.wallet.Account,
		walletChain: s.wallet.ChainID,
	}
	if s.balanceKey != nil && *s.balanceKey == key {
		return
	}

	s.balanceGen++
	s.balance = nil
	s.balanceErr = nil
	s.balanceKey = &key

	gen := s.balanceGen
	token := *s.fromToken

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		balance, err := s.deps.Balances.GetBalance(s.ctx, token, key.chainID, key.account)

		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.balanceGen {
			s.deps.Logger.WithField("gen", gen).Debug("discarding stale balance")
			return
		}
		if err != nil {
			s.deps.Logger.WithError(err).Warn("balance lookup failed")
			s.balanceErr = err
			return
		}
		s.balance = balance
	}()
}

func (s *Session) refreshAllowanceLocked() {
	spender := s.quote.Spender()
	if s.quote == nil || s.fromToken == nil || s.fromToken.IsNative() ||
		spender == "" || s.wallet.Account == nil || s.deps.Allowances == nil {
		s.allowanceGen++
		s.allowance = nil
		s.allowanceErr = nil
		s.allowanceKey = nil
		// A pending quote still leads to an allowance lookup
		s.allowanceFetching = s.quote == nil && s.quoteFetching && s.fromToken != nil && !s.fromToken.IsNative()
		return
	}

	key := allowanceKey{
		token:   strings.ToLower(s.fromToken.Address),
		owner:   *s.wallet.Account,
		spender: strings.ToLower(spender),
		amount:  s.intent.FromAmount,
	}
	if s.allowanceKey != nil && *s.allowanceKey == key {
		return
	}

	s.allowanceGen++
	s.allowance = nil
	s.allowanceErr = nil
	s.allowanceKey = &key
	s.allowanceFetching = true

	gen := s.allowanceGen
	token := *s.fromToken
	owner := key.owner
	spenderAddr := common.HexToAddress(spender)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		allowance, err := s.deps.Allowances.GetAllowance(s.ctx, token, owner, spenderAddr)

		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.allowanceGen {
			s.deps.Logger.WithField("gen", gen).Debug("discarding stale allowance")
			return
		}
		s.allowanceFetching = false
		if err != nil {
			s.deps.Logger.WithError(err).Warn("allowance lookup failed")
			s.allowanceErr = err
			return
		}
		s.allowance = allowance
	}()
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
