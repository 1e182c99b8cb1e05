package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sifi-swap/pkg/readiness"
	"sifi-swap/pkg/types"
)

var (
	eth  = &types.Token{ChainID: 1, Address: types.NativeTokenAddress, Decimals: 18, Symbol: "ETH"}
	usdc = &types.Token{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Symbol: "USDC"}
	dai  = &types.Token{ChainID: 1, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Symbol: "DAI"}

	usdcOP = &types.Token{ChainID: 10, Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6, Symbol: "USDC"}

	account = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

const spender = "0x1111111254EEB25477B68fb85Ed929f73A960582"

const (
	timeout = time.Second
	tick    = time.Millisecond
)

type mapCatalog []*types.Token

func (m mapCatalog) Resolve(symbol string, chainID uint64) (*types.Token, bool) {
	for _, t := range m {
		if strings.EqualFold(t.Symbol, symbol) && t.ChainID == chainID {
			return t, true
		}
	}
	return nil, false
}

var catalog = mapCatalog{eth, usdc, dai, usdcOP}

// gate lets a test hold a specific call until it is released
type gate struct {
	mu    sync.Mutex
	holds map[string]chan struct{}
}

func (g *gate) hold(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holds == nil {
		g.holds = map[string]chan struct{}{}
	}
	ch := make(chan struct{})
	g.holds[key] = ch
	return ch
}

func (g *gate) wait(key string) {
	g.mu.Lock()
	ch := g.holds[key]
	g.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

type fakeQuotes struct {
	gate
	mu    sync.Mutex
	calls []types.QuoteRequest
	err   error
}

func (f *fakeQuotes) GetQuote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	f.wait(req.FromAmount.String())
	if f.err != nil {
		return nil, f.err
	}

	q := &types.Quote{FromAmount: req.FromAmount, ToAmount: new(big.Int).Set(req.FromAmount)}
	if !strings.EqualFold(req.FromToken, types.NativeTokenAddress) {
		q.ApproveAddress = spender
	}
	return q, nil
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type balanceCall struct {
	chainID uint64
	account common.Address
}

type fakeBalances struct {
	gate
	mu        sync.Mutex
	balance   *big.Int
	byAccount map[common.Address]*big.Int
	calls     []balanceCall
}

func (f *fakeBalances) GetBalance(ctx context.Context, token types.Token, chainID uint64, acct common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, balanceCall{chainID: chainID, account: acct})
	value := f.balance
	if v, ok := f.byAccount[acct]; ok {
		value = v
	}
	value = new(big.Int).Set(value)
	f.mu.Unlock()

	f.wait(acct.Hex())
	return value, nil
}

func (f *fakeBalances) callLog() []balanceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]balanceCall(nil), f.calls...)
}

type fakeAllowances struct {
	gate
	mu      sync.Mutex
	value   *big.Int
	calls   int
	lastArg common.Address
}

func (f *fakeAllowances) GetAllowance(ctx context.Context, token types.Token, owner, sp common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastArg = sp
	value := new(big.Int).Set(f.value)
	f.mu.Unlock()

	f.wait("allowance")
	f.wait(fmt.Sprintf("allowance-%d", call))
	return value, nil
}

func (f *fakeAllowances) set(v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

func (f *fakeAllowances) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type approving bool

func (a approving) InProgress() bool { return bool(a) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newSession(q *fakeQuotes, b *fakeBalances, a *fakeAllowances) *Session {
	return New(context.Background(), Deps{
		Catalog:    catalog,
		Quotes:     q,
		Balances:   b,
		Allowances: a,
		Logger:     quietLogger(),
	})
}

func connect(s *Session) {
	acct := account
	s.SetWallet(Wallet{Account: &acct, ChainID: 1})
}

func intent(from, to, amt string) types.SwapIntent {
	return types.SwapIntent{FromToken: from, ToToken: to, FromChain: 1, ToChain: 1, FromAmount: amt}
}

func TestSession_ERC20FlowReachesApprovalThenReady(t *testing.T) {
	quotes := &fakeQuotes{}
	allowances := &fakeAllowances{value: big.NewInt(0)}
	s := newSession(quotes, &fakeBalances{balance: big.NewInt(500_000_000)}, allowances)

	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))
	s.Wait()

	assert.Equal(t, readiness.RequireApproval, s.Decision().Kind)
	assert.Equal(t, common.HexToAddress(spender), allowances.lastArg)

	allowances.set(big.NewInt(100_000_000))
	s.RefreshAllowance()
	s.Wait()

	d := s.Decision()
	assert.Equal(t, readiness.ExecuteReady, d.Kind)
	assert.Equal(t, readiness.ReasonExecute, d.Reason)
	assert.Equal(t, 2, allowances.callCount())
}

func TestSession_NativeSkipsAllowance(t *testing.T) {
	allowances := &fakeAllowances{value: big.NewInt(0)}
	s := newSession(&fakeQuotes{}, &fakeBalances{balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil)}, allowances)

	connect(s)
	s.SetIntent(intent("ETH", "USDC", "1.5"))
	s.Wait()

	assert.Zero(t, allowances.callCount())
	assert.Nil(t, s.Inputs().Allowance)
	assert.Equal(t, readiness.ExecuteReady, s.Decision().Kind)
}

func TestSession_InvalidAmountSkipsQuote(t *testing.T) {
	quotes := &fakeQuotes{}
	s := newSession(quotes, &fakeBalances{balance: big.NewInt(1)}, &fakeAllowances{value: big.NewInt(0)})

	connect(s)
	for _, amt := range []string{"", "0", "abc", "1.0000001"} {
		s.SetIntent(intent("USDC", "DAI", amt))
	}
	s.Wait()

	assert.Zero(t, quotes.callCount())
	in := s.Inputs()
	assert.Nil(t, in.Quote)
	assert.False(t, in.QuoteFetching)
	assert.Equal(t, readiness.ReasonInvalidAmount, s.Decision().Reason)
}

func TestSession_StaleQuoteIsDiscarded(t *testing.T) {
	quotes := &fakeQuotes{}
	slow := quotes.hold("1000000")

	s := newSession(quotes, &fakeBalances{balance: big.NewInt(500_000_000)}, &fakeAllowances{value: big.NewInt(0)})
	connect(s)

	s.SetIntent(intent("USDC", "DAI", "1"))
	require.Eventually(t, func() bool { return quotes.callCount() == 1 }, timeout, tick)

	s.SetIntent(intent("USDC", "DAI", "2"))
	require.Eventually(t, func() bool {
		q, _ := s.Quote()
		return q != nil
	}, timeout, tick)

	close(slow)
	s.Wait()

	q, err := s.Quote()
	require.NoError(t, err)
	assert.Equal(t, "2000000", q.FromAmount.String())
}

func TestSession_AllowanceUnknownWhileFetching(t *testing.T) {
	allowances := &fakeAllowances{value: big.NewInt(100_000_000)}
	release := allowances.hold("allowance")

	s := newSession(&fakeQuotes{}, &fakeBalances{balance: big.NewInt(500_000_000)}, allowances)
	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))

	require.Eventually(t, func() bool { return allowances.callCount() == 1 }, timeout, tick)

	in := s.Inputs()
	assert.Nil(t, in.Allowance)
	assert.True(t, in.AllowanceFetching)
	d := s.Decision()
	assert.Equal(t, readiness.Blocked, d.Kind)
	assert.True(t, d.Loading)

	close(release)
	s.Wait()
	assert.Equal(t, readiness.ExecuteReady, s.Decision().Kind)
}

func TestSession_QuoteErrorIsStored(t *testing.T) {
	quotes := &fakeQuotes{err: errors.New("no route")}
	s := newSession(quotes, &fakeBalances{balance: big.NewInt(500_000_000)}, &fakeAllowances{value: big.NewInt(0)})

	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))
	s.Wait()

	q, err := s.Quote()
	assert.Nil(t, q)
	require.EqualError(t, err, "no route")

	in := s.Inputs()
	assert.False(t, in.QuoteFetching)
	assert.False(t, in.AllowanceFetching)
	assert.Equal(t, readiness.Blocked, s.Decision().Kind)
}

func TestSession_Disconnected(t *testing.T) {
	quotes := &fakeQuotes{}
	s := newSession(quotes, &fakeBalances{balance: big.NewInt(1)}, &fakeAllowances{value: big.NewInt(0)})

	s.SetIntent(intent("USDC", "DAI", "100"))
	s.Wait()

	assert.Equal(t, readiness.ConnectWallet, s.Decision().Kind)
	assert.Nil(t, s.Inputs().Balance)
}

func TestSession_ApprovalInProgressIsReported(t *testing.T) {
	s := New(context.Background(), Deps{Catalog: catalog, Approvals: approving(true), Logger: quietLogger()})
	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))

	d := s.Decision()
	assert.Equal(t, readiness.RequireApproval, d.Kind)
	assert.True(t, d.Loading)
}

func TestSession_StaleBalanceIsDiscarded(t *testing.T) {
	balances := &fakeBalances{
		balance:   big.NewInt(1),
		byAccount: map[common.Address]*big.Int{other: big.NewInt(700_000_000)},
	}
	slow := balances.hold(account.Hex())

	s := newSession(&fakeQuotes{}, balances, &fakeAllowances{value: big.NewInt(0)})
	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))
	require.Eventually(t, func() bool { return len(balances.callLog()) == 1 }, timeout, tick)

	acct := other
	s.SetWallet(Wallet{Account: &acct, ChainID: 1})
	require.Eventually(t, func() bool { return s.Inputs().Balance != nil }, timeout, tick)

	close(slow)
	s.Wait()

	assert.Equal(t, "700000000", s.Inputs().Balance.String())
}

func TestSession_StaleAllowanceIsDiscarded(t *testing.T) {
	allowances := &fakeAllowances{value: big.NewInt(1)}
	slow := allowances.hold("allowance-1")

	s := newSession(&fakeQuotes{}, &fakeBalances{balance: big.NewInt(500_000_000)}, allowances)
	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))
	require.Eventually(t, func() bool { return allowances.callCount() == 1 }, timeout, tick)

	// Same spender, new amount
	allowances.set(big.NewInt(200_000_000))
	s.SetIntent(intent("USDC", "DAI", "200"))
	require.Eventually(t, func() bool { return s.Inputs().Allowance != nil }, timeout, tick)

	close(slow)
	s.Wait()

	assert.Equal(t, 2, allowances.callCount())
	assert.Equal(t, common.HexToAddress(spender), allowances.lastArg)
	assert.Equal(t, "200000000", s.Inputs().Allowance.String())
	assert.Equal(t, readiness.ExecuteReady, s.Decision().Kind)
}

func TestSession_BalanceRefetchedOnAccountAndChainChange(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(500_000_000)}
	s := newSession(&fakeQuotes{}, balances, &fakeAllowances{value: big.NewInt(0)})

	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))
	s.Wait()
	require.Len(t, balances.callLog(), 1)

	// Nothing changed
	connect(s)
	s.Wait()
	require.Len(t, balances.callLog(), 1)

	acct := other
	s.SetWallet(Wallet{Account: &acct, ChainID: 1})
	s.Wait()
	s.SetWallet(Wallet{Account: &acct, ChainID: 10})
	s.Wait()

	in := intent("USDC", "DAI", "100")
	in.FromChain = 10
	s.SetIntent(in)
	s.Wait()

	assert.Equal(t, []balanceCall{
		{chainID: 1, account: account},
		{chainID: 1, account: other},
		{chainID: 1, account: other},
		{chainID: 10, account: other},
	}, balances.callLog())
	assert.Equal(t, "500000000", s.Inputs().Balance.String())
}

func TestSession_AllowanceRefetchedOnAmountChange(t *testing.T) {
	allowances := &fakeAllowances{value: big.NewInt(150_000_000)}
	s := newSession(&fakeQuotes{}, &fakeBalances{balance: big.NewInt(500_000_000)}, allowances)

	connect(s)
	s.SetIntent(intent("USDC", "DAI", "100"))
	s.Wait()
	require.Equal(t, 1, allowances.callCount())
	assert.Equal(t, readiness.ExecuteReady, s.Decision().Kind)

	s.SetIntent(intent("USDC", "DAI", "200"))
	s.Wait()

	assert.Equal(t, 2, allowances.callCount())
	assert.Equal(t, readiness.RequireApproval, s.Decision().Kind)
}
