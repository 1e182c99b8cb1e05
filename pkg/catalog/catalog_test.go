package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sifi-swap/pkg/types"
)

type fakeSource struct {
	tokens map[uint64][]types.Token
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Tokens(ctx context.Context, chainID uint64) ([]types.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens[chainID], nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

var mainnet = []types.Token{
	{ChainID: 1, Address: types.NativeTokenAddress, Symbol: "ETH", Decimals: 18},
	{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6},
}

func TestCatalog_Resolve(t *testing.T) {
	src := &fakeSource{tokens: map[uint64][]types.Token{1: mainnet}}
	c := New(src, nil, quietLogger())
	require.NoError(t, c.Load(context.Background(), 1))

	tests := []struct {
		query  string
		chain  uint64
		want   string
		wantOK bool
	}{
		{query: "usdc", chain: 1, want: "USDC", wantOK: true},
		{query: "ETH", chain: 1, want: "ETH", wantOK: true},
		{query: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", chain: 1, want: "USDC", wantOK: true},
		{query: "DAI", chain: 1},
		{query: "USDC", chain: 10},
		{query: "", chain: 1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			token, ok := c.Resolve(tt.query, tt.chain)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, token.Symbol)
			}
		})
	}
}

func TestCatalog_LoadOncePerChain(t *testing.T) {
	src := &fakeSource{tokens: map[uint64][]types.Token{1: mainnet}}
	c := New(src, nil, quietLogger())

	require.NoError(t, c.Load(context.Background(), 1, 1, 0))
	require.NoError(t, c.Load(context.Background(), 1))
	assert.Equal(t, 1, src.calls)
	assert.Len(t, c.Tokens(1), 2)
}

func TestCatalog_LoadError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	c := New(src, nil, quietLogger())

	err := c.Load(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain 1")

	_, ok := c.Resolve("USDC", 1)
	assert.False(t, ok)
}

func TestCatalog_UsesCache(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	src := &fakeSource{tokens: map[uint64][]types.Token{1: mainnet}}

	require.NoError(t, New(src, cache, quietLogger()).Load(context.Background(), 1))
	require.NoError(t, New(src, cache, quietLogger()).Load(context.Background(), 1))
	assert.Equal(t, 1, src.calls)
}

func TestMemoryCache_Expires(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(context.Background(), "fake", 1, mainnet))

	_, ok, err := cache.Get(context.Background(), "fake", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(context.Background(), "fake", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
