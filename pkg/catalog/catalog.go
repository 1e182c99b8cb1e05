package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"sifi-swap/pkg/types"
)

// Source lists the tokens tradable on a chain
type Source interface {
	Name() string
	Tokens(ctx context.Context, chainID uint64) ([]types.Token, error)
}

// Catalog loads chain token lists from a Source and resolves symbols against
// them. Lookups after Load never touch the network.
type Catalog struct {
	source Source
	cache  Cache
	log    logrus.FieldLogger

	mu     sync.RWMutex
	chains map[uint64][]types.Token
}

// New creates a catalog. A nil cache disables persistence between runs.
func New(source Source, cache Cache, log logrus.FieldLogger) *Catalog {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Catalog{
		source: source,
		cache:  cache,
		log:    log,
		chains: make(map[uint64][]types.Token),
	}
}

// Load fetches the token lists for the given chains that are not loaded yet
func (c *Catalog) Load(ctx context.Context, chainIDs ...uint64) error {
	for _, chainID := range chainIDs {
		if chainID == 0 || c.loaded(chainID) {
			continue
		}

		tokens, err := c.fetch(ctx, chainID)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.chains[chainID] = tokens
		c.mu.Unlock()
	}
	return nil
}

func (c *Catalog) loaded(chainID uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.chains[chainID]
	return ok
}

func (c *Catalog) fetch(ctx context.Context, chainID uint64) ([]types.Token, error) {
	l := c.log.WithFields(logrus.Fields{"source": c.source.Name(), "chainID": chainID})

	if c.cache != nil {
		tokens, ok, err := c.cache.Get(ctx, c.source.Name(), chainID)
		if err != nil {
			l.WithError(err).Warn("token cache read failed")
		} else if ok {
			l.WithField("count", len(tokens)).Debug("token list from cache")
			return tokens, nil
		}
	}

	tokens, err := c.source.Tokens(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens for chain %d: %w", chainID, err)
	}
	for i := range tokens {
		if tokens[i].ChainID == 0 {
			tokens[i].ChainID = chainID
		}
	}
	l.WithField("count", len(tokens)).Debug("token list fetched")

	if c.cache != nil {
		if err := c.cache.Set(ctx, c.source.Name(), chainID, tokens); err != nil {
			l.WithError(err).Warn("token cache write failed")
		}
	}
	return tokens, nil
}

// Tokens returns the loaded tokens of a chain
func (c *Catalog) Tokens(chainID uint64) []types.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Token, len(c.chains[chainID]))
	copy(out, c.chains[chainID])
	return out
}

// Resolve finds a token on a loaded chain by symbol (case-insensitive) or by
// contract address
func (c *Catalog) Resolve(symbolOrAddress string, chainID uint64) (*types.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := strings.TrimSpace(symbolOrAddress)
	if query == "" {
		return nil, false
	}
	byAddress := common.IsHexAddress(query)

	for _, token := range c.chains[chainID] {
		if byAddress && strings.EqualFold(token.Address, query) {
			t := token
			return &t, true
		}
		if !byAddress && strings.EqualFold(token.Symbol, query) {
			t := token
			return &t, true
		}
	}
	return nil, false
}
