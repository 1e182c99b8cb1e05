package catalog

import (
	"context"
	"fmt"
	"strings"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"

	"sifi-swap/pkg/types"
)

// TokenLister is the part of the swap API client the catalog needs
type TokenLister interface {
	GetTokens(ctx context.Context, chainID uint64) ([]types.Token, error)
}

// APISource reads token lists from the swap API
type APISource struct {
	api TokenLister
}

// NewAPISource creates a source backed by the swap API
func NewAPISource(api TokenLister) *APISource {
	return &APISource{api: api}
}

func (s *APISource) Name() string { return "sifi" }

func (s *APISource) Tokens(ctx context.Context, chainID uint64) ([]types.Token, error) {
	return s.api.GetTokens(ctx, chainID)
}

// OneClickChains maps the 1Click blockchain names onto EVM chain ids
var OneClickChains = map[string]uint64{
	"eth":    1,
	"arb":    42161,
	"base":   8453,
	"bsc":    56,
	"pol":    137,
	"op":     10,
	"avax":   43114,
	"gnosis": 100,
}

// OneClickSource reads token lists from the NEAR Intents 1Click API
type OneClickSource struct {
	client *oneclick.APIClient
	jwt    string
}

// NewOneClickSource creates a 1Click source. The token is optional for listing.
func NewOneClickSource(jwtToken string) *OneClickSource {
	config := oneclick.NewConfiguration()
	return &OneClickSource{
		client: oneclick.NewAPIClient(config),
		jwt:    jwtToken,
	}
}

func (s *OneClickSource) Name() string { return "oneclick" }

func (s *OneClickSource) Tokens(ctx context.Context, chainID uint64) ([]types.Token, error) {
	if s.jwt != "" {
		ctx = context.WithValue(ctx, oneclick.ContextAccessToken, s.jwt)
	}

	resp, httpResp, err := s.client.OneClickAPI.GetTokens(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != 200 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return fromOneClick(resp, chainID), nil
}

func fromOneClick(list []oneclick.TokenResponse, chainID uint64) []types.Token {
	var tokens []types.Token
	for _, t := range list {
		id, ok := OneClickChains[strings.ToLower(t.GetBlockchain())]
		if !ok || id != chainID {
			continue
		}

		address := t.GetContractAddress()
		if address == "" {
			address = types.NativeTokenAddress
		}

		tokens = append(tokens, types.Token{
			ChainID:  id,
			Address:  address,
			Name:     t.GetSymbol(),
			Decimals: uint8(t.GetDecimals()),
			Symbol:   t.GetSymbol(),
		})
	}
	return tokens
}
