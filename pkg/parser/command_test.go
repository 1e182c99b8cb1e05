package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sifi-swap/pkg/types"
)

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		command string
		want    types.SwapIntent
	}{
		{
			command: "swap 100 usdc to eth",
			want:    types.SwapIntent{FromAmount: "100", FromToken: "USDC", ToToken: "ETH", FromChain: 1, ToChain: 1},
		},
		{
			command: "1.5   ETH on arb TO usdc on base",
			want:    types.SwapIntent{FromAmount: "1.5", FromToken: "ETH", ToToken: "USDC", FromChain: 42161, ToChain: 8453},
		},
		{
			command: "0.5 WETH on 10 to DAI",
			want:    types.SwapIntent{FromAmount: "0.5", FromToken: "WETH", ToToken: "DAI", FromChain: 10, ToChain: 10},
		},
		{
			command: "100 0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48 to ETH",
			want:    types.SwapIntent{FromAmount: "100", FromToken: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", ToToken: "ETH", FromChain: 1, ToChain: 1},
		},
		{
			// Amount validity is decided later against the token decimals
			command: "1.2.3 USDC to ETH",
			want:    types.SwapIntent{FromAmount: "1.2.3", FromToken: "USDC", ToToken: "ETH", FromChain: 1, ToChain: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, err := ParseSwapCommand(tt.command, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseSwapCommand_Invalid(t *testing.T) {
	for _, command := range []string{
		"",
		"swap",
		"100 USDC",
		"100 USDC into ETH",
		"100 USDC on narnia to ETH",
	} {
		_, err := ParseSwapCommand(command, 1)
		assert.Error(t, err, command)
	}
}

func TestParseChain(t *testing.T) {
	id, err := ParseChain("Polygon")
	require.NoError(t, err)
	assert.Equal(t, uint64(137), id)

	id, err = ParseChain("31337")
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), id)

	_, err = ParseChain("0")
	assert.Error(t, err)
}
