package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"sifi-swap/pkg/types"
)

// Pattern: <amount> <token> [ON <chain>] TO <token> [ON <chain>]
// Matches: "100 USDC TO ETH", "1.5 ETH ON ARB TO USDC ON BASE", "100 0xA0b8... TO DAI"
var swapPattern = regexp.MustCompile(`(?i)^(\S*)\s+(0x[0-9a-f]{40}|[a-z0-9.]+)(?:\s+on\s+([a-z0-9]+))?\s+to\s+(0x[0-9a-f]{40}|[a-z0-9.]+)(?:\s+on\s+([a-z0-9]+))?$`)

// chainAliases maps chain names to EVM chain ids
var chainAliases = map[string]uint64{
	"eth":       1,
	"ethereum":  1,
	"mainnet":   1,
	"op":        10,
	"optimism":  10,
	"bsc":       56,
	"bnb":       56,
	"gnosis":    100,
	"pol":       137,
	"polygon":   137,
	"matic":     137,
	"base":      8453,
	"arb":       42161,
	"arbitrum":  42161,
	"avax":      43114,
	"avalanche": 43114,
}

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 100 USDC to ETH"
//   - "1.5 ETH on arb to USDC on base"
//
// The amount is returned as typed; its validity is decided against the token.
// Chains default to defaultChain, and the destination defaults to the source chain.
func ParseSwapCommand(command string, defaultChain uint64) (*types.SwapIntent, error) {
	command = strings.Join(strings.Fields(command), " ")

	// Remove the word "SWAP" if present at the beginning
	if len(command) >= 5 && strings.EqualFold(command[:5], "swap ") {
		command = command[5:]
	}

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> [on <chain>] to <token> [on <chain>]' (e.g., 'swap 100 USDC to ETH')")
	}

	fromChain := defaultChain
	if matches[3] != "" {
		id, err := ParseChain(matches[3])
		if err != nil {
			return nil, err
		}
		fromChain = id
	}

	toChain := fromChain
	if matches[5] != "" {
		id, err := ParseChain(matches[5])
		if err != nil {
			return nil, err
		}
		toChain = id
	}

	return &types.SwapIntent{
		FromAmount: matches[1],
		FromToken:  NormalizeToken(matches[2]),
		ToToken:    NormalizeToken(matches[4]),
		FromChain:  fromChain,
		ToChain:    toChain,
	}, nil
}

// ParseChain resolves a chain name or numeric chain id
func ParseChain(name string) (uint64, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if id, ok := chainAliases[name]; ok {
		return id, nil
	}
	if id, err := strconv.ParseUint(name, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	return 0, fmt.Errorf("unknown chain '%s'", name)
}

// NormalizeToken upper-cases symbols and checksums addresses
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if common.IsHexAddress(token) {
		return common.HexToAddress(token).Hex()
	}
	return strings.ToUpper(token)
}
