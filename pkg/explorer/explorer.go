package explorer

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// defaultURLs are the block explorers of the chains the swap API supports
var defaultURLs = map[uint64]string{
	1:     "https://etherscan.io",
	10:    "https://optimistic.etherscan.io",
	56:    "https://bscscan.com",
	100:   "https://gnosisscan.io",
	137:   "https://polygonscan.com",
	8453:  "https://basescan.org",
	42161: "https://arbiscan.io",
	43114: "https://snowtrace.io",
}

// Linker formats block explorer links per chain
type Linker struct {
	urls map[uint64]string
}

// New creates a linker. overrides replace the default explorer of a chain.
func New(overrides map[uint64]string) *Linker {
	urls := make(map[uint64]string, len(defaultURLs)+len(overrides))
	for id, u := range defaultURLs {
		urls[id] = u
	}
	for id, u := range overrides {
		if u != "" {
			urls[id] = strings.TrimRight(u, "/")
		}
	}
	return &Linker{urls: urls}
}

// TxURL returns the explorer page of a transaction
func (l *Linker) TxURL(chainID uint64, hash common.Hash) (string, bool) {
	base, ok := l.urls[chainID]
	if !ok {
		return "", false
	}
	return base + "/tx/" + hash.Hex(), true
}

// AddressURL returns the explorer page of an address
func (l *Linker) AddressURL(chainID uint64, address common.Address) (string, bool) {
	base, ok := l.urls[chainID]
	if !ok {
		return "", false
	}
	return base + "/address/" + address.Hex(), true
}
