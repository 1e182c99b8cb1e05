package explorer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTxURL(t *testing.T) {
	hash := common.HexToHash("0xabc")
	l := New(map[uint64]string{10: "https://explorer.optimism.io/", 31337: "http://localhost:4000"})

	tests := []struct {
		chainID uint64
		want    string
		wantOK  bool
	}{
		{chainID: 1, want: "https://etherscan.io/tx/" + hash.Hex(), wantOK: true},
		{chainID: 10, want: "https://explorer.optimism.io/tx/" + hash.Hex(), wantOK: true},
		{chainID: 31337, want: "http://localhost:4000/tx/" + hash.Hex(), wantOK: true},
		{chainID: 999},
	}

	for _, tt := range tests {
		got, ok := l.TxURL(tt.chainID, hash)
		assert.Equal(t, tt.wantOK, ok, "chain %d", tt.chainID)
		assert.Equal(t, tt.want, got, "chain %d", tt.chainID)
	}
}

func TestAddressURL(t *testing.T) {
	addr := common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")
	got, ok := New(nil).AddressURL(42161, addr)
	assert.True(t, ok)
	assert.Equal(t, "https://arbiscan.io/address/0x1111111254EEB25477B68fb85Ed929f73A960582", got)
}
