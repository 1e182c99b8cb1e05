package amount

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals int
		want     error
	}{
		{"integer", "100", 6, nil},
		{"fraction", "1.5", 18, nil},
		{"leading dot", ".5", 18, nil},
		{"trailing dot", "2.", 6, nil},
		{"max precision", "0.000001", 6, nil},
		{"unresolved token skips precision", "0.1234567890123456789", -1, nil},
		{"empty", "", 6, ErrEmpty},
		{"letters", "abc", 6, ErrFormat},
		{"negative", "-1", 6, ErrFormat},
		{"two dots", "1.2.3", 6, ErrFormat},
		{"lone dot", ".", 6, ErrFormat},
		{"whitespace", " 1", 6, ErrFormat},
		{"exponent", "1e6", 6, ErrFormat},
		{"too precise", "0.0000001", 6, ErrPrecision},
		{"zero", "0", 6, ErrNotPositive},
		{"zero fraction", "0.000", 6, ErrNotPositive},
		{"overflow", "1" + zeros(60), 18, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.value, tt.decimals)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToSmallestUnit(t *testing.T) {
	tests := []struct {
		value    string
		decimals uint8
		want     string
	}{
		{"100", 6, "100000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.1234567", 6, "123456"},
		{"0.0000009", 6, "0"},
		{"", 6, "0"},
		{".5", 0, "0"},
		{"007.25", 2, "725"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ToSmallestUnit(tt.value, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := ToSmallestUnit("1,5", 6)
	require.ErrorIs(t, err, ErrFormat)
}

// Anything accepted as valid converts to a positive integer within uint256.
func TestValidRoundTrip(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	values := []string{"1", "0.000001", "123.456", "999999999", ".1", "5."}

	for _, v := range values {
		require.True(t, IsValid(v, 6), v)

		units, err := ToSmallestUnit(v, 6)
		require.NoError(t, err)
		assert.Equal(t, 1, units.Sign(), v)
		assert.True(t, units.Cmp(maxUint256) <= 0, v)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.5", Format(big.NewInt(1500000), 6))
	assert.Equal(t, "0.000001", Format(big.NewInt(1), 6))
	assert.Equal(t, "100", Format(big.NewInt(100000000), 6))
	assert.Equal(t, "42", Format(big.NewInt(42), 0))
	assert.Equal(t, "", Format(nil, 6))
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
