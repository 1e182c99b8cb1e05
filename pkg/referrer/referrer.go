package referrer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// addressLength is the length of a 0x-prefixed hex address
const addressLength = 42

var ErrInvalidReferrer = errors.New("invalid referrer address, expected 42 characters")

// Parse splits a referral parameter into the partner address and its fee.
// The fee is 0 when absent or not a positive integer.
func Parse(param string) (string, int, error) {
	if len(param) < addressLength {
		return "", 0, ErrInvalidReferrer
	}

	address := param[:addressLength]
	if !common.IsHexAddress(address) {
		return "", 0, ErrInvalidReferrer
	}

	fee, err := strconv.Atoi(param[addressLength:])
	if err != nil || fee <= 0 {
		fee = 0
	}
	return address, fee, nil
}

// Capture records a referral parameter. An empty parameter leaves the store
// untouched. A new address without a positive fee clears the previous fee.
func Capture(store Store, param string) error {
	if param == "" {
		return nil
	}

	address, fee, err := Parse(param)
	if err != nil {
		return err
	}

	if err := store.Put(Referral{Address: address, FeeBps: fee}); err != nil {
		return fmt.Errorf("failed to store referrer: %w", err)
	}
	return nil
}
