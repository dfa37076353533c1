// Package token generates the opaque bearer tokens embedded in confirmation
// and unsubscribe links.
package token

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Length of every generated token.
const Length = 32

// New returns a fixed-length alphanumeric token drawn uniformly from
// crypto/rand. rand.Int performs rejection sampling, so no alphabet symbol is
// favored.
func New() string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, Length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand never fails on supported platforms
			panic(err)
		}
		b[i] = alphabet[n.Int64()]
	}

	return string(b)
}
