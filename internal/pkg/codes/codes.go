// Package codes generates the order codes and verification secrets used by
// the order lifecycle. Verification codes are uniform random 6-digit decimal
// strings with no cross-order uniqueness requirement; only the order code is
// globally unique and callers regenerate it on collision.
package codes

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"time"
)

// Order code prefixes by order type.
const (
	PrefixSwap       = "SW"
	PrefixRedemption = "PR"
)

// randomDigits returns n uniformly random decimal digits as a string.
func randomDigits(n int) string {
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, bound)
	if err != nil {
		log.Print(err.Error())
		return fmt.Sprintf("%0*d", n, 0)
	}
	return fmt.Sprintf("%0*d", n, v)
}

// VerificationCode returns a uniform random 6-digit code in [100000, 999999].
func VerificationCode() string {
	const span = 900000
	v, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		log.Print(err.Error())
		return "100000"
	}
	return strconv.FormatInt(v.Int64()+100000, 10)
}

// OrderCode builds a candidate order code: a 2-letter type prefix, the 6
// trailing digits of the creation timestamp and 3 random digits. Callers
// must verify uniqueness against the store and regenerate on collision.
func OrderCode(prefix string, now time.Time) string {
	ts := strconv.FormatInt(now.UnixNano(), 10)
	return prefix + ts[len(ts)-6:] + randomDigits(3)
}
