package codes

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := VerificationCode()
		require.Len(t, code, 6)

		value, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, value, 100000)
		assert.LessOrEqual(t, value, 999999)
	}
}

func TestOrderCode(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name   string
		prefix string
	}{
		{name: "swap prefix", prefix: PrefixSwap},
		{name: "redemption prefix", prefix: PrefixRedemption},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := OrderCode(tc.prefix, now)
			require.Len(t, code, 11)
			assert.Equal(t, tc.prefix, code[:2])

			_, err := strconv.Atoi(code[2:])
			assert.NoError(t, err, "order code digits should be numeric")
		})
	}
}
