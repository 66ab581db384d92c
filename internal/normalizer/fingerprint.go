package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GeneratedIDPrefix marks identities derived from row content rather than
// supplied by the bank.
const GeneratedIDPrefix = "gen_"

// Fingerprint derives a stable identity for a row without a native id.
// Format: "gen_" + first 32 hex chars of
// SHA256("{UTC RFC3339}|{normalized description}|{signed amount, 2dp}|{CURRENCY}").
// Only row content enters the hash.
func Fingerprint(ts time.Time, description string, signedAmount decimal.Decimal, currency string) string {
	input := strings.Join([]string{
		ts.UTC().Format(time.RFC3339),
		NormalizeDescription(description),
		signedAmount.StringFixed(2),
		strings.ToUpper(strings.TrimSpace(currency)),
	}, "|")

	hash := sha256.Sum256([]byte(input))
	return GeneratedIDPrefix + hex.EncodeToString(hash[:])[:32]
}
