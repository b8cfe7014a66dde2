package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reEmail = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reID    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	// PSA cert numbers are all digits, 7 to 10 long today
	reCert = regexp.MustCompile(`^[0-9]{5,12}$`)
	// eBay legacy ids are digits; RESTful ids look like v1|123456789|0
	reItem = regexp.MustCompile(`^(v1\|[0-9]{6,20}\|[0-9]{1,20}|[0-9]{6,20})$`)

	maxBidCeiling = decimal.NewFromInt(1_000_000)
)

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 80 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// ID validates a simple resource identifier (snipe/user ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

func CertNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reCert.MatchString(s)
}

func ItemID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reItem.MatchString(s)
}

// MaxBid parses a positive amount with at most two decimals.
func MaxBid(s string) (decimal.Decimal, bool) {
	d, ok := Amount(s)
	if !ok || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Amount parses a non-negative amount with at most two decimals.
func Amount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || d.GreaterThan(maxBidCeiling) {
		return decimal.Decimal{}, false
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Title trims and caps a free-text listing label.
func Title(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return "", false
	}
	return s, true
}

// Schedule accepts an empty value or an RFC 3339 timestamp.
func Schedule(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

// Password enforces a simple length window for login checks.
func Password(s string) bool {
	l := len(s)
	if l < 8 || l > 64 {
		return false
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasLower && hasUpper && hasDigit && hasSymbol
}
