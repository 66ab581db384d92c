// Package currencyutils provides the amount parsing and currency-code handling
// shared by the normalizers and the converter.
package currencyutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	symbolRe  = regexp.MustCompile(`[€$£¥₣₹₽₩฿₫₪\s]`)
	isoCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)
	codeRe    = regexp.MustCompile(`[A-Za-z]{3}`)
)

var symbolCodes = map[string]string{
	"£": "GBP",
	"€": "EUR",
	"$": "USD",
	"¥": "JPY",
	"₣": "CHF",
}

// ParseAmount parses a signed amount. It handles "1,234.56", "1.234,56", "1'234.56",
// "(12.50)" for negatives, currency symbols and trailing ISO codes.
func ParseAmount(amountStr string) (decimal.Decimal, error) {
	if strings.TrimSpace(amountStr) == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	standardized := StandardizeAmount(amountStr)
	amount, err := decimal.NewFromString(standardized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	return amount, nil
}

// StandardizeAmount converts various amount formats into one decimal.NewFromString accepts.
func StandardizeAmount(amountStr string) string {
	s := symbolRe.ReplaceAllString(amountStr, "")
	s = codeRe.ReplaceAllString(s, "")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	s = strings.ReplaceAll(s, "'", "")

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ".") < strings.LastIndex(s, ",") {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Contains(s, ","):
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	if negative && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}

// NormalizeCurrencyCode upper-cases an ISO 4217 code or maps a symbol to one.
func NormalizeCurrencyCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if mapped, ok := symbolCodes[c]; ok {
		return mapped, nil
	}
	if !isoCodeRe.MatchString(c) {
		return "", fmt.Errorf("invalid currency code '%s'", code)
	}
	return c, nil
}

// Convert multiplies amount by rate and rounds half away from zero to 2 decimal places.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// FormatAmount renders an amount with 2 decimal places and its currency symbol or code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	formatted := amount.StringFixed(2)
	switch strings.ToUpper(currency) {
	case "":
		return formatted
	case "GBP":
		return "£" + formatted
	case "EUR":
		return "€" + formatted
	case "USD":
		return "$" + formatted
	default:
		return strings.ToUpper(currency) + " " + formatted
	}
}
