package normalizer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/currencyutils"
	"fjacquet/ledger-sync/internal/dateutils"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

// Value returns the trimmed value of the column mapped to a canonical field.
// Header labels match case-insensitively and ignore a UTF-8 BOM.
func Value(row RawRow, src models.BankSource, field string) (string, bool) {
	label, ok := src.Column(field)
	if !ok {
		return "", false
	}
	if v, ok := row[label]; ok {
		return strings.TrimSpace(v), true
	}
	for k, v := range row {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(k, "\ufeff")), label) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Required returns a non-empty field value or a ValidationError naming the field.
func Required(row RawRow, src models.BankSource, field string) (string, error) {
	v, ok := Value(row, src, field)
	if !ok {
		return "", &txerror.ValidationError{Source: src.ID, Field: field, Reason: "column missing from row"}
	}
	if v == "" {
		return "", &txerror.ValidationError{Source: src.ID, Field: field, Reason: "value is empty"}
	}
	return v, nil
}

// Optional returns the field value, or "" when unmapped or absent.
func Optional(row RawRow, src models.BankSource, field string) string {
	v, _ := Value(row, src, field)
	return v
}

// Amount parses the signed amount column.
func Amount(row RawRow, src models.BankSource) (decimal.Decimal, error) {
	raw, err := Required(row, src, models.FieldAmount)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := currencyutils.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, &txerror.ValidationError{Source: src.ID, Field: models.FieldAmount, Value: raw, Reason: "not a number"}
	}
	return amount, nil
}

// Currency reads the currency column, falling back to the source default only
// when the mapping has no currency column.
func Currency(row RawRow, src models.BankSource) (string, error) {
	raw := src.DefaultCurrency
	if _, mapped := src.Column(models.FieldCurrency); mapped {
		v, err := Required(row, src, models.FieldCurrency)
		if err != nil {
			return "", err
		}
		raw = v
	}
	code, err := currencyutils.NormalizeCurrencyCode(raw)
	if err != nil {
		return "", &txerror.ValidationError{Source: src.ID, Field: models.FieldCurrency, Value: raw, Reason: "not an ISO 4217 code"}
	}
	return code, nil
}

// Timestamp resolves the transaction timestamp in UTC. A completed/started pair
// prefers completed and falls back to started. A date column is merged with the
// time column when one is mapped; a date-only value uses DefaultTimeOfDay.
func Timestamp(row RawRow, src models.BankSource) (time.Time, error) {
	for _, field := range []string{models.FieldCompleted, models.FieldStarted} {
		if v := Optional(row, src, field); v != "" {
			t, _, err := parseDateField(v, src, field)
			return t, err
		}
	}

	_, hasDate := src.Column(models.FieldDate)
	if !hasDate {
		field := models.FieldCompleted
		if _, ok := src.Column(field); !ok {
			field = models.FieldStarted
		}
		return time.Time{}, &txerror.ValidationError{Source: src.ID, Field: field, Reason: "value is empty"}
	}

	raw, err := Required(row, src, models.FieldDate)
	if err != nil {
		return time.Time{}, err
	}
	date, layout, err := parseDateField(raw, src, models.FieldDate)
	if err != nil {
		return time.Time{}, err
	}
	if dateutils.HasClock(layout) {
		return date, nil
	}

	timeOfDay := dateutils.DefaultTimeOfDay
	if rawTime := Optional(row, src, models.FieldTime); rawTime != "" {
		timeOfDay, err = dateutils.ParseTimeOfDay(rawTime)
		if err != nil {
			return time.Time{}, &txerror.ValidationError{Source: src.ID, Field: models.FieldTime, Value: rawTime, Reason: "not a time of day"}
		}
	}
	return dateutils.CombineDateTime(date, timeOfDay), nil
}

func parseDateField(raw string, src models.BankSource, field string) (time.Time, string, error) {
	t, layout, err := dateutils.ParseDate(raw, src.DateLayout)
	if err != nil {
		return time.Time{}, "", &txerror.ValidationError{Source: src.ID, Field: field, Value: raw, Reason: "unrecognized date format"}
	}
	return t, layout, nil
}

// Identity returns the native id when the source provides one, otherwise a
// content fingerprint of the row.
func Identity(row RawRow, src models.BankSource, ts time.Time, description string, signedAmount decimal.Decimal, currency string) (string, error) {
	if src.HasNativeID {
		return Required(row, src, models.FieldID)
	}
	return Fingerprint(ts, description, signedAmount, currency), nil
}
