package models

// TransactionType is the direction of money movement.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "DEBIT"
	TransactionTypeCredit TransactionType = "CREDIT"
)

// ProcessingStatus tracks a transaction through ingestion and categorization.
type ProcessingStatus string

const (
	StatusUnprocessed ProcessingStatus = "UNPROCESSED"
	StatusNormalised  ProcessingStatus = "NORMALISED"
	StatusCategorised ProcessingStatus = "CATEGORISED"
	StatusError       ProcessingStatus = "ERROR"
)

// MatchType labels which similarity tier produced a historical match.
type MatchType string

const (
	MatchTypeExact       MatchType = "exact"
	MatchTypeFuzzy       MatchType = "fuzzy"
	MatchTypeAmountRange MatchType = "amount_range"
)

// Settlement currency used when the configuration does not name one.
const DefaultSettlementCurrency = "GBP"

// Canonical field names used as keys in BankSource.ColumnMapping.
const (
	FieldID          = "id"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldStarted     = "started_date"
	FieldCompleted   = "completed_date"
	FieldType        = "type"
	FieldDescription = "description"
	FieldNotes       = "notes"
	FieldCountry     = "country"
	FieldAmount      = "amount"
	FieldCurrency    = "currency"
)

// File permissions
const (
	PermissionConfigFile = 0600
	PermissionDirectory  = 0750
)
