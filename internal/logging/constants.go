package logging

// Standardized field names for structured logging.
const (
	FieldRunID         = "run_id"
	FieldSourceID      = "bank_source_id"
	FieldTransactionID = "transaction_id"
	FieldOriginalID    = "original_transaction_id"
	FieldCurrency      = "currency"
	FieldCategory      = "category"
	FieldConfidence    = "confidence"
	FieldProvider      = "provider"
	FieldOperation     = "operation"
	FieldAttempt       = "attempt"
	FieldReason        = "reason"
	FieldStatus        = "status"
	FieldCount         = "count"
	FieldDuration      = "duration_ms"
	FieldInputFile     = "input_file"
	FieldStore         = "store"
)
