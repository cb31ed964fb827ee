package log

// Field names shared by ledger log records.
const (
	FieldComponent     = "component"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldDuration      = "duration_ms"
	FieldAccountID     = "account_id"
	FieldUserID        = "user_id"
	FieldTransactionID = "transaction_id"
	FieldRuleID        = "rule_id"
	FieldCategoryID    = "category_id"
	FieldAmountCents   = "amount_cents"
	FieldSnapshots     = "snapshot_count"
	FieldDeleted       = "deleted_count"
	FieldChanged       = "changed_count"
	FieldJobID         = "job_id"
	FieldJobKind       = "job_kind"
)

const (
	ComponentApp      = "app"
	ComponentSnapshot = "snapshot"
	ComponentLedger   = "ledger"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentCache    = "cache"
	ComponentCLI      = "cli"
)

const (
	OpRecalculate  = "recalculate"
	OpRecategorize = "recategorize"
	OpImport       = "import"
	OpRebuild      = "rebuild"
	OpStartup      = "startup"
	OpShutdown     = "shutdown"
)

const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeDatabase   = "database_error"
	ErrorTypeNetwork    = "network_error"
	ErrorTypeTimeout    = "timeout_error"
	ErrorTypeNotFound   = "not_found_error"
	ErrorTypeConflict   = "conflict_error"
	ErrorTypePattern    = "pattern_error"
	ErrorTypeInternal   = "internal_error"
)
