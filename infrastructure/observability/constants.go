package observability

// Metric name prefixes
const (
	MetricPrefix = "metering"
)

// Metric names
const (
	// Ledger metrics
	LedgerMutationsTotal    = MetricPrefix + ".ledger.mutations_total"
	LedgerMutationDuration  = MetricPrefix + ".ledger.mutation_duration"
	LedgerDuplicatesTotal   = MetricPrefix + ".ledger.duplicates_suppressed_total"
	LedgerStorageErrorsTotal = MetricPrefix + ".ledger.storage_errors_total"

	// Session metrics
	SessionsStartedTotal = MetricPrefix + ".sessions.started_total"
	SessionsEndedTotal   = MetricPrefix + ".sessions.ended_total"
	MinutesBilledTotal   = MetricPrefix + ".sessions.minutes_billed_total"

	// Fallback metrics
	FallbackReplaysTotal = MetricPrefix + ".fallback.replays_total"
	FallbackPendingOps   = MetricPrefix + ".fallback.pending_ops"
)

// Label keys
const (
	LabelKind    = "kind"
	LabelOutcome = "outcome"
)

// Mutation kinds
const (
	MutationKindDebit  = "debit"
	MutationKindCredit = "credit"
	MutationKindInit   = "init"
)
