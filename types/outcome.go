package types

// OutcomeStatus is the terminal status of a finalized session.
type OutcomeStatus string

// Outcome statuses.
const (
	// OutcomeSuccess indicates every artifact was delivered.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeCompressionError indicates the archive could not be built.
	OutcomeCompressionError OutcomeStatus = "compression_error"
	// OutcomeSplitError indicates the artifact could not be split.
	OutcomeSplitError OutcomeStatus = "split_error"
	// OutcomeDeliveryError indicates the transport rejected an artifact.
	OutcomeDeliveryError OutcomeStatus = "delivery_error"
	// OutcomeSuperseded indicates a newer session replaced this one mid-flight.
	// Output is discarded, never delivered.
	OutcomeSuperseded OutcomeStatus = "superseded"
)

// Outcome describes how a finalized session ended.
type Outcome struct {
	Status  OutcomeStatus
	Message string
	// ArchiveBytes is the size of the built archive (0 if never built).
	ArchiveBytes int64
	// PartsDelivered counts delivered artifacts (1 for an unsplit archive).
	PartsDelivered int
	// PartsTotal is the number of parts produced (1 when not split).
	PartsTotal int
}

// Succeeded reports whether the outcome is a success.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == OutcomeSuccess
}
