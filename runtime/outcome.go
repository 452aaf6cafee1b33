package runtime

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ytwritergod/archivetoziptest/types"
)

const (
	msgDelivered      = "✅ Done! Your archive %s (%s) was delivered."
	msgDeliveredParts = "✅ Done! Your archive %s (%s) was delivered in %d parts."
	msgCompressFailed = "❌ Compression failed: %s"
	msgSplitFailed    = "❌ Could not split the archive. Please try again."
	msgDeliverFailed  = "❌ Delivery failed after %d of %d part(s). Please try again."
	msgProcessFailed  = "❌ Processing failed. Please try again."
)

// failureOutcome classifies a pipeline error into a terminal outcome.
// Compression errors keep their reason; other failures get a fixed text
// because their causes are not meant for the user.
func failureOutcome(err error, o types.Outcome) types.Outcome {
	switch {
	case errors.Is(err, types.ErrCompression):
		o.Status = types.OutcomeCompressionError
		o.Message = fmt.Sprintf(msgCompressFailed, types.Reason(err, "backend error"))
	case errors.Is(err, types.ErrSplit):
		o.Status = types.OutcomeSplitError
		o.Message = msgSplitFailed
	case errors.Is(err, types.ErrDelivery):
		o.Status = types.OutcomeDeliveryError
		o.Message = fmt.Sprintf(msgDeliverFailed, o.PartsDelivered, o.PartsTotal)
	default:
		// Unclassified I/O during the pipeline is reported like a split
		// failure: the archive existed but could not be streamed out.
		o.Status = types.OutcomeSplitError
		o.Message = msgProcessFailed
	}
	return o
}

// successOutcome fills in the success message.
func successOutcome(name string, o types.Outcome) types.Outcome {
	o.Status = types.OutcomeSuccess
	size := humanize.IBytes(uint64(max(o.ArchiveBytes, 0)))
	if o.PartsTotal > 1 {
		o.Message = fmt.Sprintf(msgDeliveredParts, name, size, o.PartsTotal)
	} else {
		o.Message = fmt.Sprintf(msgDelivered, name, size)
	}
	return o
}

// outcomeError turns a failed outcome back into a classified error for
// callers of the dispatcher.
func outcomeError(o types.Outcome) error {
	var kind error
	switch o.Status {
	case types.OutcomeSuccess:
		return nil
	case types.OutcomeCompressionError:
		kind = types.ErrCompression
	case types.OutcomeDeliveryError:
		kind = types.ErrDelivery
	case types.OutcomeSuperseded:
		return ErrSuperseded
	default:
		kind = types.ErrSplit
	}
	return types.NewError(kind, "finalize", o.Message, nil)
}
