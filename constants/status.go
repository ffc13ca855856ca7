package constants

// PageStatus is the canonical status for one page within a run.
type PageStatus string

// Stable values (the ledger stores these exact strings).
const (
	PageStatusCompleted PageStatus = "COMPLETED" // final text written (possibly degraded)
	PageStatusFailed    PageStatus = "FAILED"    // terminal failure, no artifact
	PageStatusSkipped   PageStatus = "SKIPPED"   // artifact already existed, no model calls
)

// Stage names one model invocation within a page's two-step pipeline.
type Stage string

const (
	StageInitial Stage = "initial" // first-pass transcription
	StageRefined Stage = "refined" // correction pass against the same image
)
