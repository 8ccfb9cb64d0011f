package enums

// TipState is the lifecycle position of a tip id across the review and approved tables.
type TipState string

const (
	TipStatePending   TipState = "pending"
	TipStatePublished TipState = "published"
	// TipStateAbsent covers ids that were never stored and tips discarded by rejection.
	TipStateAbsent TipState = "absent"
)
