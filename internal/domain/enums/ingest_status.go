package enums

type IngestStatus string

const (
	IngestStatusApproved     IngestStatus = "approved"
	IngestStatusReviewNeeded IngestStatus = "review_needed"
)
