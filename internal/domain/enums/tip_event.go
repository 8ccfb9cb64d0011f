package enums

type TipEventAction string

const (
	TipEventIngestApproved TipEventAction = "INGEST_APPROVED"
	TipEventIngestQueued   TipEventAction = "INGEST_QUEUED"
	TipEventIngestFailed   TipEventAction = "INGEST_FAILED"
	TipEventReviewApprove  TipEventAction = "REVIEW_APPROVE"
	TipEventReviewReject   TipEventAction = "REVIEW_REJECT"
)
