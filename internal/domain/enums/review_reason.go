package enums

type ReviewReason string

const (
	ReviewReasonFlaggedByModeration   ReviewReason = "flagged-by-moderation"
	ReviewReasonLowMetadataConfidence ReviewReason = "low-metadata-confidence"
)

func (r ReviewReason) Valid() bool {
	switch r {
	case ReviewReasonFlaggedByModeration, ReviewReasonLowMetadataConfidence:
		return true
	default:
		return false
	}
}
