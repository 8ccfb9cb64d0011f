package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nicklasc86/travelbot/internal/domain/model"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"

	callbackPrefix = "tip"
	previewRunes   = 300
)

// CallbackData encodes a review decision button as tip:<action>:<id>.
func CallbackData(action, tipID string) string {
	return callbackPrefix + ":" + action + ":" + tipID
}

// ParseCallbackData is the inverse of CallbackData. Ids may contain colons.
func ParseCallbackData(data string) (action, tipID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return "", "", false
	}
	action, tipID = parts[1], strings.TrimSpace(parts[2])
	if tipID == "" {
		return "", "", false
	}
	switch action {
	case ActionApprove, ActionReject:
		return action, tipID, true
	default:
		return "", "", false
	}
}

type cardSender interface {
	SendReviewCard(ctx context.Context, chatID int64, text, tipID string) error
}

// Notifier posts a review card to the moderators chat for every queued tip.
type Notifier struct {
	sender cardSender
	chatID int64
}

func NewNotifier(sender cardSender, chatID int64) *Notifier {
	return &Notifier{sender: sender, chatID: chatID}
}

func (n *Notifier) NotifyQueued(ctx context.Context, tip model.Tip) error {
	if n == nil || n.sender == nil || n.chatID == 0 {
		return nil
	}
	if err := n.sender.SendReviewCard(ctx, n.chatID, FormatReviewCard(tip), tip.ID); err != nil {
		return fmt.Errorf("notify queued tip %s: %w", tip.ID, err)
	}
	return nil
}

func FormatReviewCard(tip model.Tip) string {
	reason := "-"
	if tip.Reason != nil {
		reason = string(*tip.Reason)
	}
	confidence := "-"
	if tip.Confidence != nil {
		confidence = fmt.Sprintf("%.2f", *tip.Confidence)
	}

	lines := []string{
		"Tip waiting for review",
		"ID: " + tip.ID,
		"Reason: " + reason,
		"City: " + defaultString(tip.City, "-"),
		"Country: " + defaultString(tip.Country, "-"),
		"Confidence: " + confidence,
		"",
		preview(tip.Text),
	}
	return strings.Join(lines, "\n")
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "…"
}

func defaultString(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}
