package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSink posts events to an incoming webhook for reviewer visibility.
type SlackSink struct {
	webhookURL string
}

func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL}
}

func (s *SlackSink) Notify(ctx context.Context, event Event) error {
	msg := &slack.WebhookMessage{
		Text: formatSlackText(event),
	}
	return slack.PostWebhookContext(ctx, s.webhookURL, msg)
}

func formatSlackText(event Event) string {
	switch event.Name {
	case EventTicketOpened:
		return fmt.Sprintf(":inbox_tray: Review ticket opened: `%s`", event.SubjectID)
	case EventTicketDecided:
		return fmt.Sprintf(":white_check_mark: Review ticket decided: `%s` → %v", event.SubjectID, event.Payload["new_status"])
	case EventPacketGenerated:
		return fmt.Sprintf(":package: Claim packet generated: `%s` (total recovery %v)", event.SubjectID, event.Payload["total_recovery"])
	default:
		return fmt.Sprintf("%s: %s", event.Name, event.SubjectID)
	}
}
