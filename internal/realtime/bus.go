package realtime

import "context"

const StaffAlertsChannel = "staff-alerts"

func ConversationChannel(conversationID string) string {
	return "rt-chat-" + conversationID
}

// Bus is the change feed transport. Delivery is at-least-once per
// subscriber; consumers dedupe by message id.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Stream, error)
}

type Stream interface {
	Messages() <-chan []byte
	Close() error
}
