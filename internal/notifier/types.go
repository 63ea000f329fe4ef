package notifier

import "time"

// Config has no send timeout of its own: each Bot API call is bounded by the
// transport's HTTP client (telegram.request_timeout).
type Config struct {
	RatePerSec  int
	HistorySize int
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// NotificationEvent is the payload of notifier.* bus events.
type NotificationEvent struct {
	ChatID   int64         `json:"chat_id"`
	ThreadID int           `json:"thread_id,omitempty"`
	Text     string        `json:"text"`
	At       time.Time     `json:"at"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}
