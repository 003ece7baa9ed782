package models

import "time"

const (
	// TimestampLayout is the only accepted business timestamp form.
	TimestampLayout = "2006-01-02T15:04:05Z"
	// CreatedAtLayout is the server ingestion time, UTC with milliseconds.
	CreatedAtLayout = "2006-01-02T15:04:05.000Z"

	MaxTextLength = 4096
)

// Message is the sole persisted entity. It is immutable once stored.
type Message struct {
	MessageID string  `json:"message_id" bson:"_id" db:"message_id"`
	From      string  `json:"from" bson:"from_msisdn" db:"from_msisdn"`
	To        string  `json:"to" bson:"to_msisdn" db:"to_msisdn"`
	TS        string  `json:"ts" bson:"ts" db:"ts"`
	Text      *string `json:"text" bson:"text,omitempty" db:"text"`
	CreatedAt string  `json:"-" bson:"created_at" db:"created_at"`
}

// SenderCount is one row of the per-sender leaderboard.
type SenderCount struct {
	From  string `json:"from" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type Stats struct {
	TotalMessages     int64         `json:"total_messages"`
	SendersCount      int64         `json:"senders_count"`
	MessagesPerSender []SenderCount `json:"messages_per_sender"`
	FirstMessageTS    *string       `json:"first_message_ts"`
	LastMessageTS     *string       `json:"last_message_ts"`
}

// Filter narrows a message query. Empty fields are not applied.
type Filter struct {
	From  string
	To    string
	Since string
	Q     string
}

type Pagination struct {
	Limit  int
	Offset int
}

func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}
