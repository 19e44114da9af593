package models

import (
	"time"
)

// Message is an accepted webhook delivery. Rows are written once and never
// updated.
type Message struct {
	MessageID string    `json:"message_id" gorm:"column:message_id;primaryKey;index:idx_messages_ts_id,priority:2"`
	From      string    `json:"from" gorm:"column:from_msisdn;not null;index:idx_messages_from"`
	To        string    `json:"to" gorm:"column:to_msisdn;not null"`
	Ts        time.Time `json:"ts" gorm:"column:ts;not null;index:idx_messages_ts;index:idx_messages_ts_id,priority:1"`
	Text      *string   `json:"text" gorm:"column:text"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

// TableName pins the table name independent of naming strategy
func (Message) TableName() string {
	return "messages"
}

// WebhookPayload is the JSON body accepted by the ingestion endpoint
type WebhookPayload struct {
	MessageID string  `json:"message_id" validate:"required,notblank"`
	From      string  `json:"from" validate:"required,msisdn"`
	To        string  `json:"to" validate:"required,msisdn"`
	Ts        string  `json:"ts" validate:"required,utc_rfc3339"`
	Text      *string `json:"text" validate:"omitempty,max=4096"`
}

// MessageFilter narrows a listing. Zero values mean no filter.
type MessageFilter struct {
	From  string
	Since *time.Time
	Query string
}

// MessagePage is one page of a filtered listing
type MessagePage struct {
	Data   []Message `json:"data"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}
