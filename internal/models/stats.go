package models

import "time"

// SenderCount is the number of messages from one sender
type SenderCount struct {
	From  string `json:"from" gorm:"column:sender"`
	Count int64  `json:"count" gorm:"column:count"`
}

// Stats summarises the whole message table as of one snapshot
type Stats struct {
	TotalMessages     int64         `json:"total_messages"`
	SendersCount      int64         `json:"senders_count"`
	MessagesPerSender []SenderCount `json:"messages_per_sender"`
	FirstMessageTs    *time.Time    `json:"first_message_ts"`
	LastMessageTs     *time.Time    `json:"last_message_ts"`
}
