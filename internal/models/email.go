package models

import "time"

// QueuedEmail представляет письмо в outbox, ожидающее отправки
type QueuedEmail struct {
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
	Context   map[string]string `json:"context"`
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	LastError string            `json:"last_error,omitempty"`
	ID        int64             `json:"id"`
	Attempts  int               `json:"attempts"`
}
