// Package messaging keeps a per-requisition conversation thread. Messages
// are append-only; participants post text with optional document
// attachments, and other subsystems drop system-authored notes into the
// same thread.
package messaging

import "time"

// Attachment references a stored document linked to one message.
type Attachment struct {
	ID          int64  `json:"id"`
	MessageID   int64  `json:"message_id"`
	DocumentKey string `json:"document_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
}

// Message is one entry in a requisition's thread. System messages carry no
// author.
type Message struct {
	ID          int64        `json:"id"`
	PRID        int64        `json:"pr_id"`
	OrgID       int64        `json:"org_id"`
	AuthorID    *int64       `json:"author_id,omitempty"`
	AuthorName  string       `json:"author_name,omitempty"`
	Body        string       `json:"body"`
	System      bool         `json:"system"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
