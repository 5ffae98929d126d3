package models

import (
	"time"
)

type NotificationKind string

const (
	NotificationReply   NotificationKind = "reply"
	NotificationMention NotificationKind = "mention"
	NotificationVote    NotificationKind = "vote"
)

// Notification is derived from account history; it is never stored.
type Notification struct {
	Kind           NotificationKind
	Index          int64
	Actor          string
	Author         string
	Permlink       string
	ParentAuthor   string
	ParentPermlink string
	Weight         int
	Timestamp      time.Time
	Unread         bool
}

// NotificationMark remembers the newest history entry an account has seen.
type NotificationMark struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Account   string    `gorm:"uniqueIndex;size:16;not null" json:"account"`
	LastIndex int64     `gorm:"not null;default:0" json:"last_index"`
	UpdatedAt time.Time `json:"updated_at"`
}
