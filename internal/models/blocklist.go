package models

import (
	"time"
)

// BlockedAuthor hides every post and reply of an account.
type BlockedAuthor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Account   string    `gorm:"uniqueIndex;size:16;not null" json:"account"`
	Reason    string    `gorm:"size:200" json:"reason"`
	AddedBy   string    `gorm:"size:16" json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedPost hides one piece of content (and its replies).
type BlockedPost struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Author    string    `gorm:"size:16;not null;uniqueIndex:idx_blocked_post" json:"author"`
	Permlink  string    `gorm:"size:255;not null;uniqueIndex:idx_blocked_post" json:"permlink"`
	Reason    string    `gorm:"size:200" json:"reason"`
	AddedBy   string    `gorm:"size:16" json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}
