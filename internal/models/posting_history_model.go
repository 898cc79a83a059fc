package models

import "time"

type PostingHistory struct {
	ID             int64     `db:"id" json:"id"`
	PostUID        string    `db:"post_uid" json:"post_uid"`
	Platform       string    `db:"platform" json:"platform"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	Permalink      string    `db:"permalink" json:"permalink"`
	ErrorMessage   string    `db:"error_message" json:"error_message"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
