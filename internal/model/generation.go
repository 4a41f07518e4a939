package model

import "time"

// Generation is one entry in the usage ledger: a single successful copy
// generation. Completed rows are immutable and append-only.
type Generation struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ProductTitle   string    `db:"product_title" json:"product_title"`
	Keywords       []string  `db:"keywords" json:"keywords"`
	OutputMarkdown string    `db:"output_markdown" json:"output_markdown"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UserUsage summarizes a user's plan and today's consumption.
type UserUsage struct {
	UserID     string `json:"user_id"`
	IsPro      bool   `json:"is_pro"`
	TodayCount int    `json:"today_count"`
	DailyLimit int    `json:"daily_limit"`
}
