package domain

import "time"

// Quote text bounds.
const (
	QuoteMinLen = 3
	QuoteMaxLen = 200
)

type Quote struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuoteOfTheDay is a quote joined with its author's public profile.
type QuoteOfTheDay struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}
