package chat

import "time"

// Session captures a private conversation bound to one authenticated channel.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
