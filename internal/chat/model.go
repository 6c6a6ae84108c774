package chat

import "time"

// ---------------------------------------------
// 🗄️ API Models
// ---------------------------------------------

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message is one entry of the backend's global feed.
// The feed carries no recipient: only the sender knows who a message was for.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"senderUsername"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) IsZero() bool {
	return u.Username == ""
}
