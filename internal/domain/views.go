package domain

import "time"

// Profile is the public view of an account returned by login and profile
// lookups.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// ProfileOf projects an Account onto its public Profile.
func ProfileOf(a *Account) Profile {
	return Profile{Name: a.Name, Email: a.Email, Verified: a.Verified}
}

// PendingRequest is a pending connection request joined with the
// requester's identity, as listed to the recipient.
type PendingRequest struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Member identifies one side of a chat.
type Member struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChatInfo describes a chat together with both members. Members[0] is the
// account that sent the connection request when the chat originates from
// one.
type ChatInfo struct {
	ChatID  uint      `json:"chat_id"`
	Members [2]Member `json:"members"`
}

// MessageView is a message joined with its sender's identity.
type MessageView struct {
	ID          uint      `json:"id"`
	ChatID      uint      `json:"chat_id"`
	Body        *string   `json:"text"`
	FileRef     *string   `json:"file_ref"`
	Read        bool      `json:"read"         gorm:"column:is_read"`
	CreatedAt   time.Time `json:"created_at"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
}

// ChatSummary is one row of an account's chat list: the other member, a
// preview of the most recent message, and the number of messages from the
// other member that are still unread.
type ChatSummary struct {
	ChatID          uint       `json:"chat_id"`
	OtherName       string     `json:"name"`
	OtherEmail      string     `json:"email"`
	LastText        *string    `json:"last_message"`
	LastFileRef     *string    `json:"last_file_ref"`
	LastAt          *time.Time `json:"last_message_at"`
	LastSenderEmail *string    `json:"last_message_from"`
	Unread          int64      `json:"unread_count"`
}
