// Package domain defines the persistence models for accounts, connection
// requests, chats, and messages. These types are mapped with GORM and form the
// core data layer of the messaging backend.
package domain

import "time"

// Request status values. A request starts pending and becomes accepted; there
// is no rejected or cancelled state.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// Account is a registered user identified by a unique email address.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Name: display name shown to other accounts.
//   - Email: unique, stored trimmed and lower-cased.
//   - PasswordHash: bcrypt hash; never serialized.
//   - VerificationCode: 6-digit code mailed at registration. It is kept after
//     verification so that repeating the verification succeeds.
//   - Verified: set once the submitted code matched.
type Account struct {
	ID               uint      `json:"id"         gorm:"primaryKey"`
	Name             string    `json:"name"       gorm:"type:varchar(255);not null"`
	Email            string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_accounts_email"`
	PasswordHash     string    `json:"-"          gorm:"type:varchar(255);not null"`
	VerificationCode *string   `json:"-"          gorm:"type:varchar(16)"`
	Verified         bool      `json:"verified"   gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// ConnectionRequest is an invitation from one account to another to open a
// chat. At most one pending row may exist per ordered (requester, recipient)
// pair; the migration backs this with a partial unique index.
type ConnectionRequest struct {
	ID          uint      `json:"id"           gorm:"primaryKey"`
	RequesterID uint      `json:"requester_id" gorm:"not null;index:idx_requests_pair,priority:1"`
	RecipientID uint      `json:"recipient_id" gorm:"not null;index:idx_requests_pair,priority:2;index:idx_requests_recipient"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted')"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Requester Account `json:"-" gorm:"foreignKey:RequesterID;references:ID"`
	Recipient Account `json:"-" gorm:"foreignKey:RecipientID;references:ID"`
}

// TableName returns the database table name for ConnectionRequest.
func (ConnectionRequest) TableName() string { return "connection_requests" }

// Chat is a persistent two-party thread. New chats are stored with
// User1ID < User2ID; rows imported from older databases may be unordered,
// which is why pair lookups always match both orientations.
type Chat struct {
	ID        uint      `json:"id"       gorm:"primaryKey"`
	User1ID   uint      `json:"user1_id" gorm:"not null;index"`
	User2ID   uint      `json:"user2_id" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`

	User1 Account `json:"-" gorm:"foreignKey:User1ID;references:ID"`
	User2 Account `json:"-" gorm:"foreignKey:User2ID;references:ID"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// HasMember reports whether accountID is one of the two chat members.
func (c Chat) HasMember(accountID uint) bool {
	return c.User1ID == accountID || c.User2ID == accountID
}

// Message is a single entry in a chat: a text body, a file reference, or
// both. Messages are only ever mutated to flip the read flag.
type Message struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	ChatID    uint      `json:"chat_id"    gorm:"not null;index:idx_chat_msgs,priority:1"`
	SenderID  uint      `json:"sender_id"  gorm:"not null;index"`
	Body      *string   `json:"text"       gorm:"type:text"`
	FileRef   *string   `json:"file_ref"   gorm:"type:varchar(512)"`
	Read      bool      `json:"read"       gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Chat   Chat    `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Sender Account `json:"-" gorm:"foreignKey:SenderID;references:ID"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
