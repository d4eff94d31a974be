package store

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string    `bun:"id,pk"`
	Email       string    `bun:"email"`
	FirstName   string    `bun:"first_name"`
	LastName    string    `bun:"last_name"`
	DisplayName string    `bun:"display_name"`
	Timezone    string    `bun:"timezone"`
	APIToken    string    `bun:"api_token"`
	CreatedAt   time.Time `bun:"created_at"`
}

type Lead struct {
	bun.BaseModel `bun:"table:leads"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id"`
	Name      string    `bun:"name"`
	Email     string    `bun:"email"`
	Company   string    `bun:"company"`
	Phone     string    `bun:"phone"`
	Status    string    `bun:"status"`
	Notes     string    `bun:"notes"`
	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id"`
	Name      string    `bun:"name"`
	Email     string    `bun:"email"`
	Company   string    `bun:"company"`
	Phone     string    `bun:"phone"`
	Notes     string    `bun:"notes"`
	LeadID    string    `bun:"lead_id"`
	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

type Task struct {
	bun.BaseModel `bun:"table:tasks"`

	ID          string     `bun:"id,pk"`
	UserID      string     `bun:"user_id"`
	Title       string     `bun:"title"`
	Notes       string     `bun:"notes"`
	Status      string     `bun:"status"`
	DueAt       *time.Time `bun:"due_at"`
	LeadID      string     `bun:"lead_id"`
	CustomerID  string     `bun:"customer_id"`
	ExternalRef string     `bun:"external_ref"`
	CreatedAt   time.Time  `bun:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at"`
}

// SentEmail is the best-effort audit row appended after a successful send.
type SentEmail struct {
	bun.BaseModel `bun:"table:sent_emails"`

	ID                string    `bun:"id,pk"`
	UserID            string    `bun:"user_id"`
	Recipients        []string  `bun:"recipients,array"`
	Subject           string    `bun:"subject"`
	ProviderMessageID string    `bun:"provider_message_id"`
	SentAt            time.Time `bun:"sent_at"`
}

// ProviderConnection holds the OAuth grant for one user/provider pair. Only
// the credential resolver reads or refreshes it.
type ProviderConnection struct {
	bun.BaseModel `bun:"table:provider_connections"`

	ID           string    `bun:"id,pk"`
	UserID       string    `bun:"user_id"`
	Provider     string    `bun:"provider"`
	AccessToken  string    `bun:"access_token"`
	RefreshToken string    `bun:"refresh_token"`
	ExpiresAt    time.Time `bun:"expires_at"`
	Identity     string    `bun:"identity"`
	CreatedAt    time.Time `bun:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at"`
}
