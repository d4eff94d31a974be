package contract

import (
	"context"
	"time"
)

// CredentialResolver supplies a currently-valid access token for a user and
// provider, refreshing behind the scenes when needed. Failures surface as
// ErrNotConnected or ErrRefreshFailed.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID, provider string) (Credential, error)
}

// Filter is an equality filter applied to a table query.
type Filter map[string]any

// Store is the generic record façade the dispatcher writes through. Every
// operation is implicitly scoped to userID; a row belonging to another tenant
// behaves as if it does not exist.
type Store interface {
	Query(ctx context.Context, userID, table string, filters Filter, orderBy string, limit int) ([]map[string]any, error)
	Count(ctx context.Context, userID, table string, filters Filter) (int, error)
	Search(ctx context.Context, userID, table, term string, limit int) ([]map[string]any, error)
	Get(ctx context.Context, userID, table, id string) (map[string]any, error)
	Insert(ctx context.Context, userID, table string, row map[string]any) (string, error)
	Update(ctx context.Context, userID, table, id string, patch map[string]any) error
	Delete(ctx context.Context, userID, table, id string) error
}

type MailSender interface {
	Send(ctx context.Context, cred Credential, msg MailMessage) (MailReceipt, error)
}

type CalendarProvider interface {
	CreateEvent(ctx context.Context, cred Credential, in EventInput) (Event, error)
	ListEvents(ctx context.Context, cred Credential, win EventWindow) ([]Event, error)
	UpdateEvent(ctx context.Context, cred Credential, eventID string, patch EventPatch) (Event, error)
	DeleteEvent(ctx context.Context, cred Credential, eventID string) error
}

// SchedulingProvider is one scheduling-link service. BuildLink is pure URL
// construction and performs no network call.
type SchedulingProvider interface {
	Name() string
	ListEventTypes(ctx context.Context, cred Credential) ([]EventType, error)
	BuildLink(eventType EventType, prefill LinkPrefill) string
	ListBookings(ctx context.Context, cred Credential, from, to time.Time) ([]Booking, error)
}
