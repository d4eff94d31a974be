package action

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
	"github.com/Asygurare/salespilot/agent/schedule"
)

// memStore is an in-memory stand-in for the tenant-scoped record façade.
type memStore struct {
	rows map[string][]map[string]any // table -> rows
	// failInsertInto makes Insert fail for one table, for audit-write tests.
	failInsertInto string
	inserts        int
	updates        int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string][]map[string]any{}}
}

func (m *memStore) Query(_ context.Context, userID, table string, filters contract.Filter, _ string, limit int) ([]map[string]any, error) {
	var out []map[string]any
	for _, row := range m.rows[table] {
		if row["user_id"] != userID {
			continue
		}
		match := true
		for k, v := range filters {
			if row[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, userID, table string, filters contract.Filter) (int, error) {
	rows, err := m.Query(ctx, userID, table, filters, "", 0)
	return len(rows), err
}

func (m *memStore) Search(_ context.Context, userID, table, _ string, _ int) ([]map[string]any, error) {
	return m.Query(context.Background(), userID, table, nil, "", 0)
}

func (m *memStore) Get(_ context.Context, userID, table, id string) (map[string]any, error) {
	for _, row := range m.rows[table] {
		if row["id"] == id && row["user_id"] == userID {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", contract.ErrNotFound, table, id)
}

func (m *memStore) Insert(_ context.Context, userID, table string, row map[string]any) (string, error) {
	if table == m.failInsertInto {
		return "", fmt.Errorf("insert into %s: connection reset", table)
	}
	id := uuid.NewString()
	stored := map[string]any{"id": id, "user_id": userID}
	for k, v := range row {
		stored[k] = v
	}
	m.rows[table] = append(m.rows[table], stored)
	m.inserts++
	return id, nil
}

func (m *memStore) Update(ctx context.Context, userID, table, id string, patch map[string]any) error {
	row, err := m.Get(ctx, userID, table, id)
	if err != nil {
		return err
	}
	for k, v := range patch {
		row[k] = v
	}
	m.updates++
	return nil
}

func (m *memStore) Delete(_ context.Context, userID, table, id string) error {
	rows := m.rows[table]
	for i, row := range rows {
		if row["id"] == id && row["user_id"] == userID {
			m.rows[table] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s", contract.ErrNotFound, table, id)
}

// failingUpdateStore wraps memStore to fail every Update, for testing the
// reported-not-rolled-back conversion path.
type failingUpdateStore struct {
	*memStore
}

func (f *failingUpdateStore) Update(context.Context, string, string, string, map[string]any) error {
	return fmt.Errorf("update leads: connection reset")
}

type stubProfiles struct {
	profile identity.Profile
	err     error
}

func (s stubProfiles) Profile(context.Context, string) (identity.Profile, error) {
	return s.profile, s.err
}

type stubResolver struct {
	cred contract.Credential
	err  error
	// calls counts resolutions per provider name.
	calls map[string]int
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		cred:  contract.Credential{AccessToken: "tok", Identity: "me@example.com"},
		calls: map[string]int{},
	}
}

func (s *stubResolver) Resolve(_ context.Context, _, provider string) (contract.Credential, error) {
	s.calls[provider]++
	if s.err != nil {
		return contract.Credential{}, s.err
	}
	return s.cred, nil
}

type spyMail struct {
	sent []contract.MailMessage
	err  error
}

func (s *spyMail) Send(_ context.Context, _ contract.Credential, msg contract.MailMessage) (contract.MailReceipt, error) {
	if s.err != nil {
		return contract.MailReceipt{}, s.err
	}
	s.sent = append(s.sent, msg)
	return contract.MailReceipt{MessageID: "msg-1"}, nil
}

type spyCalendar struct {
	created []contract.EventInput
	updated []contract.EventPatch
	deleted []string
	listed  []contract.EventWindow
	err     error
}

func (s *spyCalendar) CreateEvent(_ context.Context, _ contract.Credential, in contract.EventInput) (contract.Event, error) {
	if s.err != nil {
		return contract.Event{}, s.err
	}
	s.created = append(s.created, in)
	return contract.Event{ID: "ev-1", Summary: in.Summary, Start: in.Start, End: in.End}, nil
}

func (s *spyCalendar) ListEvents(_ context.Context, _ contract.Credential, win contract.EventWindow) ([]contract.Event, error) {
	s.listed = append(s.listed, win)
	return nil, s.err
}

func (s *spyCalendar) UpdateEvent(_ context.Context, _ contract.Credential, eventID string, patch contract.EventPatch) (contract.Event, error) {
	if s.err != nil {
		return contract.Event{}, s.err
	}
	s.updated = append(s.updated, patch)
	return contract.Event{ID: eventID}, nil
}

func (s *spyCalendar) DeleteEvent(_ context.Context, _ contract.Credential, eventID string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, eventID)
	return nil
}

type stubScheduling struct {
	name     string
	types    []contract.EventType
	bookings []contract.Booking
	err      error
}

func (s *stubScheduling) Name() string { return s.name }

func (s *stubScheduling) ListEventTypes(context.Context, contract.Credential) ([]contract.EventType, error) {
	return s.types, s.err
}

func (s *stubScheduling) BuildLink(et contract.EventType, prefill contract.LinkPrefill) string {
	link := et.SchedulingURL
	if prefill.Email != "" {
		link += "?email=" + prefill.Email
	}
	return link
}

func (s *stubScheduling) ListBookings(context.Context, contract.Credential, time.Time, time.Time) ([]contract.Booking, error) {
	return s.bookings, s.err
}

// memScheduler mirrors the repository's state machine in memory.
type memScheduler struct {
	sends map[string]*schedule.ScheduledSend
}

func newMemScheduler() *memScheduler {
	return &memScheduler{sends: map[string]*schedule.ScheduledSend{}}
}

func (m *memScheduler) Create(_ context.Context, send *schedule.ScheduledSend) error {
	if err := send.Validate(send.CreatedAt); err != nil {
		return err
	}
	send.ID = uuid.NewString()
	send.Status = schedule.StatusPending
	m.sends[send.ID] = send
	return nil
}

func (m *memScheduler) Cancel(_ context.Context, userID, id string, now time.Time) (*schedule.ScheduledSend, error) {
	send, ok := m.sends[id]
	if !ok || send.UserID != userID {
		return nil, fmt.Errorf("%w: scheduled send %s", contract.ErrNotFound, id)
	}
	if !send.Status.Cancellable() {
		return nil, fmt.Errorf("%w: scheduled send %s is %s", contract.ErrInvalidState, id, send.Status)
	}
	send.Status = schedule.StatusCancelled
	send.UpdatedAt = now
	return send, nil
}

type fixture struct {
	dispatcher *Dispatcher
	store      *memStore
	resolver   *stubResolver
	mail       *spyMail
	calendar   *spyCalendar
	scheduler  *memScheduler
	caller     contract.CallerContext
}

func newFixture() *fixture {
	store := newMemStore()
	resolver := newStubResolver()
	mail := &spyMail{}
	calendar := &spyCalendar{}
	scheduler := newMemScheduler()

	dispatcher := New(Deps{
		Store:       store,
		Profiles:    stubProfiles{profile: identity.Profile{DisplayName: "Jane Doe", Email: "jane@acme.com"}},
		Credentials: resolver,
		Mail:        mail,
		Calendar:    calendar,
		Scheduling: []contract.SchedulingProvider{
			&stubScheduling{name: "calendly", types: []contract.EventType{
				{URI: "et-1", Name: "Intro call", SchedulingURL: "https://calendly.com/jane/intro"},
			}},
		},
		Sends: scheduler,
	})

	return &fixture{
		dispatcher: dispatcher,
		store:      store,
		resolver:   resolver,
		mail:       mail,
		calendar:   calendar,
		scheduler:  scheduler,
		caller: contract.CallerContext{
			UserID:   "u1",
			Timezone: time.UTC,
			Now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}
