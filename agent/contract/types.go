package contract

import (
	"errors"
	"time"
)

// Kind classifies a failed dispatch into the fixed taxonomy exposed to the
// calling agent.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindUnauthorized  Kind = "unauthorized"
	KindNotConnected  Kind = "not_connected"
	KindRefreshFailed Kind = "refresh_failed"
	KindNotFound      Kind = "not_found"
	KindProviderCall  Kind = "provider_call_failed"
	KindInvalidState  Kind = "invalid_state"
	KindUnknownAction Kind = "unknown_action"
	KindInternal      Kind = "internal"
)

type ResultStatus string

const (
	StatusOk                   ResultStatus = "ok"
	StatusRequiresConfirmation ResultStatus = "requires_confirmation"
	StatusError                ResultStatus = "error"
)

// ActionResult is the uniform envelope returned by every dispatch. Exactly
// one variant is populated: Payload for ok, Message for
// requires_confirmation, Kind/Message/Detail for error.
type ActionResult struct {
	Status  ResultStatus `json:"status"`
	Payload any          `json:"payload,omitempty"`
	Message string       `json:"message,omitempty"`
	Kind    Kind         `json:"kind,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

func Ok(payload any) ActionResult {
	return ActionResult{Status: StatusOk, Payload: payload}
}

func NeedsConfirmation(message string) ActionResult {
	return ActionResult{Status: StatusRequiresConfirmation, Message: message}
}

// Failure converts an error into the error variant, classifying it by the
// contract sentinels and lifting the truncated provider body into Detail.
func Failure(err error) ActionResult {
	res := ActionResult{
		Status:  StatusError,
		Kind:    KindOf(err),
		Message: err.Error(),
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		res.Detail = perr.Body
	}
	return res
}

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrRefreshFailed):
		return KindRefreshFailed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrProviderCall):
		return KindProviderCall
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUnknownAction):
		return KindUnknownAction
	default:
		return KindInternal
	}
}

// CallerContext is built once per dispatch from the authenticated session.
// Now is the only clock actions may use, so relative-time inputs such as
// "in 5 minutes" stay deterministic under test.
type CallerContext struct {
	UserID   string
	Timezone *time.Location
	Now      time.Time
}

func (c CallerContext) Location() *time.Location {
	if c.Timezone != nil {
		return c.Timezone
	}
	return time.UTC
}

// Credential is an opaque, short-lived capability token resolved per call.
// The dispatcher never persists or mutates it.
type Credential struct {
	AccessToken string
	// Identity is the provider-side account, e.g. the connected mailbox
	// address, when the provider reports one.
	Identity string
}

// MailMessage is an already-normalized outbound message: recipients
// canonicalized, sender placeholders resolved.
type MailMessage struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type MailReceipt struct {
	MessageID string `json:"message_id"`
}

// Event is a view of the calendar provider's record, never cached locally as
// a source of truth.
type Event struct {
	ID             string    `json:"id"`
	Summary        string    `json:"summary"`
	Status         string    `json:"status"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Attendees      []string  `json:"attendees,omitempty"`
	HTMLLink       string    `json:"html_link,omitempty"`
	ConferenceLink string    `json:"conference_link,omitempty"`
}

// EventInput carries absolute UTC instants plus the IANA timezone the
// provider should render wall-clock fields in.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []string
	WithMeet    bool
}

// EventPatch updates only the set fields of an existing event.
type EventPatch struct {
	Summary     *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Timezone    string
	Attendees   []string
}

type EventWindow struct {
	From       time.Time
	To         time.Time
	MaxResults int
}

// EventType is one bookable meeting type exposed by a scheduling-link
// provider.
type EventType struct {
	URI           string `json:"uri"`
	Name          string `json:"name"`
	SchedulingURL string `json:"scheduling_url"`
}

type LinkPrefill struct {
	Name  string
	Email string
}

// Booking is a meeting already scheduled through a scheduling-link provider.
type Booking struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	InviteeEmail string    `json:"invitee_email,omitempty"`
}
