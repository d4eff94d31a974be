package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
)

const calendarProvider = "google"

// defaultEventDuration applies when a meeting states neither an end nor a
// duration.
const defaultEventDuration = 30 * time.Minute

func (d *Dispatcher) calendarDefinitions() []Definition {
	return []Definition{
		{
			Name:                 "calendar.create_event",
			Description:          "Create a calendar event, optionally with an auto-generated meeting link.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"summary":          {Type: "string", Description: "Event title", Required: true},
				"description":      {Type: "string", Description: "Event description"},
				"start_iso":        {Type: "string", Description: "Start time, ISO-8601", Required: true},
				"end_iso":          {Type: "string", Description: "End time, ISO-8601; defaults to 30 minutes after start"},
				"duration_minutes": {Type: "integer", Description: "Duration; alternative to end_iso"},
				"attendees":        {Type: "array", Items: "string", Description: "Attendee email addresses"},
				"add_meet_link":    {Type: "boolean", Description: "Attach an auto-generated conference link"},
				"timezone":         {Type: "string", Description: "IANA timezone for wall-clock rendering; defaults to the caller's"},
			},
			parse: parseArgs((*calendarCreateArgs).validate),
			run:   d.runCalendarCreate,
		},
		{
			Name:                 "calendar.update_event",
			Description:          "Update fields of an existing calendar event.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"event_id":    {Type: "string", Description: "Event id", Required: true},
				"summary":     {Type: "string", Description: "New title"},
				"description": {Type: "string", Description: "New description"},
				"start_iso":   {Type: "string", Description: "New start time, ISO-8601"},
				"end_iso":     {Type: "string", Description: "New end time, ISO-8601"},
				"attendees":   {Type: "array", Items: "string", Description: "Replacement attendee list"},
			},
			parse: parseArgs((*calendarUpdateArgs).validate),
			run:   d.runCalendarUpdate,
		},
		{
			Name:                 "calendar.cancel_event",
			Description:          "Cancel (delete) a calendar event.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"event_id": {Type: "string", Description: "Event id", Required: true},
			},
			parse: parseArgs((*calendarCancelArgs).validate),
			run:   d.runCalendarCancel,
		},
		{
			Name:        "calendar.list_events",
			Description: "List calendar events in a time window, defaulting to the next 7 days.",
			Params: map[string]Param{
				"from_iso":    {Type: "string", Description: "Window start, ISO-8601; defaults to now"},
				"to_iso":      {Type: "string", Description: "Window end, ISO-8601; defaults to 7 days out"},
				"max_results": {Type: "integer", Description: "Max events, default 50"},
			},
			parse: parseArgs((*calendarListArgs).validate),
			run:   d.runCalendarList,
		},
	}
}

type calendarCreateArgs struct {
	Summary         string   `json:"summary"`
	Description     string   `json:"description"`
	StartISO        string   `json:"start_iso"`
	EndISO          string   `json:"end_iso"`
	DurationMinutes int      `json:"duration_minutes"`
	Attendees       []string `json:"attendees"`
	AddMeetLink     bool     `json:"add_meet_link"`
	Timezone        string   `json:"timezone"`

	start time.Time
	end   time.Time
	tz    string
}

func (a *calendarCreateArgs) validate(caller contract.CallerContext) error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("%w: summary is required", contract.ErrInvalidInput)
	}
	if a.StartISO == "" {
		return fmt.Errorf("%w: start_iso is required", contract.ErrInvalidInput)
	}

	start, err := parseInstant("start_iso", a.StartISO, caller.Location())
	if err != nil {
		return err
	}

	var end time.Time
	switch {
	case a.EndISO != "":
		end, err = parseInstant("end_iso", a.EndISO, caller.Location())
		if err != nil {
			return err
		}
	case a.DurationMinutes > 0:
		end = start.Add(time.Duration(a.DurationMinutes) * time.Minute)
	case a.DurationMinutes < 0:
		return fmt.Errorf("%w: duration_minutes must be positive", contract.ErrInvalidInput)
	default:
		end = start.Add(defaultEventDuration)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: event end must be after start", contract.ErrInvalidInput)
	}

	attendees, invalid := identity.NormalizeRecipients(a.Attendees)
	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid attendee address(es): %s", contract.ErrInvalidInput, strings.Join(invalid, ", "))
	}

	tz, err := resolveTimezone(a.Timezone, caller)
	if err != nil {
		return err
	}

	a.Attendees = attendees
	a.start = start
	a.end = end
	a.tz = tz
	return nil
}

func (d *Dispatcher) runCalendarCreate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(calendarCreateArgs)

	cred, err := d.creds.Resolve(ctx, caller.UserID, calendarProvider)
	if err != nil {
		return nil, err
	}

	event, err := d.calendar.CreateEvent(ctx, cred, contract.EventInput{
		Summary:     strings.TrimSpace(args.Summary),
		Description: args.Description,
		Start:       args.start.UTC(),
		End:         args.end.UTC(),
		Timezone:    args.tz,
		Attendees:   args.Attendees,
		WithMeet:    args.AddMeetLink,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"event": event}, nil
}

type calendarUpdateArgs struct {
	EventID     string   `json:"event_id"`
	Summary     *string  `json:"summary"`
	Description *string  `json:"description"`
	StartISO    *string  `json:"start_iso"`
	EndISO      *string  `json:"end_iso"`
	Attendees   []string `json:"attendees"`

	patch contract.EventPatch
}

func (a *calendarUpdateArgs) validate(caller contract.CallerContext) error {
	if a.EventID == "" {
		return fmt.Errorf("%w: event_id is required", contract.ErrInvalidInput)
	}

	patch := contract.EventPatch{
		Summary:     a.Summary,
		Description: a.Description,
		Timezone:    caller.Location().String(),
	}
	empty := a.Summary == nil && a.Description == nil && len(a.Attendees) == 0

	if a.StartISO != nil {
		start, err := parseInstant("start_iso", *a.StartISO, caller.Location())
		if err != nil {
			return err
		}
		utc := start.UTC()
		patch.Start = &utc
		empty = false
	}
	if a.EndISO != nil {
		end, err := parseInstant("end_iso", *a.EndISO, caller.Location())
		if err != nil {
			return err
		}
		utc := end.UTC()
		patch.End = &utc
		empty = false
	}
	if patch.Start != nil && patch.End != nil && !patch.End.After(*patch.Start) {
		return fmt.Errorf("%w: event end must be after start", contract.ErrInvalidInput)
	}
	if empty {
		return fmt.Errorf("%w: no fields to update", contract.ErrInvalidInput)
	}

	if len(a.Attendees) > 0 {
		attendees, invalid := identity.NormalizeRecipients(a.Attendees)
		if len(invalid) > 0 {
			return fmt.Errorf("%w: invalid attendee address(es): %s", contract.ErrInvalidInput, strings.Join(invalid, ", "))
		}
		patch.Attendees = attendees
	}

	a.patch = patch
	return nil
}

func (d *Dispatcher) runCalendarUpdate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(calendarUpdateArgs)

	cred, err := d.creds.Resolve(ctx, caller.UserID, calendarProvider)
	if err != nil {
		return nil, err
	}

	event, err := d.calendar.UpdateEvent(ctx, cred, args.EventID, args.patch)
	if err != nil {
		return nil, err
	}
	return map[string]any{"event": event}, nil
}

type calendarCancelArgs struct {
	EventID string `json:"event_id"`
}

func (a *calendarCancelArgs) validate(contract.CallerContext) error {
	if a.EventID == "" {
		return fmt.Errorf("%w: event_id is required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runCalendarCancel(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(calendarCancelArgs)

	cred, err := d.creds.Resolve(ctx, caller.UserID, calendarProvider)
	if err != nil {
		return nil, err
	}
	if err := d.calendar.DeleteEvent(ctx, cred, args.EventID); err != nil {
		return nil, err
	}
	return map[string]any{"event_id": args.EventID, "cancelled": true}, nil
}

type calendarListArgs struct {
	FromISO    string `json:"from_iso"`
	ToISO      string `json:"to_iso"`
	MaxResults int    `json:"max_results"`

	from time.Time
	to   time.Time
}

func (a *calendarListArgs) validate(caller contract.CallerContext) error {
	from := caller.Now
	if a.FromISO != "" {
		var err error
		if from, err = parseInstant("from_iso", a.FromISO, caller.Location()); err != nil {
			return err
		}
	}
	to := from.Add(7 * 24 * time.Hour)
	if a.ToISO != "" {
		var err error
		if to, err = parseInstant("to_iso", a.ToISO, caller.Location()); err != nil {
			return err
		}
	}
	if !to.After(from) {
		return fmt.Errorf("%w: window end must be after start", contract.ErrInvalidInput)
	}
	a.from = from
	a.to = to
	return nil
}

func (d *Dispatcher) runCalendarList(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(calendarListArgs)

	cred, err := d.creds.Resolve(ctx, caller.UserID, calendarProvider)
	if err != nil {
		return nil, err
	}

	events, err := d.calendar.ListEvents(ctx, cred, contract.EventWindow{
		From:       args.from.UTC(),
		To:         args.to.UTC(),
		MaxResults: args.MaxResults,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": events, "count": len(events)}, nil
}

func resolveTimezone(name string, caller contract.CallerContext) (string, error) {
	if name == "" {
		return caller.Location().String(), nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "", fmt.Errorf("%w: unknown timezone %q", contract.ErrInvalidInput, name)
	}
	return name, nil
}
