package action

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
)

func (d *Dispatcher) schedulingDefinitions() []Definition {
	providerParam := Param{
		Type:        "string",
		Description: "Scheduling-link provider",
		Required:    true,
		Enum:        d.schedulingProviderNames(),
	}

	return []Definition{
		{
			Name:        "scheduling.list_event_types",
			Description: "List the bookable event types of a scheduling-link provider.",
			Params: map[string]Param{
				"provider": providerParam,
			},
			parse: parseArgs(func(a *schedulingProviderArgs, _ contract.CallerContext) error {
				_, err := d.schedulingProvider(a.Provider)
				return err
			}),
			run: d.runSchedulingListEventTypes,
		},
		{
			Name:        "scheduling.build_link",
			Description: "Build a shareable scheduling link, optionally prefilled with invitee details.",
			Params: map[string]Param{
				"provider":       providerParam,
				"event_type_uri": {Type: "string", Description: "Event type to link; defaults to the provider's first"},
				"invitee_name":   {Type: "string", Description: "Prefill invitee name"},
				"invitee_email":  {Type: "string", Description: "Prefill invitee email"},
			},
			parse: parseArgs(func(a *buildLinkArgs, _ contract.CallerContext) error {
				return a.validate(d)
			}),
			run: d.runSchedulingBuildLink,
		},
		{
			Name:                 "scheduling.sync_bookings",
			Description:          "Import upcoming provider bookings as local tasks.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"provider":   providerParam,
				"days_ahead": {Type: "integer", Description: "How far ahead to look, default 14 days"},
			},
			parse: parseArgs(func(a *syncBookingsArgs, _ contract.CallerContext) error {
				_, err := d.schedulingProvider(a.Provider)
				return err
			}),
			run: d.runSchedulingSyncBookings,
		},
	}
}

func (d *Dispatcher) schedulingProviderNames() []string {
	names := make([]string, 0, len(d.scheduling))
	for name := range d.scheduling {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) schedulingProvider(name string) (contract.SchedulingProvider, error) {
	provider, ok := d.scheduling[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scheduling provider %q", contract.ErrInvalidInput, name)
	}
	return provider, nil
}

type schedulingProviderArgs struct {
	Provider string `json:"provider"`
}

func (d *Dispatcher) runSchedulingListEventTypes(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(schedulingProviderArgs)
	provider, err := d.schedulingProvider(args.Provider)
	if err != nil {
		return nil, err
	}

	cred, err := d.creds.Resolve(ctx, caller.UserID, provider.Name())
	if err != nil {
		return nil, err
	}

	types, err := provider.ListEventTypes(ctx, cred)
	if err != nil {
		return nil, err
	}
	return map[string]any{"event_types": types}, nil
}

type buildLinkArgs struct {
	Provider     string `json:"provider"`
	EventTypeURI string `json:"event_type_uri"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
}

func (a *buildLinkArgs) validate(d *Dispatcher) error {
	if _, err := d.schedulingProvider(a.Provider); err != nil {
		return err
	}
	if a.InviteeEmail != "" {
		email := identity.NormalizeEmail(a.InviteeEmail)
		if !identity.IsValidEmail(email) {
			return fmt.Errorf("%w: invalid invitee email %q", contract.ErrInvalidInput, a.InviteeEmail)
		}
		a.InviteeEmail = email
	}
	return nil
}

func (d *Dispatcher) runSchedulingBuildLink(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(buildLinkArgs)
	provider, err := d.schedulingProvider(args.Provider)
	if err != nil {
		return nil, err
	}

	prefill := contract.LinkPrefill{Name: args.InviteeName, Email: args.InviteeEmail}

	cred, err := d.creds.Resolve(ctx, caller.UserID, provider.Name())
	if err != nil {
		return nil, err
	}

	types, err := provider.ListEventTypes(ctx, cred)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: %s has no bookable event types", contract.ErrNotFound, provider.Name())
	}

	eventType := types[0]
	if args.EventTypeURI != "" {
		found := false
		for _, et := range types {
			if et.URI == args.EventTypeURI {
				eventType = et
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: event type %q", contract.ErrNotFound, args.EventTypeURI)
		}
	}

	return map[string]any{
		"scheduling_url": provider.BuildLink(eventType, prefill),
		"event_type":     eventType,
	}, nil
}

type syncBookingsArgs struct {
	Provider  string `json:"provider"`
	DaysAhead int    `json:"days_ahead"`
}

// runSchedulingSyncBookings pulls upcoming bookings into local tasks, keyed
// by external_ref so a re-sync never duplicates.
func (d *Dispatcher) runSchedulingSyncBookings(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(syncBookingsArgs)
	provider, err := d.schedulingProvider(args.Provider)
	if err != nil {
		return nil, err
	}

	days := args.DaysAhead
	if days <= 0 {
		days = 14
	}

	cred, err := d.creds.Resolve(ctx, caller.UserID, provider.Name())
	if err != nil {
		return nil, err
	}

	bookings, err := provider.ListBookings(ctx, cred, caller.Now, caller.Now.Add(time.Duration(days)*24*time.Hour))
	if err != nil {
		return nil, err
	}

	synced, skipped := 0, 0
	for _, booking := range bookings {
		existing, err := d.store.Query(ctx, caller.UserID, "tasks", contract.Filter{"external_ref": booking.ID}, "", 1)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			skipped++
			continue
		}

		start := booking.Start
		_, err = d.store.Insert(ctx, caller.UserID, "tasks", map[string]any{
			"title":        fmt.Sprintf("Meeting: %s", booking.Name),
			"status":       "pending",
			"due_at":       start.UTC(),
			"external_ref": booking.ID,
			"created_at":   caller.Now,
			"updated_at":   caller.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("synced %d booking(s) before task creation failed: %w", synced, err)
		}
		synced++
	}

	return map[string]any{"synced": synced, "skipped": skipped, "provider": provider.Name()}, nil
}
