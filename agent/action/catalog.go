// Package action holds the confirmation-gated catalogue of operations the
// calling agent may invoke, and the dispatcher that validates, gates and
// executes them.
package action

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
	"github.com/Asygurare/salespilot/agent/schedule"
)

// Param documents one input field for catalogue export. Validation itself
// happens in the typed decode inside each action body.
type Param struct {
	Type        string
	Items       string
	Description string
	Required    bool
	Enum        []string
}

// parseFunc decodes and validates raw arguments into the action's typed
// input. It runs before the confirmation gate and must not touch stores or
// providers, so a structurally invalid call is rejected without asking a
// human to approve it.
type parseFunc func(raw map[string]any, caller contract.CallerContext) (any, error)

type runFunc func(ctx context.Context, args any, caller contract.CallerContext) (any, error)

// SendScheduler is the slice of the scheduled-send repository the dispatcher
// needs: creation and the conditional cancel transition. The sweeper-facing
// operations stay out of reach of action bodies.
type SendScheduler interface {
	Create(ctx context.Context, send *schedule.ScheduledSend) error
	Cancel(ctx context.Context, userID, id string, now time.Time) (*schedule.ScheduledSend, error)
}

// Definition is one catalogue member, registered at startup. Any action whose
// body mutates local state or calls an external API must set
// RequiresConfirmation.
type Definition struct {
	Name                 string
	Description          string
	RequiresConfirmation bool
	Params               map[string]Param

	parse parseFunc
	run   runFunc
}

// Deps are the collaborators every action body may reach. All state lives
// behind them; the dispatcher itself holds nothing mutable, so concurrent
// dispatches for different callers are safe.
type Deps struct {
	Store       contract.Store
	Profiles    identity.ProfileReader
	Credentials contract.CredentialResolver
	Mail        contract.MailSender
	Calendar    contract.CalendarProvider
	Scheduling  []contract.SchedulingProvider
	Sends       SendScheduler
}

type Dispatcher struct {
	store      contract.Store
	profiles   identity.ProfileReader
	creds      contract.CredentialResolver
	mail       contract.MailSender
	calendar   contract.CalendarProvider
	scheduling map[string]contract.SchedulingProvider
	sends      SendScheduler

	catalog map[string]Definition
}

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		store:      deps.Store,
		profiles:   deps.Profiles,
		creds:      deps.Credentials,
		mail:       deps.Mail,
		calendar:   deps.Calendar,
		scheduling: make(map[string]contract.SchedulingProvider, len(deps.Scheduling)),
		sends:      deps.Sends,
	}
	for _, p := range deps.Scheduling {
		d.scheduling[p.Name()] = p
	}
	d.catalog = d.buildCatalog()
	return d
}

// Definitions returns the catalogue sorted by name.
func (d *Dispatcher) Definitions() []Definition {
	defs := make([]Definition, 0, len(d.catalog))
	for _, def := range d.catalog {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch validates, gates and executes one action invocation. Every outcome
// is a structured ActionResult; nothing propagates raw.
//
// The confirmation gate is stateless and per-call: a mutating action runs only
// when this invocation carries confirm=true. The caller is expected to surface
// the RequiresConfirmation message to a human and re-invoke.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, rawArgs map[string]any, caller contract.CallerContext) (res contract.ActionResult) {
	def, ok := d.catalog[name]
	if !ok {
		return contract.Failure(fmt.Errorf("%w: %q", contract.ErrUnknownAction, name))
	}
	if caller.UserID == "" {
		return contract.Failure(fmt.Errorf("%w: missing caller identity", contract.ErrUnauthorized))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("action", name).Any("panic", r).Msg("action panicked")
			res = contract.ActionResult{
				Status:  contract.StatusError,
				Kind:    contract.KindInternal,
				Message: fmt.Sprintf("action %s failed unexpectedly", name),
			}
		}
	}()

	var args any = rawArgs
	if def.parse != nil {
		parsed, err := def.parse(rawArgs, caller)
		if err != nil {
			log.Warn().Err(err).Str("action", name).Str("user_id", caller.UserID).Msg("invalid action arguments")
			return contract.Failure(err)
		}
		args = parsed
	}

	// The gate sits after validation: malformed input is rejected as such
	// instead of bouncing back as a confirmation prompt.
	if def.RequiresConfirmation && !confirmed(rawArgs) {
		log.Info().Str("action", name).Str("user_id", caller.UserID).Msg("action held for confirmation")
		return contract.NeedsConfirmation(fmt.Sprintf(
			"Confirmation required for %s (%s). Re-invoke with confirm=true once the user has approved.",
			def.Name, def.Description))
	}

	payload, err := def.run(ctx, args, caller)
	if err != nil {
		log.Warn().Err(err).Str("action", name).Str("user_id", caller.UserID).Msg("action failed")
		return contract.Failure(err)
	}
	return contract.Ok(payload)
}

// confirmed unwraps the generic confirmation flag. Only the boolean true
// counts; strings like "true" do not, so a caller cannot confirm by accident.
func confirmed(raw map[string]any) bool {
	v, ok := raw["confirm"].(bool)
	return ok && v
}

func (d *Dispatcher) buildCatalog() map[string]Definition {
	defs := []Definition{}
	defs = append(defs, d.recordDefinitions()...)
	defs = append(defs, d.crmDefinitions()...)
	defs = append(defs, d.mailDefinitions()...)
	defs = append(defs, d.calendarDefinitions()...)
	defs = append(defs, d.schedulingDefinitions()...)

	catalog := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if _, dup := catalog[def.Name]; dup {
			panic(fmt.Sprintf("duplicate action %q", def.Name))
		}
		catalog[def.Name] = def
	}
	return catalog
}

// parseArgs builds the standard parse step for an action: decode the raw
// arguments into T, then run the action's validate hook. The hook may fill
// derived unexported fields; the populated T flows through to run as-is.
func parseArgs[T any](validate func(*T, contract.CallerContext) error) parseFunc {
	return func(raw map[string]any, caller contract.CallerContext) (any, error) {
		args, err := decodeArgs[T](raw)
		if err != nil {
			return nil, err
		}
		if validate != nil {
			if err := validate(&args, caller); err != nil {
				return nil, err
			}
		}
		return args, nil
	}
}

// decodeArgs maps the raw JSON arguments onto the action's typed input
// struct. The extra confirm key is tolerated; type mismatches surface as
// InvalidInput naming the offending field.
func decodeArgs[T any](raw map[string]any) (T, error) {
	var in T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return in, fmt.Errorf("build args decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return in, fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	}
	return in, nil
}

// parseInstant accepts an RFC 3339 timestamp, or a wall-clock timestamp
// without offset resolved in the caller's timezone.
func parseInstant(field, value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be an ISO-8601 timestamp, got %q", contract.ErrInvalidInput, field, value)
}
