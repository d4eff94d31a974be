package action

import (
	"context"
	"strings"
	"testing"

	"github.com/Asygurare/salespilot/agent/contract"
)

func TestDispatchUnknownAction(t *testing.T) {
	t.Parallel()
	f := newFixture()

	res := f.dispatcher.Dispatch(context.Background(), "mail.teleport", nil, f.caller)
	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if res.Kind != contract.KindUnknownAction {
		t.Fatalf("kind = %s, want unknown_action", res.Kind)
	}
}

func TestDispatchRequiresCallerIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture()
	caller := f.caller
	caller.UserID = ""

	res := f.dispatcher.Dispatch(context.Background(), "records.query", map[string]any{"table": "leads"}, caller)
	if res.Kind != contract.KindUnauthorized {
		t.Fatalf("kind = %s, want unauthorized", res.Kind)
	}
}

func TestConfirmationGateHoldsMutatingActions(t *testing.T) {
	t.Parallel()
	f := newFixture()

	args := map[string]any{
		"to":      []any{"jane@acme.com"},
		"subject": "Hello",
		"text":    "Hi there",
	}
	res := f.dispatcher.Dispatch(context.Background(), "mail.send", args, f.caller)

	if res.Status != contract.StatusRequiresConfirmation {
		t.Fatalf("status = %s, want requires_confirmation", res.Status)
	}
	if !strings.Contains(res.Message, "mail.send") {
		t.Fatalf("message %q does not name the action", res.Message)
	}
	if len(f.mail.sent) != 0 {
		t.Fatalf("mail sent while gated: %d", len(f.mail.sent))
	}
	if f.store.inserts != 0 || f.store.updates != 0 {
		t.Fatalf("store touched while gated: %d inserts, %d updates", f.store.inserts, f.store.updates)
	}
	if len(f.resolver.calls) != 0 {
		t.Fatalf("credentials resolved while gated: %v", f.resolver.calls)
	}
}

func TestInvalidArgumentsRejectedBeforeConfirmation(t *testing.T) {
	t.Parallel()
	f := newFixture()

	// Malformed input on an unconfirmed call comes back as invalid_input,
	// not as a confirmation prompt for a call that could never run.
	args := map[string]any{
		"to":      []any{"not-an-address"},
		"subject": "Hello",
		"text":    "Hi there",
	}
	res := f.dispatcher.Dispatch(context.Background(), "mail.send", args, f.caller)

	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if res.Kind != contract.KindInvalidInput {
		t.Fatalf("kind = %s, want invalid_input", res.Kind)
	}
	if !strings.Contains(res.Message, "not-an-address") {
		t.Fatalf("message %q does not name the bad recipient", res.Message)
	}
	if len(f.mail.sent) != 0 {
		t.Fatalf("mail sent on invalid input: %d", len(f.mail.sent))
	}
	if f.store.inserts != 0 || len(f.resolver.calls) != 0 {
		t.Fatalf("collaborators touched on invalid input: %d inserts, calls %v", f.store.inserts, f.resolver.calls)
	}
}

func TestConfirmationGateRejectsNonBooleanConfirm(t *testing.T) {
	t.Parallel()
	f := newFixture()

	for _, confirm := range []any{"true", 1, "yes"} {
		args := map[string]any{
			"to":      []any{"jane@acme.com"},
			"subject": "Hello",
			"text":    "Hi",
			"confirm": confirm,
		}
		res := f.dispatcher.Dispatch(context.Background(), "mail.send", args, f.caller)
		if res.Status != contract.StatusRequiresConfirmation {
			t.Fatalf("confirm=%v: status = %s, want requires_confirmation", confirm, res.Status)
		}
	}
}

func TestConfirmationGateIsPerCall(t *testing.T) {
	t.Parallel()
	f := newFixture()

	confirmed := map[string]any{
		"to":      []any{"jane@acme.com"},
		"subject": "Hello",
		"text":    "Hi",
		"confirm": true,
	}
	if res := f.dispatcher.Dispatch(context.Background(), "mail.send", confirmed, f.caller); res.Status != contract.StatusOk {
		t.Fatalf("confirmed call: status = %s (%s)", res.Status, res.Message)
	}

	// The earlier confirmation does not carry over to the next invocation.
	unconfirmed := map[string]any{
		"to":      []any{"jane@acme.com"},
		"subject": "Hello again",
		"text":    "Hi",
	}
	if res := f.dispatcher.Dispatch(context.Background(), "mail.send", unconfirmed, f.caller); res.Status != contract.StatusRequiresConfirmation {
		t.Fatalf("second call: status = %s, want requires_confirmation", res.Status)
	}
	if len(f.mail.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(f.mail.sent))
	}
}

func TestQueriesRunWithoutConfirmation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.rows["leads"] = []map[string]any{
		{"id": "l1", "user_id": "u1", "name": "Acme", "status": "new"},
	}

	res := f.dispatcher.Dispatch(context.Background(), "records.query", map[string]any{"table": "leads"}, f.caller)
	if res.Status != contract.StatusOk {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.dispatcher.catalog["boom"] = Definition{
		Name: "boom",
		run: func(context.Context, any, contract.CallerContext) (any, error) {
			panic("unreachable row")
		},
	}

	res := f.dispatcher.Dispatch(context.Background(), "boom", nil, f.caller)
	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if res.Kind != contract.KindInternal {
		t.Fatalf("kind = %s, want internal", res.Kind)
	}
}

func TestDefinitionsSortedAndComplete(t *testing.T) {
	t.Parallel()
	f := newFixture()

	defs := f.dispatcher.Definitions()
	want := []string{
		"calendar.cancel_event", "calendar.create_event", "calendar.list_events", "calendar.update_event",
		"customers.create", "customers.update",
		"leads.convert", "leads.create", "leads.update",
		"mail.cancel_scheduled", "mail.schedule", "mail.send",
		"records.count", "records.get", "records.query", "records.search",
		"scheduling.build_link", "scheduling.list_event_types", "scheduling.sync_bookings",
		"tasks.create", "tasks.update",
	}
	if len(defs) != len(want) {
		names := make([]string, len(defs))
		for i, d := range defs {
			names[i] = d.Name
		}
		t.Fatalf("catalogue has %d actions, want %d: %v", len(defs), len(want), names)
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Fatalf("defs[%d] = %s, want %s", i, d.Name, want[i])
		}
	}
}
