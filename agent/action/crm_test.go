package action

import (
	"context"
	"strings"
	"testing"

	"github.com/Asygurare/salespilot/agent/contract"
)

func TestLeadsCreateNormalizesEmail(t *testing.T) {
	t.Parallel()
	f := newFixture()

	args := confirmArgs(map[string]any{
		"name":    "Bob Smith",
		"email":   "Bob Smith <BOB@Example.COM>",
		"company": "Example Inc",
	})
	res := f.dispatcher.Dispatch(context.Background(), "leads.create", args, f.caller)
	if res.Status != contract.StatusOk {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}

	rows := f.store.rows["leads"]
	if len(rows) != 1 {
		t.Fatalf("leads = %d, want 1", len(rows))
	}
	if rows[0]["email"] != "bob@example.com" {
		t.Fatalf("email = %v", rows[0]["email"])
	}
}

func TestLeadsUpdateRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.rows["leads"] = []map[string]any{
		{"id": "l1", "user_id": "u1", "name": "Bob", "status": "new"},
	}

	res := f.dispatcher.Dispatch(context.Background(), "leads.update",
		confirmArgs(map[string]any{"id": "l1", "status": "vanished"}), f.caller)
	if res.Kind != contract.KindInvalidInput {
		t.Fatalf("kind = %s, want invalid_input", res.Kind)
	}
}

func TestLeadConvertCreatesCustomerAndMarksLead(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.rows["leads"] = []map[string]any{
		{"id": "l1", "user_id": "u1", "name": "Bob", "email": "BOB@Example.COM", "company": "Example Inc", "status": "qualified"},
	}

	res := f.dispatcher.Dispatch(context.Background(), "leads.convert",
		confirmArgs(map[string]any{"lead_id": "l1"}), f.caller)
	if res.Status != contract.StatusOk {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}

	customers := f.store.rows["customers"]
	if len(customers) != 1 {
		t.Fatalf("customers = %d, want 1", len(customers))
	}
	if customers[0]["email"] != "bob@example.com" {
		t.Fatalf("customer email = %v", customers[0]["email"])
	}
	if customers[0]["lead_id"] != "l1" {
		t.Fatalf("customer lead_id = %v", customers[0]["lead_id"])
	}
	if f.store.rows["leads"][0]["status"] != "converted" {
		t.Fatalf("lead status = %v", f.store.rows["leads"][0]["status"])
	}
}

func TestLeadConvertRejectsAlreadyConverted(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.rows["leads"] = []map[string]any{
		{"id": "l1", "user_id": "u1", "name": "Bob", "status": "converted"},
	}

	res := f.dispatcher.Dispatch(context.Background(), "leads.convert",
		confirmArgs(map[string]any{"lead_id": "l1"}), f.caller)
	if res.Kind != contract.KindInvalidState {
		t.Fatalf("kind = %s, want invalid_state", res.Kind)
	}
	if len(f.store.rows["customers"]) != 0 {
		t.Fatal("customer created for an already-converted lead")
	}
}

func TestLeadConvertReportsUnmarkedLead(t *testing.T) {
	t.Parallel()
	base := newMemStore()
	base.rows["leads"] = []map[string]any{
		{"id": "l1", "user_id": "u1", "name": "Bob", "status": "new"},
	}
	f := newFixture()
	f.dispatcher.store = &failingUpdateStore{memStore: base}

	res := f.dispatcher.Dispatch(context.Background(), "leads.convert",
		confirmArgs(map[string]any{"lead_id": "l1"}), f.caller)
	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if !strings.Contains(res.Message, "was created") {
		t.Fatalf("message %q does not report the created customer", res.Message)
	}
	// The customer write stands even though the lead was not marked.
	if len(base.rows["customers"]) != 1 {
		t.Fatalf("customers = %d, want 1", len(base.rows["customers"]))
	}
}

func TestTasksCreateParsesDueDate(t *testing.T) {
	t.Parallel()
	f := newFixture()

	res := f.dispatcher.Dispatch(context.Background(), "tasks.create",
		confirmArgs(map[string]any{"title": "Follow up", "due_at_iso": "2026-03-05T10:00:00Z"}), f.caller)
	if res.Status != contract.StatusOk {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}
	if len(f.store.rows["tasks"]) != 1 {
		t.Fatalf("tasks = %d, want 1", len(f.store.rows["tasks"]))
	}
}

func TestRecordsGetMapsMissingRow(t *testing.T) {
	t.Parallel()
	f := newFixture()

	res := f.dispatcher.Dispatch(context.Background(), "records.get",
		map[string]any{"table": "leads", "id": "nope"}, f.caller)
	if res.Kind != contract.KindNotFound {
		t.Fatalf("kind = %s, want not_found", res.Kind)
	}
}
