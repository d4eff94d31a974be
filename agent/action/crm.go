package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
)

const leadStatusConverted = "converted"

var leadStatuses = []string{"new", "contacted", "qualified", leadStatusConverted, "lost"}

func (d *Dispatcher) crmDefinitions() []Definition {
	return []Definition{
		{
			Name:                 "tasks.create",
			Description:          "Create a task.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"title":       {Type: "string", Description: "Task title", Required: true},
				"notes":       {Type: "string", Description: "Free-form notes"},
				"due_at_iso":  {Type: "string", Description: "Due timestamp, ISO-8601"},
				"lead_id":     {Type: "string", Description: "Related lead id"},
				"customer_id": {Type: "string", Description: "Related customer id"},
			},
			parse: parseArgs((*taskCreateArgs).validate),
			run:   d.runTaskCreate,
		},
		{
			Name:                 "tasks.update",
			Description:          "Update fields of an existing task.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"id":         {Type: "string", Description: "Task id", Required: true},
				"title":      {Type: "string", Description: "New title"},
				"notes":      {Type: "string", Description: "New notes"},
				"status":     {Type: "string", Description: "New status", Enum: []string{"pending", "done"}},
				"due_at_iso": {Type: "string", Description: "New due timestamp, ISO-8601"},
			},
			parse: parseArgs((*taskUpdateArgs).validate),
			run:   d.runTaskUpdate,
		},
		{
			Name:                 "leads.create",
			Description:          "Create a lead.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"name":    {Type: "string", Description: "Lead name", Required: true},
				"email":   {Type: "string", Description: "Lead email address"},
				"company": {Type: "string", Description: "Company name"},
				"phone":   {Type: "string", Description: "Phone number"},
				"notes":   {Type: "string", Description: "Free-form notes"},
			},
			parse: parseArgs((*contactArgs).validate),
			run:   d.runLeadCreate,
		},
		{
			Name:                 "leads.update",
			Description:          "Update fields of an existing lead.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"id":      {Type: "string", Description: "Lead id", Required: true},
				"name":    {Type: "string", Description: "New name"},
				"email":   {Type: "string", Description: "New email address"},
				"company": {Type: "string", Description: "New company"},
				"phone":   {Type: "string", Description: "New phone number"},
				"notes":   {Type: "string", Description: "New notes"},
				"status":  {Type: "string", Description: "New status", Enum: leadStatuses},
			},
			parse: parseArgs(func(a *contactUpdateArgs, caller contract.CallerContext) error {
				return a.validate(caller, leadStatuses)
			}),
			run: d.runLeadUpdate,
		},
		{
			Name:                 "leads.convert",
			Description:          "Convert a lead into a customer and mark the lead converted.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"lead_id": {Type: "string", Description: "Lead id to convert", Required: true},
			},
			parse: parseArgs((*leadConvertArgs).validate),
			run:   d.runLeadConvert,
		},
		{
			Name:                 "customers.create",
			Description:          "Create a customer.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"name":    {Type: "string", Description: "Customer name", Required: true},
				"email":   {Type: "string", Description: "Customer email address"},
				"company": {Type: "string", Description: "Company name"},
				"phone":   {Type: "string", Description: "Phone number"},
				"notes":   {Type: "string", Description: "Free-form notes"},
			},
			parse: parseArgs((*contactArgs).validate),
			run:   d.runCustomerCreate,
		},
		{
			Name:                 "customers.update",
			Description:          "Update fields of an existing customer.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"id":      {Type: "string", Description: "Customer id", Required: true},
				"name":    {Type: "string", Description: "New name"},
				"email":   {Type: "string", Description: "New email address"},
				"company": {Type: "string", Description: "New company"},
				"phone":   {Type: "string", Description: "New phone number"},
				"notes":   {Type: "string", Description: "New notes"},
			},
			parse: parseArgs(func(a *contactUpdateArgs, caller contract.CallerContext) error {
				return a.validate(caller, nil)
			}),
			run: d.runCustomerUpdate,
		},
	}
}

type taskCreateArgs struct {
	Title      string `json:"title"`
	Notes      string `json:"notes"`
	DueAtISO   string `json:"due_at_iso"`
	LeadID     string `json:"lead_id"`
	CustomerID string `json:"customer_id"`

	row map[string]any
}

func (a *taskCreateArgs) validate(caller contract.CallerContext) error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: title is required", contract.ErrInvalidInput)
	}
	a.row = map[string]any{
		"title":       strings.TrimSpace(a.Title),
		"notes":       a.Notes,
		"status":      "pending",
		"lead_id":     a.LeadID,
		"customer_id": a.CustomerID,
		"created_at":  caller.Now,
		"updated_at":  caller.Now,
	}
	if a.DueAtISO != "" {
		due, err := parseInstant("due_at_iso", a.DueAtISO, caller.Location())
		if err != nil {
			return err
		}
		a.row["due_at"] = due.UTC()
	}
	return nil
}

func (d *Dispatcher) runTaskCreate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(taskCreateArgs)
	id, err := d.store.Insert(ctx, caller.UserID, "tasks", args.row)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task_id": id}, nil
}

type taskUpdateArgs struct {
	ID       string  `json:"id"`
	Title    *string `json:"title"`
	Notes    *string `json:"notes"`
	Status   *string `json:"status"`
	DueAtISO *string `json:"due_at_iso"`

	patch map[string]any
}

func (a *taskUpdateArgs) validate(caller contract.CallerContext) error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", contract.ErrInvalidInput)
	}

	patch := map[string]any{}
	if a.Title != nil {
		if strings.TrimSpace(*a.Title) == "" {
			return fmt.Errorf("%w: title cannot be empty", contract.ErrInvalidInput)
		}
		patch["title"] = strings.TrimSpace(*a.Title)
	}
	if a.Notes != nil {
		patch["notes"] = *a.Notes
	}
	if a.Status != nil {
		if *a.Status != "pending" && *a.Status != "done" {
			return fmt.Errorf("%w: status must be pending or done", contract.ErrInvalidInput)
		}
		patch["status"] = *a.Status
	}
	if a.DueAtISO != nil {
		due, err := parseInstant("due_at_iso", *a.DueAtISO, caller.Location())
		if err != nil {
			return err
		}
		patch["due_at"] = due.UTC()
	}
	if len(patch) == 0 {
		return fmt.Errorf("%w: no fields to update", contract.ErrInvalidInput)
	}
	patch["updated_at"] = caller.Now
	a.patch = patch
	return nil
}

func (d *Dispatcher) runTaskUpdate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(taskUpdateArgs)
	if err := d.store.Update(ctx, caller.UserID, "tasks", args.ID, args.patch); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": args.ID, "updated": true}, nil
}

type contactArgs struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes"`

	row map[string]any
}

func (a *contactArgs) validate(caller contract.CallerContext) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", contract.ErrInvalidInput)
	}
	row := map[string]any{
		"name":       strings.TrimSpace(a.Name),
		"company":    a.Company,
		"phone":      a.Phone,
		"notes":      a.Notes,
		"created_at": caller.Now,
		"updated_at": caller.Now,
	}
	if a.Email != "" {
		email := identity.NormalizeEmail(a.Email)
		if !identity.IsValidEmail(email) {
			return fmt.Errorf("%w: invalid email %q", contract.ErrInvalidInput, a.Email)
		}
		row["email"] = email
	}
	a.row = row
	return nil
}

func (d *Dispatcher) runLeadCreate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(contactArgs)
	args.row["status"] = "new"

	id, err := d.store.Insert(ctx, caller.UserID, "leads", args.row)
	if err != nil {
		return nil, err
	}
	return map[string]any{"lead_id": id}, nil
}

func (d *Dispatcher) runCustomerCreate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(contactArgs)
	id, err := d.store.Insert(ctx, caller.UserID, "customers", args.row)
	if err != nil {
		return nil, err
	}
	return map[string]any{"customer_id": id}, nil
}

type contactUpdateArgs struct {
	ID      string  `json:"id"`
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
	Notes   *string `json:"notes"`
	Status  *string `json:"status"`

	patch map[string]any
}

func (a *contactUpdateArgs) validate(caller contract.CallerContext, allowedStatuses []string) error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", contract.ErrInvalidInput)
	}

	patch := map[string]any{}
	if a.Name != nil {
		if strings.TrimSpace(*a.Name) == "" {
			return fmt.Errorf("%w: name cannot be empty", contract.ErrInvalidInput)
		}
		patch["name"] = strings.TrimSpace(*a.Name)
	}
	if a.Email != nil {
		email := identity.NormalizeEmail(*a.Email)
		if !identity.IsValidEmail(email) {
			return fmt.Errorf("%w: invalid email %q", contract.ErrInvalidInput, *a.Email)
		}
		patch["email"] = email
	}
	if a.Company != nil {
		patch["company"] = *a.Company
	}
	if a.Phone != nil {
		patch["phone"] = *a.Phone
	}
	if a.Notes != nil {
		patch["notes"] = *a.Notes
	}
	if a.Status != nil {
		if len(allowedStatuses) == 0 {
			return fmt.Errorf("%w: status is not an updatable field here", contract.ErrInvalidInput)
		}
		ok := false
		for _, s := range allowedStatuses {
			if *a.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: status must be one of %s", contract.ErrInvalidInput, strings.Join(allowedStatuses, ", "))
		}
		patch["status"] = *a.Status
	}
	if len(patch) == 0 {
		return fmt.Errorf("%w: no fields to update", contract.ErrInvalidInput)
	}
	patch["updated_at"] = caller.Now
	a.patch = patch
	return nil
}

func (d *Dispatcher) runLeadUpdate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(contactUpdateArgs)
	if err := d.store.Update(ctx, caller.UserID, "leads", args.ID, args.patch); err != nil {
		return nil, err
	}
	return map[string]any{"lead_id": args.ID, "updated": true}, nil
}

func (d *Dispatcher) runCustomerUpdate(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(contactUpdateArgs)
	if err := d.store.Update(ctx, caller.UserID, "customers", args.ID, args.patch); err != nil {
		return nil, err
	}
	return map[string]any{"customer_id": args.ID, "updated": true}, nil
}

type leadConvertArgs struct {
	LeadID string `json:"lead_id"`
}

func (a *leadConvertArgs) validate(contract.CallerContext) error {
	if a.LeadID == "" {
		return fmt.Errorf("%w: lead_id is required", contract.ErrInvalidInput)
	}
	return nil
}

// runLeadConvert copies the lead into a new customer, then marks the source
// converted. The two writes are not a transaction: once the customer exists
// it is the source of truth, so a failure marking the lead is reported but
// never rolled back.
func (d *Dispatcher) runLeadConvert(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(leadConvertArgs)

	lead, err := d.store.Get(ctx, caller.UserID, "leads", args.LeadID)
	if err != nil {
		return nil, err
	}
	if status, _ := lead["status"].(string); status == leadStatusConverted {
		return nil, fmt.Errorf("%w: lead %s is already converted", contract.ErrInvalidState, args.LeadID)
	}

	row := map[string]any{
		"name":       lead["name"],
		"company":    lead["company"],
		"phone":      lead["phone"],
		"notes":      lead["notes"],
		"lead_id":    args.LeadID,
		"created_at": caller.Now,
		"updated_at": caller.Now,
	}
	if email, _ := lead["email"].(string); email != "" {
		row["email"] = identity.NormalizeEmail(email)
	}

	customerID, err := d.store.Insert(ctx, caller.UserID, "customers", row)
	if err != nil {
		return nil, err
	}

	err = d.store.Update(ctx, caller.UserID, "leads", args.LeadID, map[string]any{
		"status":     leadStatusConverted,
		"updated_at": caller.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("customer %s was created, but marking lead %s as converted failed: %w",
			customerID, args.LeadID, err)
	}

	return map[string]any{"customer_id": customerID, "lead_id": args.LeadID, "lead_status": leadStatusConverted}, nil
}
