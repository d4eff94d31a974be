package action

import (
	"context"
	"fmt"

	"github.com/Asygurare/salespilot/agent/contract"
)

var tableParam = Param{
	Type:        "string",
	Description: "Record table to read",
	Required:    true,
	Enum:        []string{"leads", "customers", "tasks", "sent_emails", "scheduled_emails"},
}

func (d *Dispatcher) recordDefinitions() []Definition {
	return []Definition{
		{
			Name:        "records.query",
			Description: "List records from a table with equality filters, ordering and a limit.",
			Params: map[string]Param{
				"table":    tableParam,
				"filters":  {Type: "object", Description: "Column to value equality filters"},
				"order_by": {Type: "string", Description: "Column name, optionally followed by asc or desc"},
				"limit":    {Type: "integer", Description: "Max rows, default 20, cap 100"},
			},
			parse: parseArgs((*recordsQueryArgs).validate),
			run:   d.runRecordsQuery,
		},
		{
			Name:        "records.count",
			Description: "Count records in a table matching equality filters.",
			Params: map[string]Param{
				"table":   tableParam,
				"filters": {Type: "object", Description: "Column to value equality filters"},
			},
			parse: parseArgs((*recordsCountArgs).validate),
			run:   d.runRecordsCount,
		},
		{
			Name:        "records.search",
			Description: "Free-text search across a table's searchable columns.",
			Params: map[string]Param{
				"table": tableParam,
				"term":  {Type: "string", Description: "Search term", Required: true},
				"limit": {Type: "integer", Description: "Max rows, default 20, cap 100"},
			},
			parse: parseArgs((*recordsSearchArgs).validate),
			run:   d.runRecordsSearch,
		},
		{
			Name:        "records.get",
			Description: "Fetch a single record by id.",
			Params: map[string]Param{
				"table": tableParam,
				"id":    {Type: "string", Description: "Record id", Required: true},
			},
			parse: parseArgs((*recordsGetArgs).validate),
			run:   d.runRecordsGet,
		},
	}
}

type recordsQueryArgs struct {
	Table   string         `json:"table"`
	Filters map[string]any `json:"filters"`
	OrderBy string         `json:"order_by"`
	Limit   int            `json:"limit"`
}

func (a *recordsQueryArgs) validate(contract.CallerContext) error {
	if a.Table == "" {
		return fmt.Errorf("%w: table is required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runRecordsQuery(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(recordsQueryArgs)
	rows, err := d.store.Query(ctx, caller.UserID, args.Table, args.Filters, args.OrderBy, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": rows, "count": len(rows)}, nil
}

type recordsCountArgs struct {
	Table   string         `json:"table"`
	Filters map[string]any `json:"filters"`
}

func (a *recordsCountArgs) validate(contract.CallerContext) error {
	if a.Table == "" {
		return fmt.Errorf("%w: table is required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runRecordsCount(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(recordsCountArgs)
	n, err := d.store.Count(ctx, caller.UserID, args.Table, args.Filters)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": n}, nil
}

type recordsSearchArgs struct {
	Table string `json:"table"`
	Term  string `json:"term"`
	Limit int    `json:"limit"`
}

func (a *recordsSearchArgs) validate(contract.CallerContext) error {
	if a.Table == "" {
		return fmt.Errorf("%w: table is required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runRecordsSearch(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(recordsSearchArgs)
	rows, err := d.store.Search(ctx, caller.UserID, args.Table, args.Term, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": rows, "count": len(rows)}, nil
}

type recordsGetArgs struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

func (a *recordsGetArgs) validate(contract.CallerContext) error {
	if a.Table == "" || a.ID == "" {
		return fmt.Errorf("%w: table and id are required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runRecordsGet(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(recordsGetArgs)
	row, err := d.store.Get(ctx, caller.UserID, args.Table, args.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record": row}, nil
}
