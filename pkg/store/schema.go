package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/Asygurare/salespilot/agent/schedule"
)

// InitSchema creates any missing tables. Intended for fresh environments and
// tests; production schema changes go through migrations.
func InitSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*User)(nil),
		(*Lead)(nil),
		(*Customer)(nil),
		(*Task)(nil),
		(*SentEmail)(nil),
		(*ProviderConnection)(nil),
		(*schedule.ScheduledSend)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}
