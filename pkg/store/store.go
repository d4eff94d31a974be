package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
)

type Config struct {
	DSN             string        `split_words:"true" required:"true"`
	MaxOpenConns    int           `split_words:"true" default:"8"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	InitSchema      bool          `split_words:"true" default:"false"`
}

func NewDB(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("store dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// tableSpec whitelists a table for the generic façade and names the columns
// free-text search may touch.
type tableSpec struct {
	searchColumns []string
}

var tables = map[string]tableSpec{
	"leads":            {searchColumns: []string{"name", "email", "company", "notes"}},
	"customers":        {searchColumns: []string{"name", "email", "company", "notes"}},
	"tasks":            {searchColumns: []string{"title", "notes"}},
	"sent_emails":      {searchColumns: []string{"subject"}},
	"scheduled_emails": {searchColumns: []string{"subject"}},
}

// Store implements the generic record façade over Postgres. Every query
// carries a user_id guard; rows of other tenants are invisible.
type Store struct {
	db bun.IDB
}

var _ contract.Store = (*Store)(nil)

func New(db bun.IDB) *Store {
	return &Store{db: db}
}

func (s *Store) Query(ctx context.Context, userID, table string, filters contract.Filter, orderBy string, limit int) ([]map[string]any, error) {
	if _, err := resolveTable(table); err != nil {
		return nil, err
	}

	q := s.db.NewSelect().Table(table).Where("user_id = ?", userID)
	for col, val := range filters {
		if err := validColumn(col); err != nil {
			return nil, err
		}
		q = q.Where("? = ?", bun.Ident(col), val)
	}
	if orderBy != "" {
		col, dir, err := splitOrder(orderBy)
		if err != nil {
			return nil, err
		}
		q = q.OrderExpr("? ?", bun.Ident(col), bun.Safe(dir))
	}
	q = q.Limit(clampLimit(limit))

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return rows, nil
}

func (s *Store) Count(ctx context.Context, userID, table string, filters contract.Filter) (int, error) {
	if _, err := resolveTable(table); err != nil {
		return 0, err
	}

	q := s.db.NewSelect().Table(table).Where("user_id = ?", userID)
	for col, val := range filters {
		if err := validColumn(col); err != nil {
			return 0, err
		}
		q = q.Where("? = ?", bun.Ident(col), val)
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) Search(ctx context.Context, userID, table, term string, limit int) ([]map[string]any, error) {
	spec, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", contract.ErrInvalidInput)
	}

	q := s.db.NewSelect().Table(table).Where("user_id = ?", userID)
	q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, col := range spec.searchColumns {
			q = q.WhereOr("? ILIKE ?", bun.Ident(col), "%"+term+"%")
		}
		return q
	})
	q = q.Limit(clampLimit(limit))

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("search %s: %w", table, err)
	}
	return rows, nil
}

func (s *Store) Get(ctx context.Context, userID, table, id string) (map[string]any, error) {
	if _, err := resolveTable(table); err != nil {
		return nil, err
	}

	var rows []map[string]any
	err := s.db.NewSelect().
		Table(table).
		Where("user_id = ?", userID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", contract.ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return rows[0], nil
}

func (s *Store) Insert(ctx context.Context, userID, table string, row map[string]any) (string, error) {
	if _, err := resolveTable(table); err != nil {
		return "", err
	}
	for col := range row {
		if err := validColumn(col); err != nil {
			return "", err
		}
	}

	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	values := make(map[string]any, len(row)+2)
	for k, v := range row {
		values[k] = bindValue(v)
	}
	values["id"] = id
	values["user_id"] = userID

	if _, err := s.db.NewInsert().Model(&values).TableExpr(table).Exec(ctx); err != nil {
		return "", fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// bindValue prepares a generic value for the Postgres driver. String slices
// go through the map-model path without bun's struct tags, so they need the
// explicit text[] wrapper to land as an array column.
func bindValue(v any) any {
	if s, ok := v.([]string); ok {
		return pgdialect.Array(s)
	}
	return v
}

func (s *Store) Update(ctx context.Context, userID, table, id string, patch map[string]any) error {
	if _, err := resolveTable(table); err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("%w: empty update", contract.ErrInvalidInput)
	}

	q := s.db.NewUpdate().Table(table)
	for col, val := range patch {
		if err := validColumn(col); err != nil {
			return err
		}
		if col == "id" || col == "user_id" {
			return fmt.Errorf("%w: column %s cannot be updated", contract.ErrInvalidInput, col)
		}
		q = q.Set("? = ?", bun.Ident(col), bindValue(val))
	}

	res, err := q.Where("id = ?", id).Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %s", contract.ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, table, id string) error {
	if _, err := resolveTable(table); err != nil {
		return err
	}

	res, err := s.db.NewDelete().
		Table(table).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %s", contract.ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return nil
}

// Profile implements identity.ProfileReader for sender-name resolution.
func (s *Store) Profile(ctx context.Context, userID string) (identity.Profile, error) {
	user := new(User)
	err := s.db.NewSelect().Model(user).Where("id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Profile{}, fmt.Errorf("%w: user %s", contract.ErrNotFound, userID)
	}
	if err != nil {
		return identity.Profile{}, fmt.Errorf("load user profile: %w", err)
	}
	return identity.Profile{
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		DisplayName: user.DisplayName,
	}, nil
}

// UserByAPIToken resolves a bearer token to its user, for request
// authentication.
func (s *Store) UserByAPIToken(ctx context.Context, token string) (*User, error) {
	user := new(User)
	err := s.db.NewSelect().Model(user).Where("api_token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown api token", contract.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("look up api token: %w", err)
	}
	return user, nil
}

func resolveTable(table string) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: unknown table %q", contract.ErrInvalidInput, table)
	}
	return spec, nil
}

func validColumn(col string) error {
	if col == "" {
		return fmt.Errorf("%w: empty column name", contract.ErrInvalidInput)
	}
	for _, ch := range col {
		if ch >= 'a' && ch <= 'z' || ch == '_' || ch >= '0' && ch <= '9' {
			continue
		}
		return fmt.Errorf("%w: invalid column name %q", contract.ErrInvalidInput, col)
	}
	return nil
}

func splitOrder(orderBy string) (string, string, error) {
	parts := strings.Fields(strings.ToLower(orderBy))
	switch len(parts) {
	case 1:
		if err := validColumn(parts[0]); err != nil {
			return "", "", err
		}
		return parts[0], "ASC", nil
	case 2:
		if err := validColumn(parts[0]); err != nil {
			return "", "", err
		}
		if parts[1] != "asc" && parts[1] != "desc" {
			return "", "", fmt.Errorf("%w: invalid sort direction %q", contract.ErrInvalidInput, parts[1])
		}
		return parts[0], strings.ToUpper(parts[1]), nil
	default:
		return "", "", fmt.Errorf("%w: invalid order_by %q", contract.ErrInvalidInput, orderBy)
	}
}

func clampLimit(limit int) int {
	const (
		defaultLimit = 20
		maxLimit     = 100
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
