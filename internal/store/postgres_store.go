package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"orderhub/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint breach.
const uniqueViolation pq.ErrorCode = "23505"

// PostgresStore implements Store backed by Postgres. database maps to a schema and
// collection to a table; the unique index on id_commande is the dedup authority.
type PostgresStore struct {
	db         *sql.DB
	table      string
	index      string
	schemaName string
}

// NewPostgresStore connects to dsn and pings it. The constraint is created by EnsureUnique.
func NewPostgresStore(ctx context.Context, dsn, database, collection string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewPostgresStoreWithDB(db, database, collection), nil
}

// NewPostgresStoreWithDB reuses an existing *sql.DB.
func NewPostgresStoreWithDB(db *sql.DB, database, collection string) *PostgresStore {
	s := &PostgresStore{db: db, schemaName: database}
	table := pq.QuoteIdentifier(collection)
	if database != "" {
		table = pq.QuoteIdentifier(database) + "." + table
	}
	s.table = table
	s.index = pq.QuoteIdentifier(collection + "_id_commande_key")
	return s
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) EnsureUnique(ctx context.Context) error {
	var stmts []string
	if s.schemaName != "" {
		stmts = append(stmts, `CREATE SCHEMA IF NOT EXISTS `+pq.QuoteIdentifier(s.schemaName))
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS `+s.table+` (
  id_commande text NOT NULL,
  canal text NOT NULL,
  statut text NOT NULL,
  montant_total numeric NOT NULL DEFAULT 0,
  date_commande timestamptz,
  date_import timestamptz NOT NULL,
  document jsonb NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS `+s.index+` ON `+s.table+` (id_commande)`,
	)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres ensure unique: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, o model.CanonicalOrder) (Outcome, error) {
	doc, err := json.Marshal(&o)
	if err != nil {
		return unavailable("postgres encode", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (id_commande, canal, statut, montant_total, date_commande, date_import, document)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.OrderID, string(o.Channel), string(o.Status), o.TotalAmount.String(), o.OrderedAt, o.ImportedAt, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return Duplicate, nil
		}
		return unavailable("postgres insert", err)
	}
	return Inserted, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *PostgresStore) Range(ctx context.Context, fn func(o model.CanonicalOrder) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM `+s.table+` ORDER BY date_import, id_commande`)
	if err != nil {
		return fmt.Errorf("postgres range: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("postgres scan: %w", err)
		}
		var o model.CanonicalOrder
		if err := json.Unmarshal(doc, &o); err != nil {
			return fmt.Errorf("postgres decode: %w", err)
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Summary aggregates in the database instead of streaming every document.
func (s *PostgresStore) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT canal, statut, count(*), coalesce(sum(montant_total), 0)::text FROM `+s.table+` GROUP BY canal, statut ORDER BY canal, statut`)
	if err != nil {
		return Summary{}, fmt.Errorf("postgres summary: %w", err)
	}
	defer rows.Close()
	var sum Summary
	for rows.Next() {
		var (
			g       Group
			channel string
			status  string
			revenue string
		)
		if err := rows.Scan(&channel, &status, &g.Orders, &revenue); err != nil {
			return Summary{}, fmt.Errorf("postgres summary scan: %w", err)
		}
		g.Channel = model.Channel(channel)
		g.Status = model.Status(status)
		if g.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return Summary{}, fmt.Errorf("postgres summary revenue: %w", err)
		}
		sum.add(g)
	}
	return sum, rows.Err()
}
