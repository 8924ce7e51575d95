package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/tzwriter/service/metrics"
)

//go:embed schema.sql
var schema string

const operationGroupColumns = `hash, group_id, source, network, kinds, counters, status, workflow_id, result, created_at`

// Store is the journal of injected operation groups.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Migrate creates the journal tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// OperationGroup is one injected operation group.
type OperationGroup struct {
	Hash       string // "o..." hash computed from the signed bytes
	GroupID    string // injection response body, verbatim
	Source     string
	Network    string
	Kinds      []string
	Counters   []int64 // empty for activations
	Status     string
	WorkflowID *string
	Result     json.RawMessage // preapply result
	CreatedAt  time.Time
}

// RecordOperationGroupParams contains the parameters for recording a group.
type RecordOperationGroupParams struct {
	Hash       string
	GroupID    string
	Source     string
	Network    string
	Kinds      []string
	Counters   []int64
	WorkflowID *string
	Result     json.RawMessage
}

// ListOperationGroupsBySourceParams contains pagination parameters.
type ListOperationGroupsBySourceParams struct {
	Source  string
	Network string
	Limit   int32
	Offset  int32
}

// RecordOperationGroup inserts a group. Recording the same hash twice
// returns the existing row, so a retried workflow activity is harmless.
func (s *Store) RecordOperationGroup(ctx context.Context, params RecordOperationGroupParams) (*OperationGroup, error) {
	start := time.Now()
	counters := params.Counters
	if counters == nil {
		counters = []int64{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO operation_groups (hash, group_id, source, network, kinds, counters, workflow_id, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING `+operationGroupColumns,
		params.Hash,
		params.GroupID,
		params.Source,
		params.Network,
		params.Kinds,
		counters,
		pgtextFromStringPtr(params.WorkflowID),
		nullableJSON(params.Result),
	)
	group, err := scanOperationGroup(row)
	s.record("insert", start, err)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// GetOperationGroup retrieves a group by hash. It returns pgx.ErrNoRows
// when the hash is unknown.
func (s *Store) GetOperationGroup(ctx context.Context, hash string) (*OperationGroup, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+operationGroupColumns+` FROM operation_groups WHERE hash = $1`, hash)
	group, err := scanOperationGroup(row)
	s.record("select", start, err)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// ListOperationGroupsBySource lists the groups of a source, newest first.
func (s *Store) ListOperationGroupsBySource(ctx context.Context, params ListOperationGroupsBySourceParams) ([]*OperationGroup, error) {
	start := time.Now()
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+operationGroupColumns+`
		FROM operation_groups
		WHERE source = $1 AND ($2 = '' OR network = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		params.Source, params.Network, limit, params.Offset,
	)
	if err != nil {
		s.record("list", start, err)
		return nil, err
	}
	defer rows.Close()

	var groups []*OperationGroup
	for rows.Next() {
		group, err := scanOperationGroup(rows)
		if err != nil {
			s.record("list", start, err)
			return nil, err
		}
		groups = append(groups, group)
	}
	err = rows.Err()
	s.record("list", start, err)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, "operation_groups", time.Since(start).Seconds(), err)
}

func scanOperationGroup(row pgx.Row) (*OperationGroup, error) {
	var (
		g          OperationGroup
		workflowID pgtype.Text
		result     []byte
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&g.Hash,
		&g.GroupID,
		&g.Source,
		&g.Network,
		&g.Kinds,
		&g.Counters,
		&g.Status,
		&workflowID,
		&result,
		&createdAt,
	); err != nil {
		return nil, err
	}
	g.WorkflowID = stringPtrFromPgtext(workflowID)
	if len(result) > 0 {
		g.Result = json.RawMessage(result)
	}
	g.CreatedAt = createdAt.Time
	return &g, nil
}

// Helper functions for converting between pgtype and Go types

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
