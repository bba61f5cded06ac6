package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// metricOps maps a metric to its pgvector operator class, distance operator
// and the SQL turning a distance into a score where higher is more similar.
var metricOps = map[Metric]struct {
	opclass string
	op      string
	score   string
}{
	MetricCosine:     {"vector_cosine_ops", "<=>", "1 - (embedding <=> $1)"},
	MetricEuclidean:  {"vector_l2_ops", "<->", "-(embedding <-> $1)"},
	MetricDotProduct: {"vector_ip_ops", "<#>", "-(embedding <#> $1)"},
}

// PgVectorStore keeps each index in its own table with a fixed-dimension
// vector column. Index definitions are recorded in vector_indexes.
type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

// TableName returns the table backing the named index.
func TableName(index string) string {
	var sb strings.Builder
	sb.WriteString("vectors_")
	for _, r := range strings.ToLower(index) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func (s *PgVectorStore) ListIndexes(ctx context.Context) ([]IndexSpec, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, dimension, metric, cloud, region FROM vector_indexes ORDER BY name`)
	if err != nil {
		return nil, classify("list indexes", err)
	}
	defer rows.Close()

	var specs []IndexSpec
	for rows.Next() {
		var (
			spec   IndexSpec
			metric string
		)
		if err := rows.Scan(&spec.Name, &spec.Dimension, &metric, &spec.Cloud, &spec.Region); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		spec.Metric = Metric(metric)
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// CreateIndex creates the table, its ANN index and the registry row in one
// transaction. It is a no-op for the registry when the name is already taken.
func (s *PgVectorStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	ops, ok := metricOps[spec.Metric]
	if !ok {
		return apperr.Rejected("create index", fmt.Errorf("unsupported metric %q", spec.Metric))
	}

	table := TableName(spec.Name)
	ident := pgx.Identifier{table}.Sanitize()
	annIdent := pgx.Identifier{table + "_embedding_idx"}.Sanitize()

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				embedding  vector(%d) NOT NULL,
				source     TEXT NOT NULL DEFAULT '',
				page       INTEGER NOT NULL DEFAULT 0,
				text       TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, ident, spec.Dimension))
		if err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		_, err = tx.Exec(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`, annIdent, ident, ops.opclass))
		if err != nil {
			return fmt.Errorf("create ann index: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO vector_indexes (name, table_name, dimension, metric, cloud, region)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (name) DO NOTHING`,
			spec.Name, table, spec.Dimension, string(spec.Metric), spec.Cloud, spec.Region)
		if err != nil {
			return fmt.Errorf("register index: %w", err)
		}
		return nil
	})
	if err != nil {
		return classify("create index", err)
	}
	return nil
}

func (s *PgVectorStore) Count(ctx context.Context, index string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s`, pgx.Identifier{TableName(index)}.Sanitize()),
	).Scan(&n)
	if err != nil {
		return 0, classify("count vectors", err)
	}
	return n, nil
}

// Upsert writes all records in a single transaction, so a failed call leaves
// the index unchanged.
func (s *PgVectorStore) Upsert(ctx context.Context, index string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ident := pgx.Identifier{TableName(index)}.Sanitize()
	query := fmt.Sprintf(
		`INSERT INTO %s (id, embedding, source, page, text)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET embedding = $2, source = $3, page = $4, text = $5`, ident)

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(query, r.ID, pgvector.NewVector(r.Values), r.Metadata.Source, r.Metadata.Page, r.Metadata.Text)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return classify("upsert vectors", err)
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, index string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	var metric string
	err := s.db.QueryRow(ctx, `SELECT metric FROM vector_indexes WHERE name = $1`, index).Scan(&metric)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Precondition("query vectors", fmt.Errorf("%w: %q", ErrIndexNotFound, index))
		}
		return nil, classify("query vectors", err)
	}
	ops, ok := metricOps[Metric(metric)]
	if !ok {
		return nil, apperr.Rejected("query vectors", fmt.Errorf("unsupported metric %q", metric))
	}

	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, source, page, text, %s AS score
		 FROM %s
		 ORDER BY embedding %s $1
		 LIMIT $2`, ops.score, pgx.Identifier{TableName(index)}.Sanitize(), ops.op),
		pgvector.NewVector(vector), topK,
	)
	if err != nil {
		return nil, classify("query vectors", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Metadata.Source, &m.Metadata.Page, &m.Metadata.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// classify maps Postgres failures onto the apperr categories: a missing table
// means the index was never created, other server errors reject the request,
// and anything else (connection loss, timeouts) is transient.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == undefinedTable {
			return apperr.Precondition(op, fmt.Errorf("%w: %s", ErrIndexNotFound, pgErr.Message))
		}
		return apperr.Rejected(op, err)
	}
	return apperr.Transient(op, err)
}
