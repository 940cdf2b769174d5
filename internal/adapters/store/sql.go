package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

//go:embed schema.sql
var schemaTemplate string

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const columns = "actor_id, category, ts, level, tier_hint, risk_level, summary, health_impact, remedies, next_test_days, next_test_date"

// Dialect selects placeholder syntax and error classification.
type Dialect struct {
	Name string
	// Numbered placeholders ($1) instead of "?".
	Numbered  bool
	Retryable func(error) bool
}

// RetryPolicy bounds the Fibonacci backoff applied to transient append errors.
type RetryPolicy struct {
	Base       time.Duration
	MaxRetries uint64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Base <= 0 {
		p.Base = 50 * time.Millisecond
	}
	return p
}

// SQL is a RecordStore over database/sql.
type SQL struct {
	db      *sql.DB
	table   string
	dialect Dialect
	retry   RetryPolicy
}

type SQLOption func(*SQL)

func WithRetry(p RetryPolicy) SQLOption {
	return func(s *SQL) { s.retry = p.withDefaults() }
}

func NewSQL(db *sql.DB, table string, d Dialect, opts ...SQLOption) (*SQL, error) {
	if table == "" {
		table = "detections"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &SQL{db: db, table: table, dialect: d, retry: RetryPolicy{MaxRetries: 3}.withDefaults()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQL) Name() string { return s.dialect.Name }

func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) Close() error { return s.db.Close() }

// EnsureSchema creates the records table when it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	ddl := strings.ReplaceAll(schemaTemplate, "{{table}}", s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *SQL) placeholders(n, offset int) string {
	parts := make([]string, n)
	for i := range parts {
		if s.dialect.Numbered {
			parts[i] = fmt.Sprintf("$%d", offset+i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ",")
}

func (s *SQL) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (actor_id, category, ts) DO NOTHING",
		s.table, columns, s.placeholders(11, 0))
}

func (s *SQL) Append(ctx context.Context, rec domain.DetectionRecord) (domain.RecordID, error) {
	remedies := rec.Classification.Remedies
	if remedies == nil {
		remedies = []string{}
	}
	rem, err := json.Marshal(remedies)
	if err != nil {
		return "", fmt.Errorf("marshal remedies: %w", err)
	}
	key := rec.Key()
	args := []any{
		rec.ActorID,
		string(rec.Category),
		key.Timestamp,
		rec.Reading.Level,
		rec.Reading.TierHint,
		string(rec.Classification.Tier),
		rec.Classification.Summary,
		rec.Classification.Impact,
		string(rem),
		rec.Classification.RetestDays,
		rec.NextTestDate.UnixMilli(),
	}
	query := s.insertQuery()

	b := retry.WithMaxRetries(s.retry.MaxRetries, retry.NewFibonacci(s.retry.Base))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			if s.dialect.Retryable != nil && s.dialect.Retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s append %s: %w", s.dialect.Name, key, err)
	}
	return key.ID(), nil
}

func (s *SQL) ListByActor(ctx context.Context, actor string, cat *domain.Category) ([]domain.DetectionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE actor_id = %s", columns, s.table, s.placeholders(1, 0))
	args := []any{actor}
	if cat != nil {
		query += " AND category = " + s.placeholders(1, 1)
		args = append(args, string(*cat))
	}
	query += " ORDER BY ts DESC, category ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s list %s: %w", s.dialect.Name, actor, err)
	}
	defer rows.Close()

	var out []domain.DetectionRecord
	for rows.Next() {
		var (
			rec                 domain.DetectionRecord
			category, tier, rem string
			ts, nextTest        int64
		)
		if err := rows.Scan(
			&rec.ActorID, &category, &ts,
			&rec.Reading.Level, &rec.Reading.TierHint,
			&tier, &rec.Classification.Summary, &rec.Classification.Impact,
			&rem, &rec.Classification.RetestDays, &nextTest,
		); err != nil {
			return nil, fmt.Errorf("%s scan: %w", s.dialect.Name, err)
		}
		if err := json.Unmarshal([]byte(rem), &rec.Classification.Remedies); err != nil {
			return nil, fmt.Errorf("%s decode remedies: %w", s.dialect.Name, err)
		}
		rec.Category = domain.Category(category)
		rec.Classification.Tier = domain.RiskTier(tier)
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.NextTestDate = time.UnixMilli(nextTest).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", s.dialect.Name, err)
	}
	return out, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var _ ports.RecordStore = (*SQL)(nil)
