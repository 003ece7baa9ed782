package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"smsinbox/pkg/models"
)

const messageColumns = "message_id, from_msisdn, to_msisdn, ts, text, created_at"

type dialect struct {
	name        string
	placeholder func(n int) string
	readTx      *sql.TxOptions
	isUnique    func(err error) bool
	lower       string
}

var postgresDialect = dialect{
	name:        BackendPostgres,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	// Count and page must come from one snapshot.
	readTx: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	lower:  "LOWER",
	isUnique: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

var sqliteDialect = dialect{
	name:        BackendSQLite,
	placeholder: func(int) string { return "?" },
	lower:       "unicode_lower",
	isUnique: func(err error) bool {
		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SQLStore implements Store on database/sql for Postgres and SQLite.
// The schema is owned by the migrations package.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration

	insertQuery string
	getQuery    string
	topQuery    string
}

type SQLOption func(*SQLStore)

// WithQueryTimeout bounds every store call. Zero disables the bound.
func WithQueryTimeout(d time.Duration) SQLOption {
	return func(s *SQLStore) {
		s.timeout = d
	}
}

func NewPostgresStore(db *sql.DB, opts ...SQLOption) *SQLStore {
	return newSQLStore(db, postgresDialect, opts...)
}

func NewSQLiteStore(db *sql.DB, opts ...SQLOption) *SQLStore {
	return newSQLStore(db, sqliteDialect, opts...)
}

func newSQLStore(db *sql.DB, d dialect, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, dialect: d}
	for _, opt := range opts {
		opt(s)
	}

	p := d.placeholder
	s.insertQuery = fmt.Sprintf(`
		INSERT INTO messages (%s)
		VALUES (%s, %s, %s, %s, %s, %s)
		ON CONFLICT (message_id) DO NOTHING
	`, messageColumns, p(1), p(2), p(3), p(4), p(5), p(6))
	s.getQuery = fmt.Sprintf(`SELECT %s FROM messages WHERE message_id = %s`, messageColumns, p(1))
	s.topQuery = fmt.Sprintf(`
		SELECT from_msisdn, COUNT(*) AS cnt
		FROM messages
		GROUP BY from_msisdn
		ORDER BY cnt DESC, from_msisdn ASC
		LIMIT %s
	`, p(1))

	return s
}

func (s *SQLStore) Backend() string {
	return s.dialect.name
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLStore) Insert(ctx context.Context, msg *models.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.insertQuery,
		msg.MessageID, msg.From, msg.To, msg.TS, nullString(msg.Text), msg.CreatedAt,
	)
	if err != nil {
		if s.dialect.isUnique(err) {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}

	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := scanMessage(s.db.QueryRowContext(ctx, s.getQuery, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

func (s *SQLStore) Query(ctx context.Context, filter models.Filter, page models.Pagination) ([]models.Message, int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.dialect.readTx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin query: %w", err)
	}
	defer tx.Rollback()

	where, args := s.buildWhere(filter)

	var total int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM messages%s ORDER BY ts ASC, message_id ASC LIMIT %s OFFSET %s",
		messageColumns, where, s.dialect.placeholder(n+1), s.dialect.placeholder(n+2))
	args = append(args, page.Limit, page.Offset)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, total, nil
}

func (s *SQLStore) buildWhere(filter models.Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(format string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(format, s.dialect.placeholder(len(args))))
	}

	if filter.From != "" {
		add("from_msisdn = %s", filter.From)
	}
	if filter.To != "" {
		add("to_msisdn = %s", filter.To)
	}
	if filter.Since != "" {
		add("ts >= %s", filter.Since)
	}
	if filter.Q != "" {
		add(s.dialect.lower+`(text) LIKE %s ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(filter.Q))+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLStore) Aggregate(ctx context.Context, topN int) (*models.Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.dialect.readTx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin aggregate: %w", err)
	}
	defer tx.Rollback()

	stats := &models.Stats{MessagesPerSender: make([]models.SenderCount, 0, topN)}

	var first, last sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT from_msisdn), MIN(ts), MAX(ts)
		FROM messages
	`).Scan(&stats.TotalMessages, &stats.SendersCount, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate messages: %w", err)
	}
	stats.FirstMessageTS = stringPtr(first)
	stats.LastMessageTS = stringPtr(last)

	rows, err := tx.QueryContext(ctx, s.topQuery, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate senders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc models.SenderCount
		if err := rows.Scan(&sc.From, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		stats.MessagesPerSender = append(stats.MessagesPerSender, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate senders: %w", err)
	}

	return stats, nil
}

// Ping checks the connection and that the messages table is queryable.
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM messages LIMIT 1").Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to probe messages table: %w", err)
	}

	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var text sql.NullString
	if err := row.Scan(&msg.MessageID, &msg.From, &msg.To, &msg.TS, &text, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.Text = stringPtr(text)
	return &msg, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
