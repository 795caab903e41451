package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tgwatch/internal/model"
	"tgwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// EnsureSubscriber creates the subscriber if needed and returns it.
// An existing subscriber gets its username refreshed.
func (s *SQLite) EnsureSubscriber(ctx context.Context, id int64, username string) (*model.Subscriber, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, username, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET username = excluded.username`,
		id, username, s.stamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscriber: %w", err)
	}
	return s.GetSubscriber(ctx, id)
}

// GetSubscriber returns a single subscriber by its chat ID.
func (s *SQLite) GetSubscriber(ctx context.Context, id int64) (*model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at, last_check_at FROM subscribers WHERE id = ?`, id,
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscriber %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscribers returns every subscriber in creation order.
func (s *SQLite) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, created_at, last_check_at FROM subscribers ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// TouchSubscriber records the time of the subscriber's last check.
func (s *SQLite) TouchSubscriber(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET last_check_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("touch subscriber: %w", err)
	}
	return nil
}

// AddChannel appends a channel to the subscriber's list.
// It returns false if the channel was already present.
func (s *SQLite) AddChannel(ctx context.Context, subscriberID int64, channel model.ChannelID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriber_channels (subscriber_id, channel, position, added_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM subscriber_channels WHERE subscriber_id = ?), ?)`,
		subscriberID, string(channel), subscriberID, s.stamp(),
	)
	if err != nil {
		return false, fmt.Errorf("insert channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveChannel deletes a channel from the subscriber's list.
// It returns false if the channel was not present.
func (s *SQLite) RemoveChannel(ctx context.Context, subscriberID int64, channel model.ChannelID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriber_channels WHERE subscriber_id = ? AND channel = ?`,
		subscriberID, string(channel),
	)
	if err != nil {
		return false, fmt.Errorf("delete channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListChannels returns the subscriber's channels in the order they were added.
func (s *SQLite) ListChannels(ctx context.Context, subscriberID int64) ([]model.ChannelID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel FROM subscriber_channels WHERE subscriber_id = ? ORDER BY position`, subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.ChannelID
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, model.ChannelID(ch))
	}
	return channels, rows.Err()
}

// GetRules returns the subscriber's keyword rules in declared order.
func (s *SQLite) GetRules(ctx context.Context, subscriberID int64) (model.RuleSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, weight, is_negative FROM keywords WHERE subscriber_id = ? ORDER BY is_negative, position`,
		subscriberID,
	)
	if err != nil {
		return model.RuleSet{}, fmt.Errorf("query keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rs model.RuleSet
	for rows.Next() {
		var term string
		var weight float64
		var negative int
		if err := rows.Scan(&term, &weight, &negative); err != nil {
			return model.RuleSet{}, fmt.Errorf("scan keyword: %w", err)
		}
		if negative == 1 {
			rs.Negative = append(rs.Negative, term)
			continue
		}
		rs.Positive = append(rs.Positive, model.KeywordRule{Term: term, Weight: weight})
	}
	return rs, rows.Err()
}

// SetRules replaces the subscriber's keyword rules.
func (s *SQLite) SetRules(ctx context.Context, subscriberID int64, rules model.RuleSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords WHERE subscriber_id = ?`, subscriberID); err != nil {
		return fmt.Errorf("delete keywords: %w", err)
	}

	const insert = `INSERT INTO keywords (subscriber_id, term, weight, is_negative, position) VALUES (?, ?, ?, ?, ?)`
	for i, r := range rules.Positive {
		if _, err := tx.ExecContext(ctx, insert, subscriberID, r.Term, model.ClampWeight(r.Weight), 0, i); err != nil {
			return fmt.Errorf("insert keyword: %w", err)
		}
	}
	for i, term := range rules.Negative {
		if _, err := tx.ExecContext(ctx, insert, subscriberID, term, model.DefaultWeight, 1, i); err != nil {
			return fmt.Errorf("insert negative keyword: %w", err)
		}
	}
	return tx.Commit()
}

// IsSent checks whether a message was already delivered to the subscriber.
func (s *SQLite) IsSent(ctx context.Context, subscriberID int64, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sent_news WHERE dedup_key = ? AND subscriber_id = ?`,
		key, subscriberID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent: %w", err)
	}
	return count > 0, nil
}

// MarkSent stores a delivery record. Existing records are left untouched.
func (s *SQLite) MarkSent(ctx context.Context, rec model.DeliveryRecord) error {
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_news (dedup_key, subscriber_id, channel, external_id, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.DedupKey, rec.SubscriberID, string(rec.ChannelID), rec.ExternalID, sentAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// PurgeSent deletes delivery records sent before olderThan.
func (s *SQLite) PurgeSent(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sent_news WHERE sent_at < ?`, olderThan.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("purge sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// RecordCheck appends a check cycle summary to the history.
func (s *SQLite) RecordCheck(ctx context.Context, rec model.CheckRecord) error {
	checkedAt := rec.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO check_history (subscriber_id, channels_total, channels_checked, relevant, enqueued, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SubscriberID, rec.ChannelsTotal, rec.ChannelsChecked, rec.Relevant, rec.Enqueued,
		checkedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// ListChecks returns the most recent check records, newest first.
func (s *SQLite) ListChecks(ctx context.Context, subscriberID int64, limit int) ([]model.CheckRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id, channels_total, channels_checked, relevant, enqueued, checked_at
		 FROM check_history WHERE subscriber_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?`,
		subscriberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checks []model.CheckRecord
	for rows.Next() {
		var c model.CheckRecord
		var checkedAt string
		if err := rows.Scan(&c.SubscriberID, &c.ChannelsTotal, &c.ChannelsChecked, &c.Relevant, &c.Enqueued, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		c.CheckedAt, _ = time.Parse(timeLayout, checkedAt)
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// Stats summarizes the subscriber's configuration and delivery history.
func (s *SQLite) Stats(ctx context.Context, subscriberID int64) (SubscriberStats, error) {
	var st SubscriberStats
	var lastCheck sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM subscriber_channels WHERE subscriber_id = ?),
			(SELECT COUNT(*) FROM keywords WHERE subscriber_id = ? AND is_negative = 0),
			(SELECT COUNT(*) FROM keywords WHERE subscriber_id = ? AND is_negative = 1),
			(SELECT COUNT(*) FROM sent_news WHERE subscriber_id = ?),
			(SELECT COUNT(*) FROM check_history WHERE subscriber_id = ?),
			(SELECT last_check_at FROM subscribers WHERE id = ?)`,
		subscriberID, subscriberID, subscriberID, subscriberID, subscriberID, subscriberID,
	).Scan(&st.Channels, &st.Keywords, &st.Negative, &st.Delivered, &st.Checks, &lastCheck)
	if err != nil {
		return SubscriberStats{}, fmt.Errorf("query stats: %w", err)
	}
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		st.LastCheckAt = &t
	}
	return st, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (model.Subscriber, error) {
	var sub model.Subscriber
	var created string
	var lastCheck sql.NullString
	if err := row.Scan(&sub.ID, &sub.Username, &created, &lastCheck); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sub, err
		}
		return sub, fmt.Errorf("scan subscriber: %w", err)
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		sub.LastCheckAt = &t
	}
	return sub, nil
}
