package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maine/timeline_watch/internal/timeline"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Entry - пост, о котором уже отправлено уведомление.
type Entry struct {
	Post       timeline.Post
	URL        string
	NotifiedAt time.Time
}

// Store хранит отправленные уведомления в SQLite (WAL, один писатель).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open открывает или создаёт базу по пути path и применяет схему.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect archive: %w", err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close закрывает соединение с базой.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Push сохраняет пост. Повторное сохранение того же поста ничего не меняет.
func (s *Store) Push(ctx context.Context, post timeline.Post) error {
	mentions, err := json.Marshal(post.MentionedUsers)
	if err != nil {
		return fmt.Errorf("marshal mentions: %w", err)
	}
	if post.MentionedUsers == nil {
		mentions = []byte("[]")
	}

	var postedAt int64
	if !post.CreatedAt.IsZero() {
		postedAt = post.CreatedAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications
			(post_id, author, text, url, quoted_author, mentioned_users, posted_at, notified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.Author, post.Text, post.URL(), post.QuotedAuthor, string(mentions), postedAt, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("archive post %s: %w", post.ID, err)
	}
	return nil
}

// Recent возвращает последние limit уведомлений, новые первыми.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, author, text, url, quoted_author, mentioned_users, posted_at, notified_at
		FROM notifications
		ORDER BY notified_at DESC, post_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			mentions   string
			postedAt   int64
			notifiedAt int64
		)
		if err := rows.Scan(&e.Post.ID, &e.Post.Author, &e.Post.Text, &e.URL, &e.Post.QuotedAuthor, &mentions, &postedAt, &notifiedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if err := json.Unmarshal([]byte(mentions), &e.Post.MentionedUsers); err != nil {
			return nil, fmt.Errorf("decode mentions of %s: %w", e.Post.ID, err)
		}
		e.Post.Quoted = e.Post.QuotedAuthor != ""
		if postedAt > 0 {
			e.Post.CreatedAt = time.UnixMilli(postedAt).UTC()
		}
		e.NotifiedAt = time.UnixMilli(notifiedAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count возвращает число сохранённых уведомлений.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&n); err != nil {
		return 0, fmt.Errorf("count archive: %w", err)
	}
	return n, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
