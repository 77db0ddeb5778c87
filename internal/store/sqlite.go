package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"plugbot/pkg/bot"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is the Store backed by a single SQLite database file.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger = logger.Named("store")
	logger.Info("SQLite database ready", zap.String("path", path))
	return &SQLite{db: db, logger: logger}, nil
}

// Migrate applies the embedded goose migrations to db.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (s *SQLite) MigrationVersion() (int64, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(s.db)
}

func now() int64 { return time.Now().Unix() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EnabledPlugins returns enabled plugin names in name order.
func (s *SQLite) EnabledPlugins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM bot_plugins WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled plugins: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan plugin row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plugin rows: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// SetPluginEnabled upserts the enablement flag of name.
func (s *SQLite) SetPluginEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_plugins (name, enabled, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		name, boolToInt(enabled), now())
	if err != nil {
		return fmt.Errorf("failed to set plugin %s enabled=%t: %w", name, enabled, err)
	}
	return nil
}

// IsPluginEnabled reports the stored flag of name.
func (s *SQLite) IsPluginEnabled(ctx context.Context, name string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM bot_plugins WHERE name = ?`, name).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query plugin %s: %w", name, err)
	}
	return enabled == 1, nil
}

// IsBlacklisted reports whether plugin is disabled in chatID.
func (s *SQLite) IsBlacklisted(ctx context.Context, chatID int64, plugin string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM bot_chat_plugin_blacklist WHERE chat_id = ? AND plugin_name = ?`,
		chatID, plugin).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist: %w", err)
	}
	return true, nil
}

// SetBlacklisted inserts or deletes the (chatID, plugin) entry.
func (s *SQLite) SetBlacklisted(ctx context.Context, chatID int64, plugin string, disabled bool) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if disabled {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO bot_chat_plugin_blacklist (chat_id, plugin_name, created_at) VALUES (?, ?, ?)`,
			chatID, plugin, now())
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM bot_chat_plugin_blacklist WHERE chat_id = ? AND plugin_name = ?`,
			chatID, plugin)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update blacklist for chat %d: %w", chatID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// RecordChatSeen upserts chat.
func (s *SQLite) RecordChatSeen(ctx context.Context, chat bot.Chat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_chats (id, title, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		chat.ID, chat.Title, now())
	if err != nil {
		return fmt.Errorf("failed to record chat %d: %w", chat.ID, err)
	}
	return nil
}

// RecordUserSeen upserts user and its membership in chatID.
func (s *SQLite) RecordUserSeen(ctx context.Context, chatID int64, user bot.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bot_users (id, first_name, last_name, username, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			updated_at = excluded.updated_at`,
		user.ID, user.FirstName, user.LastName, user.Username, now())
	if err != nil {
		return fmt.Errorf("failed to record user %d: %w", user.ID, err)
	}

	if chatID != 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO bot_chat_members (chat_id, user_id) VALUES (?, ?)`,
			chatID, user.ID)
		if err != nil {
			return fmt.Errorf("failed to record membership of %d in %d: %w", user.ID, chatID, err)
		}
	}

	return tx.Commit()
}

// ForgetMember drops the membership of userID in chatID.
func (s *SQLite) ForgetMember(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bot_chat_members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to forget member %d of %d: %w", userID, chatID, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
