package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("storage: not found")

// Dialect 数据库方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Storage 文章、报告、上下文分片三张表的统一存储
type Storage struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	log     *logrus.Entry
}

// NewStorage 根据配置打开数据库并初始化表结构
func NewStorage(cfg config.DBConfig) (*Storage, error) {
	switch Dialect(cfg.Driver) {
	case DialectPostgres:
		connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
		return Open(DialectPostgres, connStr)
	case DialectSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return Open(DialectSQLite, cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", cfg.Driver)
	}
}

// Open 使用指定方言和 DSN 打开数据库
func Open(dialect Dialect, dsn string) (*Storage, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	var placeholder sq.PlaceholderFormat = sq.Dollar
	if dialect == DialectSQLite {
		// SQLite 单写者，串行化连接避免 database is locked
		db.SetMaxOpenConns(1)
		placeholder = sq.Question
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
		log:     logger.For("storage"),
	}
	if dialect == DialectSQLite {
		for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
			}
		}
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close 关闭数据库连接
func (s *Storage) Close() error {
	return s.db.Close()
}

// Dialect 返回当前方言
func (s *Storage) Dialect() Dialect {
	return s.dialect
}

func (s *Storage) initSchema(ctx context.Context) error {
	pk := "BIGSERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id ` + pk + `,
			owner TEXT NOT NULL,
			subject TEXT NOT NULL,
			title TEXT NOT NULL,
			publish_date TEXT,
			author TEXT,
			full_text TEXT NOT NULL,
			url TEXT NOT NULL,
			suitability SMALLINT,
			created_at BIGINT NOT NULL,
			UNIQUE (owner, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_owner_subject ON articles (owner, subject)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id ` + pk + `,
			owner TEXT NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		// month 为 NULL 时普通 UNIQUE 约束不生效，用表达式索引统一成 0
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_reports_cache_key
			ON reports (owner, kind, subject, year, COALESCE(month, 0))`,
		`CREATE TABLE IF NOT EXISTS context_chunks (
			owner TEXT NOT NULL,
			subject TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			source TEXT,
			metadata TEXT,
			embedding TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (owner, subject, id)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	if i := strings.IndexByte(q, '\n'); i > 0 {
		return strings.TrimSpace(q[:i])
	}
	return q
}

// sanitize 去掉非法 UTF-8 和 NUL，PostgreSQL 文本字段不接受 NULL 字节
func sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, rerr)
		}
		return err
	}
	return tx.Commit()
}
