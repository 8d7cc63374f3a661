package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"robot_crypt/internal/domain"

	_ "modernc.org/sqlite"
)

type Repository interface {
	Init(ctx context.Context) error
	Close() error

	// 快照：bot_state 表只有一行
	SaveSnapshot(ctx context.Context, s State) error
	// LoadSnapshot 没有快照时返回 nil, nil
	LoadSnapshot(ctx context.Context) (*State, error)

	// 交易日志
	InsertTrade(ctx context.Context, t domain.ClosedTrade) error
	ListTrades(ctx context.Context, limit int) ([]domain.ClosedTrade, error)

	// 周期汇总
	InsertCycle(ctx context.Context, c domain.CycleSummary) error
	ListCycles(ctx context.Context, page, pageSize int) ([]domain.CycleSummary, error)
	CountCycles(ctx context.Context) (int, error)

	// 数据管理
	ResetAllData(ctx context.Context) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity REAL NOT NULL,
			net_return REAL NOT NULL,
			pnl REAL NOT NULL,
			reason TEXT NOT NULL,
			entry_time TIMESTAMP NOT NULL,
			exit_time TIMESTAMP NOT NULL,
			hold_seconds INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			processed INTEGER NOT NULL,
			entered INTEGER NOT NULL,
			exited INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			message TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s State) error {
	payload, err := EncodeState(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bot_state (id, schema_version, payload, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload        = excluded.payload,
			updated_at     = excluded.updated_at
	`, SchemaVersion, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (*State, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM bot_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	s, err := DecodeState([]byte(payload))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) InsertTrade(ctx context.Context, t domain.ClosedTrade) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, strategy, entry_price, exit_price, quantity, net_return, pnl, reason, entry_time, exit_time, hold_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Strategy, t.EntryPrice, t.ExitPrice, t.Quantity, t.NetReturn, t.PnL, t.Reason,
		t.EntryTime.UTC(), t.ExitTime.UTC(), int64(t.HoldFor/time.Second),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades 按平仓时间倒序
func (r *SQLiteRepository) ListTrades(ctx context.Context, limit int) ([]domain.ClosedTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, strategy, entry_price, exit_price, quantity, net_return, pnl, reason, entry_time, exit_time, hold_seconds
		FROM trades
		ORDER BY exit_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询交易记录: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.ClosedTrade, 0, limit)
	for rows.Next() {
		var t domain.ClosedTrade
		var holdSeconds int64
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Strategy, &t.EntryPrice, &t.ExitPrice, &t.Quantity,
			&t.NetReturn, &t.PnL, &t.Reason, &t.EntryTime, &t.ExitTime, &holdSeconds); err != nil {
			return nil, fmt.Errorf("扫描交易记录: %w", err)
		}
		t.HoldFor = time.Duration(holdSeconds) * time.Second
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *SQLiteRepository) InsertCycle(ctx context.Context, c domain.CycleSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cycles (id, status, processed, entered, exited, skipped, errors, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Status), c.Processed, c.Entered, c.Exited, c.Skipped, c.Errors,
		nullableString(c.Message), c.StartedAt.UTC(), c.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountCycles(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycles").Scan(&count)
	return count, err
}

// ListCycles 分页查询周期汇总
func (r *SQLiteRepository) ListCycles(ctx context.Context, page, pageSize int) ([]domain.CycleSummary, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 15
	}
	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, processed, entered, exited, skipped, errors, COALESCE(message, ''), started_at, finished_at
		FROM cycles
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("查询周期列表: %w", err)
	}
	defer rows.Close()

	results := make([]domain.CycleSummary, 0, pageSize)
	for rows.Next() {
		var cs domain.CycleSummary
		var status string
		if err := rows.Scan(&cs.ID, &status, &cs.Processed, &cs.Entered, &cs.Exited, &cs.Skipped,
			&cs.Errors, &cs.Message, &cs.StartedAt, &cs.FinishedAt); err != nil {
			return nil, fmt.Errorf("扫描周期记录: %w", err)
		}
		cs.Status = domain.CycleStatus(status)
		results = append(results, cs)
	}
	return results, rows.Err()
}

func (r *SQLiteRepository) ResetAllData(ctx context.Context) error {
	tables := []string{"trades", "cycles", "bot_state"}
	for _, t := range tables {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("清空表 %s 失败: %w", t, err)
		}
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
