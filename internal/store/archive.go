package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/cost"
)

// timeLayout 固定宽度，保证按文本排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound 表示指定的回测记录不存在。
var ErrRunNotFound = errors.New("store: 回测记录不存在")

// RunSummary 为回测记录的概要。
type RunSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	FinalEquity float64   `json:"final_equity"`
	PnL         float64   `json:"pnl"`
	TradeCount  int       `json:"trade_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunDetail 为完整的回测记录。
type RunDetail struct {
	RunSummary
	Config      backtest.Config        `json:"config"`
	Report      backtest.Report        `json:"report"`
	Ledger      []backtest.Fill        `json:"ledger"`
	EquityCurve []backtest.EquityPoint `json:"equity_curve"`
}

// Archive 持久化回测结果。
type Archive struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewArchive 初始化回测归档，创建所需表结构。
func NewArchive(store *Store, logger *zap.Logger) (*Archive, error) {
	if store == nil {
		return nil, errors.New("store: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Archive{
		db:     store.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := a.initSchema(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			config TEXT NOT NULL,
			report TEXT NOT NULL,
			final_equity REAL NOT NULL,
			pnl REAL NOT NULL,
			trade_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fills (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			bar_index INTEGER NOT NULL,
			ts TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			requested_price REAL NOT NULL,
			price REAL NOT NULL,
			slippage REAL NOT NULL,
			commission REAL NOT NULL,
			closed_quantity REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			forced INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS equity_points (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			bar_index INTEGER NOT NULL,
			ts TEXT NOT NULL,
			pnl REAL NOT NULL,
			equity REAL NOT NULL,
			PRIMARY KEY (run_id, bar_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`,
	}

	for _, stmt := range schema {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// SaveRun 在单个事务中写入报告、成交与权益曲线，返回记录 ID。
func (a *Archive) SaveRun(ctx context.Context, name string, cfg backtest.Config, result backtest.Result) (id string, err error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("store: 序列化配置失败: %w", err)
	}
	summary := result.Report
	summary.EquityCurve = nil
	reportJSON, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("store: 序列化报告失败: %w", err)
	}

	id = uuid.NewString()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, symbol, strategy, config, report, final_equity, pnl, trade_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, result.Report.Symbol, result.Report.Strategy, string(configJSON), string(reportJSON),
		result.Report.FinalEquity, result.Report.PnL, result.Report.TradeCount, a.now().Format(timeLayout),
	); err != nil {
		return "", fmt.Errorf("store: 写入回测记录失败: %w", err)
	}

	for seq, f := range result.Ledger {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO fills (run_id, seq, bar_index, ts, side, quantity, requested_price, price, slippage,
			 commission, closed_quantity, realized_pnl, forced) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, seq, f.BarIndex, f.Timestamp.Format(timeLayout), string(f.Side), f.Quantity, f.RequestedPrice,
			f.Price, f.Slippage, f.Commission, f.ClosedQuantity, f.RealizedPnL, f.Forced,
		); err != nil {
			return "", fmt.Errorf("store: 写入成交失败: %w", err)
		}
	}

	for _, p := range result.EquityCurve {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO equity_points (run_id, bar_index, ts, pnl, equity) VALUES (?, ?, ?, ?, ?)`,
			id, p.BarIndex, p.Timestamp.Format(timeLayout), p.PnL, p.Equity,
		); err != nil {
			return "", fmt.Errorf("store: 写入权益曲线失败: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("store: 提交事务失败: %w", err)
	}

	a.logger.Debug("回测结果已归档", zap.String("id", id), zap.String("name", name))
	return id, nil
}

// ListRuns 按创建时间倒序列出最近的回测记录。
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, name, symbol, strategy, final_equity, pnl, trade_count, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: 查询回测记录失败: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0, limit)
	for rows.Next() {
		summary, scanErr := scanSummary(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取回测记录失败: %w", err)
	}
	return runs, nil
}

// LoadRun 读取完整的回测记录。
func (a *Archive) LoadRun(ctx context.Context, id string) (RunDetail, error) {
	var (
		detail     RunDetail
		configJSON string
		reportJSON string
		created    string
	)
	row := a.db.QueryRowContext(ctx,
		`SELECT id, name, symbol, strategy, final_equity, pnl, trade_count, created_at, config, report
		 FROM runs WHERE id = ?`, id)
	err := row.Scan(&detail.ID, &detail.Name, &detail.Symbol, &detail.Strategy, &detail.FinalEquity,
		&detail.PnL, &detail.TradeCount, &created, &configJSON, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunDetail{}, fmt.Errorf("store: 查询回测记录失败: %w", err)
	}
	if detail.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return RunDetail{}, fmt.Errorf("store: 解析创建时间失败: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &detail.Config); err != nil {
		return RunDetail{}, fmt.Errorf("store: 解析配置失败: %w", err)
	}
	if err := json.Unmarshal([]byte(reportJSON), &detail.Report); err != nil {
		return RunDetail{}, fmt.Errorf("store: 解析报告失败: %w", err)
	}

	if detail.Ledger, err = a.loadFills(ctx, id); err != nil {
		return RunDetail{}, err
	}
	if detail.EquityCurve, err = a.loadCurve(ctx, id); err != nil {
		return RunDetail{}, err
	}
	detail.Report.EquityCurve = detail.EquityCurve
	return detail, nil
}

func (a *Archive) loadFills(ctx context.Context, id string) ([]backtest.Fill, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT bar_index, ts, side, quantity, requested_price, price, slippage, commission,
		 closed_quantity, realized_pnl, forced FROM fills WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("store: 查询成交失败: %w", err)
	}
	defer rows.Close()

	var fills []backtest.Fill
	for rows.Next() {
		var (
			f    backtest.Fill
			ts   string
			side string
		)
		if err := rows.Scan(&f.BarIndex, &ts, &side, &f.Quantity, &f.RequestedPrice, &f.Price, &f.Slippage,
			&f.Commission, &f.ClosedQuantity, &f.RealizedPnL, &f.Forced); err != nil {
			return nil, fmt.Errorf("store: 解析成交失败: %w", err)
		}
		if f.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("store: 解析成交时间失败: %w", err)
		}
		f.Side = cost.Side(side)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取成交失败: %w", err)
	}
	return fills, nil
}

func (a *Archive) loadCurve(ctx context.Context, id string) ([]backtest.EquityPoint, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT bar_index, ts, pnl, equity FROM equity_points WHERE run_id = ? ORDER BY bar_index`, id)
	if err != nil {
		return nil, fmt.Errorf("store: 查询权益曲线失败: %w", err)
	}
	defer rows.Close()

	var curve []backtest.EquityPoint
	for rows.Next() {
		var (
			p  backtest.EquityPoint
			ts string
		)
		if err := rows.Scan(&p.BarIndex, &ts, &p.PnL, &p.Equity); err != nil {
			return nil, fmt.Errorf("store: 解析权益点失败: %w", err)
		}
		if p.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("store: 解析权益点时间失败: %w", err)
		}
		curve = append(curve, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取权益曲线失败: %w", err)
	}
	return curve, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (RunSummary, error) {
	var (
		s       RunSummary
		created string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Symbol, &s.Strategy, &s.FinalEquity, &s.PnL, &s.TradeCount, &created); err != nil {
		return RunSummary{}, fmt.Errorf("store: 解析回测记录失败: %w", err)
	}
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return RunSummary{}, fmt.Errorf("store: 解析创建时间失败: %w", err)
	}
	s.CreatedAt = ts
	return s, nil
}
