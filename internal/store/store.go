// Package store archives bootstrap runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	spinar "github.com/cran/spINAR"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = errors.New("run not found")

// Interval is one archived CI row.
type Interval struct {
	Column   int     `json:"column"`
	Name     string  `json:"name"`
	ThetaHat float64 `json:"theta_hat"`
	Method   string  `json:"method"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	N         int    `json:"n"`
	B         int    `json:"b"`
	Order     int    `json:"order"`
	Setting   string `json:"setting"`
}

// Run is an archived bootstrap run.
type Run struct {
	RunSummary
	Options   spinar.BootstrapOptions `json:"options"`
	Invalid   []int                   `json:"invalid"`
	Intervals []Interval              `json:"intervals"`
}

// EnsureTables creates the archive schema if missing.
func EnsureTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inar_runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            n INTEGER NOT NULL,
            b INTEGER NOT NULL,
            model_order INTEGER NOT NULL,
            setting TEXT NOT NULL,
            options TEXT NOT NULL,
            invalid TEXT NOT NULL DEFAULT '[]',
            created_at TEXT DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS inar_intervals (
            run_id INTEGER NOT NULL REFERENCES inar_runs(id) ON DELETE CASCADE,
            col INTEGER NOT NULL,
            name TEXT NOT NULL,
            theta_hat REAL,
            method TEXT NOT NULL,
            lower REAL,
            upper REAL,
            PRIMARY KEY (run_id, col, method)
        );`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores the options and both interval tables of res and returns the new run id.
func SaveRun(ctx context.Context, db *sql.DB, res *spinar.BootstrapResult) (int64, error) {
	if res == nil || res.XStar == nil {
		return 0, fmt.Errorf("nothing to save")
	}
	n, B := res.XStar.Dims()

	opts, err := json.Marshal(res.Options)
	if err != nil {
		return 0, fmt.Errorf("encode options: %w", err)
	}
	invalid := res.Invalid
	if invalid == nil {
		invalid = []int{}
	}
	inv, err := json.Marshal(invalid)
	if err != nil {
		return 0, fmt.Errorf("encode invalid replicates: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx, `INSERT INTO inar_runs(n, b, model_order, setting, options, invalid, created_at)
        VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		n, B, res.Options.Order, res.Options.Setting.String(), string(opts), string(inv))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, row := range intervalsOf(res) {
		_, err := tx.ExecContext(ctx, `INSERT INTO inar_intervals(run_id, col, name, theta_hat, method, lower, upper)
            VALUES(?, ?, ?, ?, ?, ?, ?)`,
			id, row.Column, row.Name, nullable(row.ThetaHat), row.Method, nullable(row.Lower), nullable(row.Upper))
		if err != nil {
			return 0, fmt.Errorf("insert interval %s/%s: %w", row.Name, row.Method, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetRun loads a run and its intervals.
func GetRun(ctx context.Context, db *sql.DB, id int64) (*Run, error) {
	var (
		run       Run
		opts, inv string
	)
	err := db.QueryRowContext(ctx, `SELECT id, created_at, n, b, model_order, setting, options, invalid
        FROM inar_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.CreatedAt, &run.N, &run.B, &run.Order, &run.Setting, &opts, &inv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(opts), &run.Options); err != nil {
		return nil, fmt.Errorf("decode options of run %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(inv), &run.Invalid); err != nil {
		return nil, fmt.Errorf("decode invalid replicates of run %d: %w", id, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT col, name, theta_hat, method, lower, upper
        FROM inar_intervals WHERE run_id = ? ORDER BY col, method DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			iv                  Interval
			theta, lower, upper sql.NullFloat64
		)
		if err := rows.Scan(&iv.Column, &iv.Name, &theta, &iv.Method, &lower, &upper); err != nil {
			return nil, err
		}
		iv.ThetaHat, iv.Lower, iv.Upper = fromNullable(theta), fromNullable(lower), fromNullable(upper)
		run.Intervals = append(run.Intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT id, created_at, n, b, model_order, setting
        FROM inar_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.N, &s.B, &s.Order, &s.Setting); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// intervalsOf flattens both CI tables, percentile first.
func intervalsOf(res *spinar.BootstrapResult) []Interval {
	var out []Interval
	for j, col := range res.Columns {
		name := fmt.Sprintf("par%d", col+1)
		if j < len(res.Names) {
			name = res.Names[j]
		}
		if res.CIPercentile != nil {
			out = append(out, Interval{
				Column: col, Name: name, ThetaHat: res.ThetaHat[j], Method: "percentile",
				Lower: res.CIPercentile.At(0, j), Upper: res.CIPercentile.At(1, j),
			})
		}
		if res.CIHall != nil {
			out = append(out, Interval{
				Column: col, Name: name, ThetaHat: res.ThetaHat[j], Method: "hall",
				Lower: res.CIHall.At(0, j), Upper: res.CIHall.At(1, j),
			})
		}
	}
	return out
}

// SQLite turns NaN into NULL, so NaN is stored as NULL explicitly and read back as NaN.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
