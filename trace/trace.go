// Package trace persists retired heap operators to SQLite for offline
// analysis.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/pipeline"
)

// ErrClosed is returned when recording after Close.
var ErrClosed = errors.New("trace recorder closed")

// DefaultBatchSize is the number of results per transaction.
const DefaultBatchSize = 4096

// Recorder receives every retired result.
type Recorder interface {
	Record(res pipeline.Result) error
	Close() error
}

// Row is one recorded result.
type Row struct {
	Seq       uint64
	Issued    uint64
	Partition int
	Op        string
	Pushed    cluster.Entry
	Popped    cluster.Entry
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
	seq          INTEGER PRIMARY KEY,
	issued       INTEGER NOT NULL,
	partition_id INTEGER NOT NULL,
	op           TEXT NOT NULL,
	push_exists  INTEGER NOT NULL,
	push_rank    INTEGER NOT NULL,
	push_meta    INTEGER NOT NULL,
	pop_exists   INTEGER NOT NULL,
	pop_rank     INTEGER NOT NULL,
	pop_meta     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stats (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
) WITHOUT ROWID;
`

// SQLiteRecorder batches results into an SQLite database.
type SQLiteRecorder struct {
	db        *sql.DB
	tx        *sql.Tx
	stmt      *sql.Stmt
	batchSize int
	inBatch   int
	closed    bool
}

// NewSQLiteRecorder opens (or creates) the database at path.
func NewSQLiteRecorder(path string, batchSize int) (*SQLiteRecorder, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = OFF",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trace schema: %w", err)
	}

	return &SQLiteRecorder{db: db, batchSize: batchSize}, nil
}

func (r *SQLiteRecorder) begin() error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO results
		(seq, issued, partition_id, op, push_exists, push_rank, push_meta, pop_exists, pop_rank, pop_meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	r.tx = tx
	r.stmt = stmt
	r.inBatch = 0
	return nil
}

func (r *SQLiteRecorder) commit() error {
	if r.tx == nil {
		return nil
	}
	r.stmt.Close()
	err := r.tx.Commit()
	r.tx = nil
	r.stmt = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (r *SQLiteRecorder) Record(res pipeline.Result) error {
	if r.closed {
		return ErrClosed
	}
	if r.tx == nil {
		if err := r.begin(); err != nil {
			return err
		}
	}

	push := res.Op.Push
	// Ranks and metadata are stored as their int64 bit pattern.
	_, err := r.stmt.Exec(
		int64(res.Seq), int64(res.Issued), res.Partition, opName(res.Op),
		push.Exists, int64(push.Rank), int64(push.Meta),
		res.Entry.Exists, int64(res.Entry.Rank), int64(res.Entry.Meta),
	)
	if err != nil {
		return fmt.Errorf("failed to record seq %d: %w", res.Seq, err)
	}

	r.inBatch++
	if r.inBatch >= r.batchSize {
		return r.commit()
	}
	return nil
}

// RecordStats stores run-level counters by name.
func (r *SQLiteRecorder) RecordStats(stats pipeline.Statistics) error {
	if r.closed {
		return ErrClosed
	}
	if err := r.commit(); err != nil {
		return err
	}

	values := map[string]uint64{
		"cycles":     stats.Cycles,
		"issued":     stats.Issued,
		"retired":    stats.Retired,
		"bubbles":    stats.Bubbles,
		"rejected":   stats.Rejected,
		"pushes":     stats.Pushes,
		"pops":       stats.Pops,
		"replaces":   stats.Replaces,
		"empty_pops": stats.EmptyPops,
		"forwards":   stats.Forwards,
		"allocs":     stats.Allocs,
		"frees":      stats.Frees,
	}
	for name, v := range values {
		if _, err := r.db.Exec(`INSERT OR REPLACE INTO run_stats (name, value) VALUES (?, ?)`, name, int64(v)); err != nil {
			return fmt.Errorf("failed to record stat %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes the pending batch and closes the database.
func (r *SQLiteRecorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.commit()
	if cerr := r.db.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close trace database: %w", cerr)
	}
	return err
}

// Load reads every recorded result from the database at path, in sequence
// order.
func Load(path string) ([]Row, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT seq, issued, partition_id, op, push_exists, push_rank, push_meta, pop_exists, pop_rank, pop_meta
		FROM results ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row                   Row
			seq, issued           int64
			pushRank, pushMeta    int64
			popRank, popMeta      int64
			pushExists, popExists bool
		)
		if err := rows.Scan(&seq, &issued, &row.Partition, &row.Op,
			&pushExists, &pushRank, &pushMeta, &popExists, &popRank, &popMeta); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		row.Seq = uint64(seq)
		row.Issued = uint64(issued)
		row.Pushed = entry(pushExists, pushRank, pushMeta)
		row.Popped = entry(popExists, popRank, popMeta)
		out = append(out, row)
	}
	return out, rows.Err()
}

// LoadStats reads the run-level counters from the database at path.
func LoadStats(path string) (map[string]uint64, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name, value FROM run_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query run stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan run stat: %w", err)
		}
		out[name] = uint64(value)
	}
	return out, rows.Err()
}

// openReadOnly opens an existing trace database without creating one.
func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	return db, nil
}

func entry(exists bool, rank, meta int64) cluster.Entry {
	if !exists {
		return cluster.Empty()
	}
	return cluster.NewEntry(uint64(meta), cluster.Rank(rank))
}

func opName(op cluster.Operator) string {
	switch {
	case op.IsNop():
		return "nop"
	case op.IsPurePush():
		return "push"
	case op.IsPurePop():
		return "pop"
	default:
		return "replace"
	}
}
