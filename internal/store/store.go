// Package store provides SQLite persistence for topicstream runs.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Run is one (model, threshold) clustering of a dataset and its scores.
type Run struct {
	ID         string
	Dataset    string
	Model      string
	Threshold  float64
	Window     int
	BatchSize  int
	Params     map[string]string
	Items      int
	Clusters   int
	P, R, F1   float64
	McMinn     *[3]float64 // precision, recall, F1; nil when not scored
	AMI, ARI   float64
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Open creates a Store at dbPath, creating tables if needed. ":memory:"
// opens a private in-memory database; file databases use WAL.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// one shared-cache connection so every query sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		model TEXT NOT NULL,
		threshold REAL NOT NULL,
		window_size INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		params TEXT,
		items INTEGER NOT NULL,
		clusters INTEGER NOT NULL,
		p REAL, r REAL, f1 REAL,
		mcp REAL, mcr REAL, mcf1 REAL,
		ami REAL, ari REAL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS assignments (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		cluster INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		item_id TEXT NOT NULL,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (model, item_id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRun inserts or replaces a run.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var mcp, mcr, mcf1 sql.NullFloat64
	if r.McMinn != nil {
		mcp = sql.NullFloat64{Float64: r.McMinn[0], Valid: true}
		mcr = sql.NullFloat64{Float64: r.McMinn[1], Valid: true}
		mcf1 = sql.NullFloat64{Float64: r.McMinn[2], Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, dataset, model, threshold, window_size, batch_size, params,
			items, clusters, p, r, f1, mcp, mcr, mcf1, ami, ari,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Dataset, r.Model, r.Threshold, r.Window, r.BatchSize, string(params),
		r.Items, r.Clusters, r.P, r.R, r.F1, mcp, mcr, mcf1, r.AMI, r.ARI,
		r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset, model, threshold, window_size, batch_size, params,
			items, clusters, p, r, f1, mcp, mcr, mcf1, ami, ari,
			started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var params sql.NullString
		var mcp, mcr, mcf1 sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Model, &r.Threshold, &r.Window, &r.BatchSize, &params,
			&r.Items, &r.Clusters, &r.P, &r.R, &r.F1, &mcp, &mcr, &mcf1, &r.AMI, &r.ARI,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if params.Valid && params.String != "" && params.String != "null" {
			if err := json.Unmarshal([]byte(params.String), &r.Params); err != nil {
				return nil, fmt.Errorf("decode params of run %s: %w", r.ID, err)
			}
		}
		if mcp.Valid {
			r.McMinn = &[3]float64{mcp.Float64, mcr.Float64, mcf1.Float64}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveAssignments stores the cluster of every item of a run, in order.
func (s *Store) SaveAssignments(ctx context.Context, runID string, itemIDs []string, clusters []int) error {
	if len(itemIDs) != len(clusters) {
		return fmt.Errorf("save assignments: %d items for %d clusters", len(itemIDs), len(clusters))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO assignments (run_id, position, item_id, cluster)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range itemIDs {
		if _, err := stmt.ExecContext(ctx, runID, i, id, clusters[i]); err != nil {
			return fmt.Errorf("save assignment %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Assignments returns the item ids and clusters of a run in stream order.
func (s *Store) Assignments(ctx context.Context, runID string) ([]string, []int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, cluster FROM assignments WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var ids []string
	var clusters []int
	for rows.Next() {
		var id string
		var c int
		if err := rows.Scan(&id, &c); err != nil {
			return nil, nil, fmt.Errorf("scan assignment: %w", err)
		}
		ids = append(ids, id)
		clusters = append(clusters, c)
	}
	return ids, clusters, rows.Err()
}

// SaveEmbeddings caches dense embeddings for (model, item id).
func (s *Store) SaveEmbeddings(ctx context.Context, model string, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("save embeddings: %d ids for %d vectors", len(ids), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings (model, item_id, dims, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, model, id, len(vectors[i]), encodeEmbedding(vectors[i]), now); err != nil {
			return fmt.Errorf("save embedding %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Embeddings returns the cached embeddings of model for ids. Missing ids
// are absent from the map.
func (s *Store) Embeddings(ctx context.Context, model string, ids []string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float32)
	// sqlite caps host parameters, so look ids up in slices
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		part := ids[start:min(start+chunk, len(ids))]
		args := make([]any, 0, len(part)+1)
		args = append(args, model)
		marks := make([]byte, 0, 2*len(part))
		for i, id := range part {
			if i > 0 {
				marks = append(marks, ',')
			}
			marks = append(marks, '?')
			args = append(args, id)
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT item_id, vector FROM embeddings WHERE model = ? AND item_id IN (`+string(marks)+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("query embeddings: %w", err)
		}
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan embedding: %w", err)
			}
			out[id] = decodeEmbedding(blob)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// encodeEmbedding packs a vector as little-endian float32s.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
