package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/yourorg/promptlog/pkg/types"
)

const runColumns = `id,created_at,prompt,folder,base_name,image_path,metadata_path,sampler,scheduler,steps,cfg,seed,checkpoint,model_type,model_hash,lora_count,vae,record`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			prompt TEXT NOT NULL,
			folder TEXT NOT NULL,
			base_name TEXT NOT NULL,
			image_path TEXT NOT NULL,
			metadata_path TEXT NOT NULL,
			sampler TEXT NOT NULL,
			scheduler TEXT NOT NULL,
			steps INTEGER NOT NULL,
			cfg REAL NOT NULL,
			seed INTEGER NOT NULL,
			checkpoint TEXT NOT NULL DEFAULT '',
			model_type TEXT NOT NULL DEFAULT '',
			model_hash TEXT NOT NULL DEFAULT '',
			lora_count INTEGER NOT NULL DEFAULT 0,
			vae TEXT NOT NULL DEFAULT '',
			record TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_model_hash ON runs(model_hash);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun inserts run, assigning a ULID and creation time when missing.
func (s *SQLiteStore) SaveRun(run *types.Run) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	_, err := s.db.Exec(`INSERT INTO runs(`+runColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.CreatedAt, run.Prompt, run.Folder, run.BaseName, run.ImagePath, run.MetadataPath,
		run.Sampler, run.Scheduler, run.Steps, run.CFG, run.Seed,
		run.Checkpoint, run.ModelType, run.ModelHash, run.LoraCount, run.VAE, run.Record)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(id string) (*types.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the newest runs first; limit <= 0 means all.
func (s *SQLiteStore) ListRuns(limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*types.Run, error) {
	var r types.Run
	if err := sc.Scan(&r.ID, &r.CreatedAt, &r.Prompt, &r.Folder, &r.BaseName, &r.ImagePath, &r.MetadataPath,
		&r.Sampler, &r.Scheduler, &r.Steps, &r.CFG, &r.Seed,
		&r.Checkpoint, &r.ModelType, &r.ModelHash, &r.LoraCount, &r.VAE, &r.Record); err != nil {
		return nil, err
	}
	return &r, nil
}
