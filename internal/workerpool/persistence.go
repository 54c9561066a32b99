package workerpool

import (
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	// lib/pq registers the "postgres" driver used by DatabaseStrategy.
	_ "github.com/lib/pq"
)

// PersistenceError wraps any I/O or database failure surfaced by a
// PersistenceStrategy, per spec §7.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// PersistenceStrategy is the abstract save/load/cleanup contract of
// spec §4.C. save replaces any prior image; load returns persisted order
// (or empty if no image exists); cleanup is idempotent.
type PersistenceStrategy interface {
	Save(ctx context.Context, tasks []SerializableTask) error
	Load(ctx context.Context) ([]SerializableTask, error)
	Cleanup(ctx context.Context) error
}

// NoopStrategy discards everything. pool.New uses it when no persistence
// strategy is supplied.
type NoopStrategy struct{}

func (NoopStrategy) Save(context.Context, []SerializableTask) error { return nil }
func (NoopStrategy) Load(context.Context) ([]SerializableTask, error) {
	return nil, nil
}
func (NoopStrategy) Cleanup(context.Context) error { return nil }

// FileStrategy persists the ordered sequence of SerializableTasks to a
// single opaque file, gob-encoded. The parent directory is created on
// demand. Cross-version compatibility of the encoded payload blobs is not
// guaranteed (spec §9).
type FileStrategy struct {
	Path string
}

func NewFileStrategy(path string) *FileStrategy {
	return &FileStrategy{Path: path}
}

// fileImage is the on-disk envelope; gob encoding the slice directly would
// work too, but wrapping it keeps room for a version field without
// breaking the format later.
type fileImage struct {
	Tasks []SerializableTask
}

func (f *FileStrategy) Save(ctx context.Context, tasks []SerializableTask) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return persistErr("file.save.mkdir", err)
	}

	// Write to a temp file and rename over the target so that either the
	// previous image or the new one is always readable, never a partial
	// write (spec §4.C crash-safety requirement).
	tmp := f.Path + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return persistErr("file.save.create", err)
	}

	enc := gob.NewEncoder(fh)
	if err := enc.Encode(fileImage{Tasks: tasks}); err != nil {
		fh.Close()
		os.Remove(tmp)
		return persistErr("file.save.encode", err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(tmp)
		return persistErr("file.save.close", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return persistErr("file.save.rename", err)
	}
	return nil
}

func (f *FileStrategy) Load(ctx context.Context) ([]SerializableTask, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, persistErr("file.load.open", err)
	}
	defer fh.Close()

	var img fileImage
	dec := gob.NewDecoder(fh)
	if err := dec.Decode(&img); err != nil {
		return nil, persistErr("file.load.decode", err)
	}
	return img.Tasks, nil
}

func (f *FileStrategy) Cleanup(ctx context.Context) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return persistErr("file.cleanup", err)
	}
	return nil
}

// DatabaseStrategy persists to a single `persistent_tasks` table, as laid
// out in spec §6. Save runs as a single transaction: DELETE all rows,
// batch INSERT, COMMIT; any failure rolls back so the prior image remains
// intact.
type DatabaseStrategy struct {
	DB *sql.DB
}

func NewDatabaseStrategy(db *sql.DB) *DatabaseStrategy {
	return &DatabaseStrategy{DB: db}
}

// EnsureSchema creates the persistent_tasks table if it does not exist.
// Callers run this once at startup; it is not invoked implicitly by
// Save/Load so that schema ownership stays explicit.
func (d *DatabaseStrategy) EnsureSchema(ctx context.Context) error {
	_, err := d.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS persistent_tasks (
			task_id TEXT PRIMARY KEY,
			submit_time BIGINT NOT NULL,
			priority INT NOT NULL,
			serialized_task BYTEA NOT NULL
		)`)
	return persistErr("database.ensure_schema", err)
}

func (d *DatabaseStrategy) Save(ctx context.Context, tasks []SerializableTask) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("database.save.begin", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM persistent_tasks`); err != nil {
		tx.Rollback()
		return persistErr("database.save.delete", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO persistent_tasks (task_id, submit_time, priority, serialized_task)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		tx.Rollback()
		return persistErr("database.save.prepare", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.TaskID, t.SubmitTimeMS, t.Priority, t.Blob); err != nil {
			tx.Rollback()
			return persistErr("database.save.insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("database.save.commit", err)
	}
	return nil
}

func (d *DatabaseStrategy) Load(ctx context.Context) ([]SerializableTask, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT task_id, submit_time, priority, serialized_task
		FROM persistent_tasks
		ORDER BY priority, submit_time`)
	if err != nil {
		return nil, persistErr("database.load.query", err)
	}
	defer rows.Close()

	var out []SerializableTask
	for rows.Next() {
		var t SerializableTask
		if err := rows.Scan(&t.TaskID, &t.SubmitTimeMS, &t.Priority, &t.Blob); err != nil {
			return nil, persistErr("database.load.scan", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("database.load.rows", err)
	}

	// Belt-and-suspenders: the ORDER BY above already produces this order,
	// re-sort defensively in case a caller swaps in a driver/DB that
	// ignores ORDER BY on this query shape.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].SubmitTimeMS < out[j].SubmitTimeMS
	})
	return out, nil
}

func (d *DatabaseStrategy) Cleanup(ctx context.Context) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM persistent_tasks`)
	return persistErr("database.cleanup", err)
}
