// Package catalog keeps a sqlite index of finalized recordings, with their
// per-frame poses and issued actions, so runs can be queried after the files
// have been moved or deleted.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/simcam/internal/capture"
	"github.com/banshee-data/simcam/internal/monitoring"
	"github.com/banshee-data/simcam/internal/sim"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a recording id is not in the catalog.
var ErrNotFound = errors.New("recording not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Store is the recording catalog.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the catalog at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MigrateUp runs all pending migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state, or
// 0, false when no migration has run.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Recording is one catalogued artifact.
type Recording struct {
	ID               uuid.UUID `json:"id"`
	Subject          string    `json:"subject"`
	VideoPath        string    `json:"video_path"`
	PosePath         string    `json:"pose_path"`
	ActionPath       string    `json:"action_path"`
	PlotPath         string    `json:"plot_path,omitempty"`
	Frames           int       `json:"frames"`
	Actions          int       `json:"actions"`
	StartedAt        time.Time `json:"started_at"`
	DurationSec      float64   `json:"duration_s"`
	NominalFPS       float64   `json:"nominal_fps"`
	AchievedFPS      float64   `json:"achieved_fps"`
	OutputFPS        float64   `json:"output_fps"`
	PreserveRealTime bool      `json:"preserve_real_time"`
	Truncated        bool      `json:"truncated"`
	IntervalMeanSec  float64   `json:"interval_mean_s"`
	IntervalStdDev   float64   `json:"interval_stddev_s"`
	JitterSec        float64   `json:"jitter_s"`
	CadenceStable    bool      `json:"cadence_stable"`
}

// PoseRow is one catalogued camera pose.
type PoseRow struct {
	Seq        int         `json:"seq"`
	Position   sim.Vec3    `json:"position"`
	Rotation   sim.Rotator `json:"rotation"`
	CapturedAt time.Time   `json:"captured_at"`
}

// RecordArtifact stores a finalized recording in one transaction. It
// implements capture.Sink.
func (s *Store) RecordArtifact(ctx context.Context, art *capture.Artifact, samples []capture.Sample, actions []capture.Action) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var plotPath sql.NullString
	if art.PlotPath != "" {
		plotPath = sql.NullString{String: art.PlotPath, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recordings (
			recording_id, subject, video_path, pose_path, action_path, plot_path,
			frames, actions, started_at, duration_s,
			nominal_fps, achieved_fps, output_fps, preserve_real_time, truncated,
			interval_mean_s, interval_stddev_s, jitter_s, cadence_stable
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		art.ID.String(), art.Subject, art.VideoPath, art.PosePath, art.ActionPath, plotPath,
		art.Frames, art.Actions, art.StartedAt.UTC().Format(time.RFC3339Nano), art.Duration.Seconds(),
		art.NominalFPS, art.AchievedFPS, art.OutputFPS, art.PreserveRealTime, art.Truncated,
		art.Cadence.Mean, art.Cadence.StdDev, art.Cadence.Jitter, art.Cadence.IsStable,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}

	poseStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recording_poses (recording_id, seq, x, y, z, pitch, yaw, roll, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer poseStmt.Close()
	for _, smp := range samples {
		if _, err := poseStmt.ExecContext(ctx, art.ID.String(), smp.Seq,
			smp.Position.X, smp.Position.Y, smp.Position.Z,
			smp.Rotation.Pitch, smp.Rotation.Yaw, smp.Rotation.Roll,
			smp.CapturedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert pose %d: %w", smp.Seq, err)
		}
	}

	actionStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recording_actions (recording_id, seq, ordinal, kind, magnitude)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer actionStmt.Close()
	for i, a := range actions {
		var mag sql.NullFloat64
		if a.Kind.IsRotation() {
			mag = sql.NullFloat64{Float64: a.Magnitude, Valid: true}
		}
		if _, err := actionStmt.ExecContext(ctx, art.ID.String(), a.Seq, i, string(a.Kind), mag); err != nil {
			return fmt.Errorf("insert action %d: %w", i, err)
		}
	}

	return tx.Commit()
}

const recordingColumns = `
	recording_id, subject, video_path, pose_path, action_path, COALESCE(plot_path, ''),
	frames, actions, started_at, duration_s,
	nominal_fps, achieved_fps, output_fps, preserve_real_time, truncated,
	COALESCE(interval_mean_s, 0), COALESCE(interval_stddev_s, 0), COALESCE(jitter_s, 0), COALESCE(cadence_stable, 0)`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecording(row scanner) (Recording, error) {
	var (
		r         Recording
		id        string
		startedAt string
	)
	if err := row.Scan(
		&id, &r.Subject, &r.VideoPath, &r.PosePath, &r.ActionPath, &r.PlotPath,
		&r.Frames, &r.Actions, &startedAt, &r.DurationSec,
		&r.NominalFPS, &r.AchievedFPS, &r.OutputFPS, &r.PreserveRealTime, &r.Truncated,
		&r.IntervalMeanSec, &r.IntervalStdDev, &r.JitterSec, &r.CadenceStable,
	); err != nil {
		return Recording{}, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return Recording{}, fmt.Errorf("parse recording id %q: %w", id, err)
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Recording{}, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	return r, nil
}

// Recordings lists catalogued recordings, newest first. An empty subject
// lists all of them.
func (s *Store) Recordings(ctx context.Context, subject string) ([]Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings`
	var args []interface{}
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY started_at DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Recording returns one recording by id.
func (s *Store) Recording(ctx context.Context, id uuid.UUID) (Recording, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE recording_id = ?`, id.String())
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	return r, err
}

// Poses returns the pose rows of a recording in seq order.
func (s *Store) Poses(ctx context.Context, id uuid.UUID) ([]PoseRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, x, y, z, pitch, yaw, roll, captured_at
		FROM recording_poses WHERE recording_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PoseRow
	for rows.Next() {
		var (
			p  PoseRow
			at string
		)
		if err := rows.Scan(&p.Seq, &p.Position.X, &p.Position.Y, &p.Position.Z,
			&p.Rotation.Pitch, &p.Rotation.Yaw, &p.Rotation.Roll, &at); err != nil {
			return nil, err
		}
		if p.CapturedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse captured_at %q: %w", at, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Actions returns the actions of a recording in issue order.
func (s *Store) Actions(ctx context.Context, id uuid.UUID) ([]capture.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, COALESCE(magnitude, 0)
		FROM recording_actions WHERE recording_id = ? ORDER BY seq, ordinal`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []capture.Action
	for rows.Next() {
		var (
			a    capture.Action
			kind string
		)
		if err := rows.Scan(&a.Seq, &kind, &a.Magnitude); err != nil {
			return nil, err
		}
		a.Kind = sim.ActionKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes a recording and its rows. The files are left alone.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE recording_id = ?`, id.String())
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
