// Package sqlite provides the embedded relational task repository.
// Records live in a normalized schema (parent task row plus positional child
// rows) inside a single database file, audio clips as raw sample blobs.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.TaskRepository = (*Store)(nil)
	_ driven.MetadataStore  = (*Store)(nil)
)

// taskColumns is the select list shared by every task query.
const taskColumns = `id, display_id, page_number, grade, subject, sub_subject, task_title,
	task_description_de, task_description_vi, final_solution_de, final_solution_vi,
	learning_goal_de, explanation_de, summary_de, file_fingerprint, timestamp,
	image_preview, is_test_data`

// Store is the SQLite-backed task repository.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a SQLite store rooted at the given data directory.
// If dataDir is empty, defaults to ~/.lernwelt/data. The database is not
// opened until Init.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".lernwelt", "data")
	}

	return &Store{path: filepath.Join(dataDir, "library.db")}, nil
}

// Init opens or creates the database and applies pending migrations.
// It is idempotent. Open failures are reported as domain.ErrStorageUnavailable
// so the factory can fall back to a less capable backend.
func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("%w: creating data directory: %w", domain.ErrStorageUnavailable, err)
	}

	// Pragmas go in the DSN so the driver applies them to every pooled
	// connection. Cascade deletes depend on foreign_keys being on for the
	// connection that runs the DELETE, whichever one that is.
	db, err := sql.Open("sqlite",
		s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return fmt.Errorf("%w: opening database: %w", domain.ErrStorageUnavailable, err)
	}

	if err := migrate(ctx, db, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("%w: running migrations: %w", domain.ErrStorageUnavailable, err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending .up.sql migrations in version order.
func migrate(ctx context.Context, db *sql.DB, fsys embed.FS) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// GetAll returns all tasks sorted by timestamp descending,
// insertion order (rowid) breaking ties.
func (s *Store) GetAll(ctx context.Context) ([]domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY timestamp DESC, rowid ASC`)
}

// GetByID retrieves a task by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &tasks[0], nil
}

// Save inserts or replaces a task and all of its child rows as one
// transaction. Child rows are deleted and re-inserted positionally; position
// is the array index and reconstructs order on read.
func (s *Store) Save(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		return domain.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if task.FileFingerprint != "" {
		var holder string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM tasks WHERE file_fingerprint = ? AND id != ?`,
			task.FileFingerprint, task.ID).Scan(&holder)
		switch {
		case err == nil:
			return fmt.Errorf("saving task %s: fingerprint held by %s: %w",
				task.ID, holder, domain.ErrDuplicateFingerprint)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking fingerprint: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, display_id, page_number, grade, subject, sub_subject,
			task_title, task_description_de, task_description_vi,
			final_solution_de, final_solution_vi,
			learning_goal_de, explanation_de, summary_de,
			file_fingerprint, timestamp, image_preview, is_test_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_id = excluded.display_id,
			page_number = excluded.page_number,
			grade = excluded.grade,
			subject = excluded.subject,
			sub_subject = excluded.sub_subject,
			task_title = excluded.task_title,
			task_description_de = excluded.task_description_de,
			task_description_vi = excluded.task_description_vi,
			final_solution_de = excluded.final_solution_de,
			final_solution_vi = excluded.final_solution_vi,
			learning_goal_de = excluded.learning_goal_de,
			explanation_de = excluded.explanation_de,
			summary_de = excluded.summary_de,
			file_fingerprint = excluded.file_fingerprint,
			timestamp = excluded.timestamp,
			image_preview = excluded.image_preview,
			is_test_data = excluded.is_test_data
	`, task.ID, nullString(task.DisplayID), task.PageNumber, task.Grade, task.Subject,
		nullString(task.SubSubject), task.TaskTitle,
		nullString(task.TaskDescriptionDE), nullString(task.TaskDescriptionVI),
		nullString(task.FinalSolutionDE), nullString(task.FinalSolutionVI),
		nullString(task.TeacherSection.LearningGoalDE),
		nullString(task.TeacherSection.ExplanationDE),
		nullString(task.TeacherSection.SummaryDE),
		nullString(task.FileFingerprint), task.Timestamp,
		nullString(task.ImagePreview), boolToInt(task.IsTestData))
	if err != nil {
		return fmt.Errorf("saving task: %w", err)
	}

	for _, table := range []string{"task_steps", "task_solution_rows", "teacher_student_steps"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE task_id = ?", task.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i, step := range task.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_steps (task_id, position, title_de, title_vi, description_de, description_vi)
			VALUES (?, ?, ?, ?, ?, ?)`,
			task.ID, i, step.TitleDE, step.TitleVI, step.DescriptionDE, step.DescriptionVI); err != nil {
			return fmt.Errorf("saving step %d: %w", i, err)
		}
	}

	for i, row := range task.SolutionTable {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_solution_rows (task_id, position, task_number, label_de, label_vi, value_de, value_vi)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			task.ID, i, row.TaskNumber, row.LabelDE, row.LabelVI, row.ValueDE, row.ValueVI); err != nil {
			return fmt.Errorf("saving solution row %d: %w", i, err)
		}
	}

	for i, text := range task.TeacherSection.StudentStepsDE {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO teacher_student_steps (task_id, position, step_text)
			VALUES (?, ?, ?)`, task.ID, i, text); err != nil {
			return fmt.Errorf("saving teacher step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SaveBatch applies Save per task. No atomicity across the batch.
func (s *Store) SaveBatch(ctx context.Context, tasks []domain.Task) error {
	for i := range tasks {
		if err := s.Save(ctx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the task; child rows and audio go with it via cascade.
// Missing IDs are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}

// ClearAll wipes all tasks (or only test data) and their audio.
func (s *Store) ClearAll(ctx context.Context, onlyTestData bool) error {
	query := "DELETE FROM tasks"
	if onlyTestData {
		query += " WHERE is_test_data = 1"
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clearing tasks: %w", err)
	}
	return nil
}

// FindByFingerprint returns the task holding the fingerprint.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.Task, error) {
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE file_fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &tasks[0], nil
}

// Exists reports whether any task holds the fingerprint.
// Backed by the unique index on file_fingerprint.
func (s *Store) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE file_fingerprint = ?", fingerprint).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return count > 0, nil
}

// FilterByHierarchy returns matching tasks, newest-first.
func (s *Store) FilterByHierarchy(ctx context.Context, opts domain.FilterOptions) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if opts.Grade != "" {
		query += ` AND grade = ?`
		args = append(args, opts.Grade)
	}
	if opts.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, opts.Subject)
	}
	if opts.SubSubject != "" {
		query += ` AND sub_subject = ?`
		args = append(args, opts.SubSubject)
	}
	query += ` ORDER BY timestamp DESC, rowid ASC`

	return s.queryTasks(ctx, query, args...)
}

// UniqueGrades returns the distinct grades, sorted.
func (s *Store) UniqueGrades(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "SELECT DISTINCT grade FROM tasks ORDER BY grade")
}

// UniqueSubjects returns the distinct subjects, optionally scoped to a grade.
func (s *Store) UniqueSubjects(ctx context.Context, grade string) ([]string, error) {
	if grade == "" {
		return s.queryStrings(ctx, "SELECT DISTINCT subject FROM tasks ORDER BY subject")
	}
	return s.queryStrings(ctx,
		"SELECT DISTINCT subject FROM tasks WHERE grade = ? ORDER BY subject", grade)
}

// UniqueSubSubjects returns the distinct sub-subjects within grade+subject.
func (s *Store) UniqueSubSubjects(ctx context.Context, grade, subject string) ([]string, error) {
	query := "SELECT DISTINCT sub_subject FROM tasks WHERE sub_subject IS NOT NULL"
	var args []any
	if grade != "" {
		query += " AND grade = ?"
		args = append(args, grade)
	}
	if subject != "" {
		query += " AND subject = ?"
		args = append(args, subject)
	}
	query += " ORDER BY sub_subject"
	return s.queryStrings(ctx, query, args...)
}

// SaveAudio stores the clip's samples as a little-endian float32 blob.
func (s *Store) SaveAudio(ctx context.Context, key string, clip *domain.AudioClip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_clips (task_id, samples) VALUES (?, ?)
		ON CONFLICT(task_id) DO UPDATE SET samples = excluded.samples
	`, key, float32SliceToBytes(clip.Samples))
	if err != nil {
		return fmt.Errorf("saving audio: %w", err)
	}
	return nil
}

// GetAudio retrieves the clip for a task.
func (s *Store) GetAudio(ctx context.Context, key string) (*domain.AudioClip, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT samples FROM audio_clips WHERE task_id = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading audio: %w", err)
	}
	return domain.NewClip(bytesToFloat32Slice(blob)), nil
}

// DeleteAudio removes the clip for a task. Missing keys are a no-op.
func (s *Store) DeleteAudio(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM audio_clips WHERE task_id = ?", key); err != nil {
		return fmt.Errorf("deleting audio: %w", err)
	}
	return nil
}

// GetMeta returns a metadata value.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM app_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading metadata: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// queryTasks runs a parent-row query and hydrates child rows per task.
func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	for i := range tasks {
		if err := s.hydrateChildren(ctx, &tasks[i]); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// scanTask scans the parent row columns.
func scanTask(rows *sql.Rows) (*domain.Task, error) {
	var task domain.Task
	var displayID, subSubject, descDE, descVI, finalDE, finalVI sql.NullString
	var learningGoal, explanation, summary, fingerprint, imagePreview sql.NullString
	var isTestData int

	if err := rows.Scan(&task.ID, &displayID, &task.PageNumber, &task.Grade,
		&task.Subject, &subSubject, &task.TaskTitle, &descDE, &descVI,
		&finalDE, &finalVI, &learningGoal, &explanation, &summary,
		&fingerprint, &task.Timestamp, &imagePreview, &isTestData); err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.DisplayID = displayID.String
	task.SubSubject = subSubject.String
	task.TaskDescriptionDE = descDE.String
	task.TaskDescriptionVI = descVI.String
	task.FinalSolutionDE = finalDE.String
	task.FinalSolutionVI = finalVI.String
	task.TeacherSection.LearningGoalDE = learningGoal.String
	task.TeacherSection.ExplanationDE = explanation.String
	task.TeacherSection.SummaryDE = summary.String
	task.FileFingerprint = fingerprint.String
	task.ImagePreview = imagePreview.String
	task.IsTestData = isTestData == 1

	return &task, nil
}

// hydrateChildren loads steps, solution rows and teacher steps in position order.
func (s *Store) hydrateChildren(ctx context.Context, task *domain.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title_de, title_vi, description_de, description_vi
		FROM task_steps WHERE task_id = ? ORDER BY position
	`, task.ID)
	if err != nil {
		return fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var step domain.Step
		if err := rows.Scan(&step.TitleDE, &step.TitleVI, &step.DescriptionDE, &step.DescriptionVI); err != nil {
			return fmt.Errorf("scanning step: %w", err)
		}
		task.Steps = append(task.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating steps: %w", err)
	}

	solRows, err := s.db.QueryContext(ctx, `
		SELECT task_number, label_de, label_vi, value_de, value_vi
		FROM task_solution_rows WHERE task_id = ? ORDER BY position
	`, task.ID)
	if err != nil {
		return fmt.Errorf("querying solution rows: %w", err)
	}
	defer solRows.Close()
	for solRows.Next() {
		var row domain.TableRow
		if err := solRows.Scan(&row.TaskNumber, &row.LabelDE, &row.LabelVI, &row.ValueDE, &row.ValueVI); err != nil {
			return fmt.Errorf("scanning solution row: %w", err)
		}
		task.SolutionTable = append(task.SolutionTable, row)
	}
	if err := solRows.Err(); err != nil {
		return fmt.Errorf("iterating solution rows: %w", err)
	}

	stepRows, err := s.db.QueryContext(ctx, `
		SELECT step_text FROM teacher_student_steps WHERE task_id = ? ORDER BY position
	`, task.ID)
	if err != nil {
		return fmt.Errorf("querying teacher steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var text string
		if err := stepRows.Scan(&text); err != nil {
			return fmt.Errorf("scanning teacher step: %w", err)
		}
		task.TeacherSection.StudentStepsDE = append(task.TeacherSection.StudentStepsDE, text)
	}
	if err := stepRows.Err(); err != nil {
		return fmt.Errorf("iterating teacher steps: %w", err)
	}

	return nil
}

// queryStrings runs a single-column query, dropping NULL/empty values.
func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying values: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var val sql.NullString
		if err := rows.Scan(&val); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		if val.String != "" {
			result = append(result, val.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating values: %w", err)
	}
	return result, nil
}

// nullString maps empty strings to NULL so the fingerprint unique index
// ignores tasks without one.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// float32SliceToBytes converts samples to a little-endian byte blob.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return []byte{}
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte blob back to samples.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
