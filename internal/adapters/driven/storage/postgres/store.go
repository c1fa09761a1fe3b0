// Package postgres provides the remote relational task repository backed by
// PostgreSQL, with an optional Azure Blob media store for image previews and
// compressed audio. The logical schema is the same contract the embedded
// sqlite adapter implements.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

var (
	_ driven.TaskRepository = (*Store)(nil)
	_ driven.MetadataStore  = (*Store)(nil)
)

const taskColumns = `id, display_id, page_number, grade, subject, sub_subject, task_title,
	task_description_de, task_description_vi, final_solution_de, final_solution_vi,
	learning_goal_de, explanation_de, summary_de, file_fingerprint, timestamp,
	image_preview, is_test_data`

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	display_id TEXT,
	page_number INTEGER NOT NULL DEFAULT 0,
	grade TEXT NOT NULL,
	subject TEXT NOT NULL,
	sub_subject TEXT,
	task_title TEXT NOT NULL DEFAULT '',
	task_description_de TEXT,
	task_description_vi TEXT,
	final_solution_de TEXT,
	final_solution_vi TEXT,
	learning_goal_de TEXT,
	explanation_de TEXT,
	summary_de TEXT,
	file_fingerprint TEXT UNIQUE,
	timestamp BIGINT NOT NULL,
	image_preview TEXT,
	is_test_data BOOLEAN NOT NULL DEFAULT FALSE,
	insertion_seq BIGSERIAL
);

CREATE TABLE IF NOT EXISTS task_steps (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	title_de TEXT,
	title_vi TEXT,
	description_de TEXT,
	description_vi TEXT
);

CREATE TABLE IF NOT EXISTS task_solution_rows (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	task_number TEXT,
	label_de TEXT,
	label_vi TEXT,
	value_de TEXT,
	value_vi TEXT
);

CREATE TABLE IF NOT EXISTS teacher_student_steps (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	step_text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audio_clips (
	task_id TEXT PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
	payload BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS app_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_grade ON tasks(grade);
CREATE INDEX IF NOT EXISTS idx_tasks_subject ON tasks(subject);
CREATE INDEX IF NOT EXISTS idx_tasks_timestamp ON tasks(timestamp);

INSERT INTO app_metadata (key, value) VALUES ('schema_version', '1')
	ON CONFLICT (key) DO NOTHING;
`

// Store is the PostgreSQL-backed task repository. When a media store is
// configured, image previews and audio travel to blob storage instead of the
// relational tables.
type Store struct {
	db    *sql.DB
	dsn   string
	media driven.MediaStore
}

// NewStore creates a postgres store for the given DSN. media may be nil, in
// which case previews stay inline and audio is stored in the audio_clips
// table. The connection is not opened until Init.
func NewStore(dsn string, media driven.MediaStore) *Store {
	return &Store{dsn: dsn, media: media}
}

// Init connects and ensures the schema exists. It is idempotent. Connection
// failures are reported as domain.ErrStorageUnavailable so the factory can
// fall back to the embedded backend.
func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if s.dsn == "" {
		return fmt.Errorf("%w: no postgres connection string configured", domain.ErrStorageUnavailable)
	}

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("%w: opening connection: %w", domain.ErrStorageUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: pinging database: %w", domain.ErrStorageUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("%w: ensuring schema: %w", domain.ErrStorageUnavailable, err)
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

// GetAll returns all tasks, newest-first, insertion order breaking ties.
func (s *Store) GetAll(ctx context.Context) ([]domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY timestamp DESC, insertion_seq ASC`)
}

// GetByID retrieves a task by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &tasks[0], nil
}

// Save upserts the task and its child rows in one transaction. If a media
// store is configured, an inline data-URI preview is uploaded first and the
// blob URL stored in its place; upload failure degrades to the inline preview.
func (s *Store) Save(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		return domain.ErrInvalidInput
	}

	preview := task.ImagePreview
	if s.media != nil {
		if url, ok := s.uploadPreview(ctx, task.ID, preview); ok {
			preview = url
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, display_id, page_number, grade, subject, sub_subject,
			task_title, task_description_de, task_description_vi,
			final_solution_de, final_solution_vi,
			learning_goal_de, explanation_de, summary_de,
			file_fingerprint, timestamp, image_preview, is_test_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			display_id = EXCLUDED.display_id,
			page_number = EXCLUDED.page_number,
			grade = EXCLUDED.grade,
			subject = EXCLUDED.subject,
			sub_subject = EXCLUDED.sub_subject,
			task_title = EXCLUDED.task_title,
			task_description_de = EXCLUDED.task_description_de,
			task_description_vi = EXCLUDED.task_description_vi,
			final_solution_de = EXCLUDED.final_solution_de,
			final_solution_vi = EXCLUDED.final_solution_vi,
			learning_goal_de = EXCLUDED.learning_goal_de,
			explanation_de = EXCLUDED.explanation_de,
			summary_de = EXCLUDED.summary_de,
			file_fingerprint = EXCLUDED.file_fingerprint,
			timestamp = EXCLUDED.timestamp,
			image_preview = EXCLUDED.image_preview,
			is_test_data = EXCLUDED.is_test_data
	`, task.ID, nullString(task.DisplayID), task.PageNumber, task.Grade, task.Subject,
		nullString(task.SubSubject), task.TaskTitle,
		nullString(task.TaskDescriptionDE), nullString(task.TaskDescriptionVI),
		nullString(task.FinalSolutionDE), nullString(task.FinalSolutionVI),
		nullString(task.TeacherSection.LearningGoalDE),
		nullString(task.TeacherSection.ExplanationDE),
		nullString(task.TeacherSection.SummaryDE),
		nullString(task.FileFingerprint), task.Timestamp,
		nullString(preview), task.IsTestData)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("saving task %s: %w", task.ID, domain.ErrDuplicateFingerprint)
		}
		return fmt.Errorf("saving task: %w", err)
	}

	for _, table := range []string{"task_steps", "task_solution_rows", "teacher_student_steps"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE task_id = $1", task.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i, step := range task.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_steps (task_id, position, title_de, title_vi, description_de, description_vi)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			task.ID, i, step.TitleDE, step.TitleVI, step.DescriptionDE, step.DescriptionVI); err != nil {
			return fmt.Errorf("saving step %d: %w", i, err)
		}
	}

	for i, row := range task.SolutionTable {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_solution_rows (task_id, position, task_number, label_de, label_vi, value_de, value_vi)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			task.ID, i, row.TaskNumber, row.LabelDE, row.LabelVI, row.ValueDE, row.ValueVI); err != nil {
			return fmt.Errorf("saving solution row %d: %w", i, err)
		}
	}

	for i, text := range task.TeacherSection.StudentStepsDE {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO teacher_student_steps (task_id, position, step_text)
			VALUES ($1, $2, $3)`, task.ID, i, text); err != nil {
			return fmt.Errorf("saving teacher step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SaveBatch applies Save per task.
func (s *Store) SaveBatch(ctx context.Context, tasks []domain.Task) error {
	for i := range tasks {
		if err := s.Save(ctx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the task; child rows cascade. Remote media is removed best
// effort, a stale blob is not worth failing the delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if s.media != nil {
		if err := s.media.Remove(ctx, audioBlobName(id)); err != nil {
			logger.Warn("removing audio blob for %s: %v", id, err)
		}
	}
	return nil
}

// ClearAll wipes all tasks (or only test data) and their audio. Relational
// audio rows cascade; blob-stored clips are removed best effort per id.
func (s *Store) ClearAll(ctx context.Context, onlyTestData bool) error {
	query := "DELETE FROM tasks"
	if onlyTestData {
		query += " WHERE is_test_data = TRUE"
	}

	if s.media == nil {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("clearing tasks: %w", err)
		}
		return nil
	}

	ids, err := s.queryStrings(ctx, query+" RETURNING id")
	if err != nil {
		return fmt.Errorf("clearing tasks: %w", err)
	}
	s.removeAudioBlobs(ctx, ids)
	return nil
}

// removeAudioBlobs deletes the blob-stored clips for the given task ids.
// Failures are logged only, a stale blob is not worth failing the wipe.
func (s *Store) removeAudioBlobs(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.media.Remove(ctx, audioBlobName(id)); err != nil {
			logger.Warn("removing audio blob for %s: %v", id, err)
		}
	}
}

// FindByFingerprint returns the task holding the fingerprint.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.Task, error) {
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE file_fingerprint = $1`, fingerprint)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &tasks[0], nil
}

// Exists reports whether any task holds the fingerprint.
func (s *Store) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE file_fingerprint = $1", fingerprint).Scan(&count)
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
		args = append(args, opts.Grade)
		query += fmt.Sprintf(" AND grade = $%d", len(args))
	}
	if opts.Subject != "" {
		args = append(args, opts.Subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if opts.SubSubject != "" {
		args = append(args, opts.SubSubject)
		query += fmt.Sprintf(" AND sub_subject = $%d", len(args))
	}
	query += " ORDER BY timestamp DESC, insertion_seq ASC"

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
		"SELECT DISTINCT subject FROM tasks WHERE grade = $1 ORDER BY subject", grade)
}

// UniqueSubSubjects returns the distinct sub-subjects within grade+subject.
func (s *Store) UniqueSubSubjects(ctx context.Context, grade, subject string) ([]string, error) {
	query := "SELECT DISTINCT sub_subject FROM tasks WHERE sub_subject IS NOT NULL"
	var args []any
	if grade != "" {
		args = append(args, grade)
		query += fmt.Sprintf(" AND grade = $%d", len(args))
	}
	if subject != "" {
		args = append(args, subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	query += " ORDER BY sub_subject"
	return s.queryStrings(ctx, query, args...)
}

// SaveAudio persists the clip as zstd-compressed 16-bit WAV, uploaded to blob
// storage when configured, otherwise kept in the audio_clips table.
func (s *Store) SaveAudio(ctx context.Context, key string, clip *domain.AudioClip) error {
	payload := compressClip(clip)

	if s.media != nil {
		if _, err := s.media.Upload(ctx, audioBlobName(key), payload, "application/zstd"); err != nil {
			return fmt.Errorf("uploading audio for %s: %w", key, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_clips (task_id, payload) VALUES ($1, $2)
		ON CONFLICT (task_id) DO UPDATE SET payload = EXCLUDED.payload
	`, key, payload)
	if err != nil {
		return fmt.Errorf("saving audio: %w", err)
	}
	return nil
}

// GetAudio retrieves and decodes the clip for a task.
func (s *Store) GetAudio(ctx context.Context, key string) (*domain.AudioClip, error) {
	var payload []byte
	if s.media != nil {
		data, err := s.media.Download(ctx, audioBlobName(key))
		if err != nil {
			return nil, err
		}
		payload = data
	} else {
		err := s.db.QueryRowContext(ctx,
			"SELECT payload FROM audio_clips WHERE task_id = $1", key).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("loading audio: %w", err)
		}
	}
	return decompressClip(payload)
}

// DeleteAudio removes the clip for a task. Missing keys are a no-op.
func (s *Store) DeleteAudio(ctx context.Context, key string) error {
	if s.media != nil {
		return s.media.Remove(ctx, audioBlobName(key))
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM audio_clips WHERE task_id = $1", key); err != nil {
		return fmt.Errorf("deleting audio: %w", err)
	}
	return nil
}

// GetMeta returns a metadata value.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM app_metadata WHERE key = $1", key).Scan(&value)
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
		INSERT INTO app_metadata (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// uploadPreview moves an inline data-URI preview to blob storage. Returns the
// blob URL and true on success; false keeps the inline preview.
func (s *Store) uploadPreview(ctx context.Context, taskID, preview string) (string, bool) {
	contentType, data, ok := parseDataURI(preview)
	if !ok {
		return "", false
	}
	name := fmt.Sprintf("previews/%s.%s", taskID, extForContentType(contentType))
	url, err := s.media.Upload(ctx, name, data, contentType)
	if err != nil {
		logger.Warn("uploading preview for %s, keeping inline: %v", taskID, err)
		return "", false
	}
	return url, true
}

func audioBlobName(key string) string {
	return "audio/" + key + ".wav.zst"
}

// isUniqueViolation reports a postgres unique constraint error (code 23505).
// The only unique constraint besides the primary key is file_fingerprint, and
// ID conflicts are absorbed by the upsert.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

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

func scanTask(rows *sql.Rows) (*domain.Task, error) {
	var task domain.Task
	var displayID, subSubject, descDE, descVI, finalDE, finalVI sql.NullString
	var learningGoal, explanation, summary, fingerprint, imagePreview sql.NullString

	if err := rows.Scan(&task.ID, &displayID, &task.PageNumber, &task.Grade,
		&task.Subject, &subSubject, &task.TaskTitle, &descDE, &descVI,
		&finalDE, &finalVI, &learningGoal, &explanation, &summary,
		&fingerprint, &task.Timestamp, &imagePreview, &task.IsTestData); err != nil {
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

	return &task, nil
}

func (s *Store) hydrateChildren(ctx context.Context, task *domain.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title_de, title_vi, description_de, description_vi
		FROM task_steps WHERE task_id = $1 ORDER BY position
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
		FROM task_solution_rows WHERE task_id = $1 ORDER BY position
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
		SELECT step_text FROM teacher_student_steps WHERE task_id = $1 ORDER BY position
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

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
