package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// setupTestStore creates an initialized store in a temporary directory.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "lernwelt-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Init(context.Background()))

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

func testTask(id, fingerprint string) domain.Task {
	return domain.Task{
		ID:              id,
		DisplayID:       "K2_MAT_1",
		PageNumber:      12,
		Grade:           "Klasse 2",
		Subject:         "Mathematik",
		SubSubject:      "Geometrie",
		TaskTitle:       "Formen erkennen",
		FileFingerprint: fingerprint,
		Timestamp:       time.Now().UnixMilli(),
		Steps: []domain.Step{
			{TitleDE: "Schritt 1", TitleVI: "Bước 1", DescriptionDE: "Schau dir die Formen an", DescriptionVI: "Nhìn các hình"},
			{TitleDE: "Schritt 2", TitleVI: "Bước 2", DescriptionDE: "Zähle die Ecken", DescriptionVI: "Đếm các góc"},
		},
		SolutionTable: []domain.TableRow{
			{TaskNumber: "1a", LabelDE: "Dreieck", LabelVI: "Tam giác", ValueDE: "3 Ecken", ValueVI: "3 góc"},
		},
		FinalSolutionDE: "Das Dreieck hat drei Ecken.",
		FinalSolutionVI: "Tam giác có ba góc.",
		TeacherSection: domain.TeacherSection{
			LearningGoalDE: "Grundformen unterscheiden",
			StudentStepsDE: []string{"Formen benennen", "Ecken zählen"},
			ExplanationDE:  "Wir beginnen mit den einfachen Formen.",
			SummaryDE:      "Formen erkannt.",
		},
	}
}

// ==================== Initialization Tests ====================

func TestInit_CreatesDatabase(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "lernwelt-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	defer store.Close()

	assert.Equal(t, filepath.Join(tempDir, "library.db"), store.Path())
	assert.FileExists(t, store.Path())
	assert.NoError(t, store.db.Ping())
}

func TestInit_Idempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Init(context.Background()))
}

func TestInit_ForeignKeysOnEveryConnection(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// Hold two pooled connections at once; both must enforce foreign keys
	// or cascade deletes depend on which connection runs them.
	first, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var enabled int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled)
	}
}

func TestInit_SeedsSchemaVersion(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	version, err := store.GetMeta(context.Background(), "schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

// ==================== Save and Retrieve Tests ====================

func TestSaveAndGetByID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "seite12.jpg-2048-1700000000000-image/jpeg")
	require.NoError(t, store.Save(ctx, &task))

	got, err := store.GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.TaskTitle, got.TaskTitle)
	assert.Equal(t, task.DisplayID, got.DisplayID)
	assert.Equal(t, task.FileFingerprint, got.FileFingerprint)
	assert.Equal(t, task.Steps, got.Steps)
	assert.Equal(t, task.SolutionTable, got.SolutionTable)
	assert.Equal(t, task.TeacherSection, got.TeacherSection)
}

func TestSave_EmptyID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	task := testTask("", "")
	err := store.Save(context.Background(), &task)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSave_UpdateReplacesChildren(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))

	task.Steps = []domain.Step{{TitleDE: "Neu", DescriptionDE: "Nur ein Schritt"}}
	task.TeacherSection.StudentStepsDE = nil
	require.NoError(t, store.Save(ctx, &task))

	got, err := store.GetByID(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "Neu", got.Steps[0].TitleDE)
	assert.Empty(t, got.TeacherSection.StudentStepsDE)
}

func TestGetByID_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetAll_NewestFirst(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	older := testTask("task-old", "fp-old")
	older.Timestamp = 1000
	newer := testTask("task-new", "fp-new")
	newer.Timestamp = 2000

	require.NoError(t, store.Save(ctx, &older))
	require.NoError(t, store.Save(ctx, &newer))

	tasks, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-new", tasks[0].ID)
	assert.Equal(t, "task-old", tasks[1].ID)
}

func TestGetAll_TimestampTie_InsertionOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"task-a", "task-b", "task-c"} {
		task := testTask(id, "fp-"+id)
		task.Timestamp = 5000
		require.NoError(t, store.Save(ctx, &task))
	}

	tasks, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "task-a", tasks[0].ID)
	assert.Equal(t, "task-b", tasks[1].ID)
	assert.Equal(t, "task-c", tasks[2].ID)
}

// ==================== Fingerprint Tests ====================

func TestSave_DuplicateFingerprintRejected(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first := testTask("task-1", "shared-fp")
	require.NoError(t, store.Save(ctx, &first))

	second := testTask("task-2", "shared-fp")
	err := store.Save(ctx, &second)
	assert.ErrorIs(t, err, domain.ErrDuplicateFingerprint)

	// The original record is untouched.
	got, err := store.GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "shared-fp", got.FileFingerprint)
	_, err = store.GetByID(ctx, "task-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSave_SameTaskKeepsFingerprint(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))
	task.TaskTitle = "Aktualisiert"
	require.NoError(t, store.Save(ctx, &task))

	got, err := store.GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "Aktualisiert", got.TaskTitle)
}

func TestSave_EmptyFingerprintsCoexist(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := testTask("task-1", "")
	b := testTask("task-2", "")
	require.NoError(t, store.Save(ctx, &a))
	require.NoError(t, store.Save(ctx, &b))

	tasks, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestFindByFingerprint(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-find")
	require.NoError(t, store.Save(ctx, &task))

	got, err := store.FindByFingerprint(ctx, "fp-find")
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.ID)

	_, err = store.FindByFingerprint(ctx, "fp-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExists(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-exists")
	require.NoError(t, store.Save(ctx, &task))

	ok, err := store.Exists(ctx, "fp-exists")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "fp-other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_FreesFingerprint(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-reuse")
	require.NoError(t, store.Save(ctx, &task))
	require.NoError(t, store.Delete(ctx, "task-1"))

	// Re-uploading the same source file must succeed after deletion.
	again := testTask("task-2", "fp-reuse")
	require.NoError(t, store.Save(ctx, &again))
}

func TestDelete_MissingIsNoop(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.NoError(t, store.Delete(context.Background(), "missing"))
}

func TestDelete_CascadesChildren(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))
	require.NoError(t, store.SaveAudio(ctx, "task-1", domain.NewClip([]float32{0.1, 0.2})))
	require.NoError(t, store.Delete(ctx, "task-1"))

	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM task_steps WHERE task_id = 'task-1'").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.GetAudio(ctx, "task-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Clear Tests ====================

func TestClearAll(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := testTask("task-1", "fp-1")
	b := testTask("task-2", "fp-2")
	require.NoError(t, store.Save(ctx, &a))
	require.NoError(t, store.Save(ctx, &b))

	require.NoError(t, store.ClearAll(ctx, false))

	tasks, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestClearAll_OnlyTestData(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	real := testTask("task-real", "fp-real")
	sim := testTask("task-sim", "fp-sim")
	sim.IsTestData = true
	require.NoError(t, store.Save(ctx, &real))
	require.NoError(t, store.Save(ctx, &sim))

	require.NoError(t, store.ClearAll(ctx, true))

	tasks, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-real", tasks[0].ID)
}

// ==================== Filter and Projection Tests ====================

func TestFilterByHierarchy(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	math := testTask("task-math", "fp-m")
	german := testTask("task-german", "fp-g")
	german.Subject = "Deutsch"
	german.SubSubject = "Lesen"
	require.NoError(t, store.Save(ctx, &math))
	require.NoError(t, store.Save(ctx, &german))

	tasks, err := store.FilterByHierarchy(ctx, domain.FilterOptions{Subject: "Deutsch"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-german", tasks[0].ID)

	tasks, err = store.FilterByHierarchy(ctx, domain.FilterOptions{
		Grade: "Klasse 2", Subject: "Deutsch", SubSubject: "Lesen",
	})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	tasks, err = store.FilterByHierarchy(ctx, domain.FilterOptions{Grade: "Klasse 4"})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUniqueProjections(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	k2math := testTask("t1", "fp-1")
	k2german := testTask("t2", "fp-2")
	k2german.Subject = "Deutsch"
	k2german.SubSubject = ""
	k3math := testTask("t3", "fp-3")
	k3math.Grade = "Klasse 3"
	k3math.SubSubject = "Rechnen"
	require.NoError(t, store.Save(ctx, &k2math))
	require.NoError(t, store.Save(ctx, &k2german))
	require.NoError(t, store.Save(ctx, &k3math))

	grades, err := store.UniqueGrades(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Klasse 2", "Klasse 3"}, grades)

	subjects, err := store.UniqueSubjects(ctx, "Klasse 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Deutsch", "Mathematik"}, subjects)

	subs, err := store.UniqueSubSubjects(ctx, "Klasse 3", "Mathematik")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rechnen"}, subs)

	// Empty sub-subjects are not reported.
	subs, err = store.UniqueSubSubjects(ctx, "Klasse 2", "Deutsch")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

// ==================== Audio Tests ====================

func TestAudioRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))

	clip := domain.NewClip([]float32{0.0, 0.25, -0.5, 1.0, -1.0})
	require.NoError(t, store.SaveAudio(ctx, "task-1", clip))

	got, err := store.GetAudio(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, clip.Samples, got.Samples)
	assert.Equal(t, domain.SampleRate, got.SampleRate)
}

func TestSaveAudio_Overwrite(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))

	require.NoError(t, store.SaveAudio(ctx, "task-1", domain.NewClip([]float32{0.1})))
	require.NoError(t, store.SaveAudio(ctx, "task-1", domain.NewClip([]float32{0.9, 0.8})))

	got, err := store.GetAudio(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9, 0.8}, got.Samples)
}

func TestDeleteAudio(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))
	require.NoError(t, store.SaveAudio(ctx, "task-1", domain.NewClip([]float32{0.1})))

	require.NoError(t, store.DeleteAudio(ctx, "task-1"))
	_, err := store.GetAudio(ctx, "task-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteAudio(ctx, "task-1"))
}

// ==================== Metadata Tests ====================

func TestMetadataRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.GetMeta(ctx, "migration_done")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SetMeta(ctx, "migration_done", "true"))
	val, err := store.GetMeta(ctx, "migration_done")
	require.NoError(t, err)
	assert.Equal(t, "true", val)

	require.NoError(t, store.SetMeta(ctx, "migration_done", "false"))
	val, err = store.GetMeta(ctx, "migration_done")
	require.NoError(t, err)
	assert.Equal(t, "false", val)
}

// ==================== Persistence Across Reopen ====================

func TestPersistenceAcrossReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "lernwelt-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)
	ctx := context.Background()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))

	task := testTask("task-1", "fp-1")
	require.NoError(t, store.Save(ctx, &task))
	require.NoError(t, store.Close())

	reopened, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, reopened.Init(ctx))
	defer reopened.Close()

	got, err := reopened.GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.TaskTitle, got.TaskTitle)
}

// ==================== Blob Encoding Tests ====================

func TestFloat32BlobRoundTrip(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 1.0, -1.0, 0.123456}
	assert.Equal(t, samples, bytesToFloat32Slice(float32SliceToBytes(samples)))

	assert.Empty(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
