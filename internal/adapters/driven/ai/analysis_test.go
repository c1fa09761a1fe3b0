package ai

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

const validPayload = `{
	"grade": "Klasse 2",
	"subject": "Mathematik",
	"subSubject": "Geometrie",
	"taskTitle": "Formen erkennen",
	"taskDescription_de": "Benenne die Formen.",
	"taskDescription_vi": "Gọi tên các hình.",
	"steps": [
		{"title_de": "Schritt 1", "title_vi": "Bước 1", "description_de": "Schau genau hin", "description_vi": "Nhìn kỹ"}
	],
	"solutionTable": [
		{"taskNumber": "1", "label_de": "Dreieck", "label_vi": "Tam giác", "value_de": "3 Ecken", "value_vi": "3 góc"}
	],
	"finalSolution_de": "Drei Ecken.",
	"finalSolution_vi": "Ba góc.",
	"teacherSection": {
		"learningGoal_de": "Formen unterscheiden",
		"studentSteps_de": ["Benennen", "Zählen"],
		"explanation_de": "Wir üben Grundformen.",
		"summary_de": "Geschafft."
	}
}`

func TestParseTaskPayload(t *testing.T) {
	task, err := parseTaskPayload(validPayload)
	require.NoError(t, err)

	assert.Equal(t, "Klasse 2", task.Grade)
	assert.Equal(t, "Mathematik", task.Subject)
	assert.Equal(t, "Formen erkennen", task.TaskTitle)
	require.Len(t, task.Steps, 1)
	assert.Equal(t, "Bước 1", task.Steps[0].TitleVI)
	require.Len(t, task.SolutionTable, 1)
	assert.Equal(t, "Tam giác", task.SolutionTable[0].LabelVI)
	assert.Equal(t, []string{"Benennen", "Zählen"}, task.TeacherSection.StudentStepsDE)

	// The importer stamps these.
	assert.Empty(t, task.ID)
	assert.Empty(t, task.FileFingerprint)
	assert.Zero(t, task.Timestamp)
}

func TestParseTaskPayload_MarkdownFence(t *testing.T) {
	task, err := parseTaskPayload("```json\n" + validPayload + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Mathematik", task.Subject)

	task, err = parseTaskPayload("```\n" + validPayload + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Mathematik", task.Subject)
}

func TestParseTaskPayload_Invalid(t *testing.T) {
	_, err := parseTaskPayload("not json at all")
	assert.ErrorIs(t, err, domain.ErrAnalysisFailed)

	// Missing required fields.
	_, err = parseTaskPayload(`{"grade": "Klasse 2"}`)
	assert.ErrorIs(t, err, domain.ErrAnalysisFailed)

	_, err = parseTaskPayload(`{"subject": "Deutsch", "taskTitle": "Lesen"}`)
	assert.ErrorIs(t, err, domain.ErrAnalysisFailed)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, isRateLimited(&openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.False(t, isRateLimited(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}))
	assert.False(t, isRateLimited(errors.New("network down")))
	assert.False(t, isRateLimited(nil))
}

func TestNewAnalysis_RequiresKey(t *testing.T) {
	_, err := NewAnalysis("", "", "")
	assert.Error(t, err)

	svc, err := NewAnalysis("sk-test", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultVisionModel, svc.model)
}

func TestNewSpeech_RequiresKey(t *testing.T) {
	_, err := NewSpeech("", "", "")
	assert.Error(t, err)

	svc, err := NewSpeech("sk-test", "", "shimmer")
	require.NoError(t, err)
	assert.Equal(t, openai.SpeechVoice("shimmer"), svc.voice)
}
