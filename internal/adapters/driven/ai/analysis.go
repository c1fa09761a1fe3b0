package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
	"github.com/lernbegleiter/lernwelt-cli/internal/logger"
)

var _ driven.AnalysisService = (*Analysis)(nil)

// DefaultVisionModel is the chat model used for page extraction.
const DefaultVisionModel = "gpt-4o"

// visionRequestsPerMinute paces page analysis below the provider quota so
// batch imports don't trip it on their own.
const visionRequestsPerMinute = 20

const analysisSystemPrompt = `Du bist ein Assistent, der Schulbuchseiten einer deutschen Grundschule analysiert.
Extrahiere die Aufgabe auf dem Foto als JSON-Objekt mit genau diesen Feldern:
{
  "grade": "Klasse N",
  "subject": "Fach (z.B. Mathematik, Deutsch, Sachunterricht)",
  "subSubject": "Teilgebiet oder leer",
  "taskTitle": "kurzer Titel",
  "taskDescription_de": "Aufgabenstellung auf Deutsch",
  "taskDescription_vi": "Aufgabenstellung auf Vietnamesisch",
  "steps": [{"title_de": "...", "title_vi": "...", "description_de": "...", "description_vi": "..."}],
  "solutionTable": [{"taskNumber": "...", "label_de": "...", "label_vi": "...", "value_de": "...", "value_vi": "..."}],
  "finalSolution_de": "Endergebnis auf Deutsch",
  "finalSolution_vi": "Endergebnis auf Vietnamesisch",
  "teacherSection": {
    "learningGoal_de": "...",
    "studentSteps_de": ["..."],
    "explanation_de": "...",
    "summary_de": "..."
  }
}
Alle _vi Felder sind die vietnamesische Übersetzung des deutschen Texts.
Antworte ausschließlich mit dem JSON-Objekt.`

// Analysis extracts structured task content from page photos via the
// OpenAI vision chat API.
type Analysis struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewAnalysis creates the analysis adapter. baseURL and model may be empty
// for the defaults.
func NewAnalysis(apiKey, baseURL, model string) (*Analysis, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if model == "" {
		model = DefaultVisionModel
	}
	return &Analysis{
		client:  newClient(apiKey, baseURL),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(visionRequestsPerMinute)/60.0, 1),
	}, nil
}

// AnalyzeTaskImage submits the photo and parses the model's JSON reply into a
// task. ID, fingerprint and timestamp are left for the importer to stamp.
func (a *Analysis) AnalyzeTaskImage(ctx context.Context, image []byte, pageNumber int, mimeType string) (*domain.Task, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("analyzing page %d: empty image: %w", pageNumber, domain.ErrInvalidInput)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	logger.Debug("analyzing page %d (%d bytes, %s)", pageNumber, len(image), mimeType)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf("Analysiere die Aufgabe auf Seite %d.", pageNumber),
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI, Detail: openai.ImageURLDetailHigh},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("analyzing page %d: %w", pageNumber, domain.ErrRateLimited)
		}
		return nil, fmt.Errorf("analyzing page %d: %w: %v", pageNumber, domain.ErrAnalysisFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analyzing page %d: no choices returned: %w", pageNumber, domain.ErrAnalysisFailed)
	}

	task, err := parseTaskPayload(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("analyzing page %d: %w", pageNumber, err)
	}
	if task.PageNumber == 0 {
		task.PageNumber = pageNumber
	}
	return task, nil
}

// Close releases provider resources.
func (a *Analysis) Close() {}

// parseTaskPayload decodes the model's JSON reply. Some models wrap the
// object in a markdown fence despite the response format, so fences are
// stripped first.
func parseTaskPayload(content string) (*domain.Task, error) {
	content = strings.TrimSpace(content)
	if after, found := strings.CutPrefix(content, "```json"); found {
		content = after
	} else if after, found := strings.CutPrefix(content, "```"); found {
		content = after
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	content = strings.TrimSpace(content)

	var task domain.Task
	if err := json.Unmarshal([]byte(content), &task); err != nil {
		return nil, fmt.Errorf("%w: parsing reply: %v", domain.ErrAnalysisFailed, err)
	}

	if task.Grade == "" || task.Subject == "" || task.TaskTitle == "" {
		return nil, fmt.Errorf("%w: reply missing grade, subject or title", domain.ErrAnalysisFailed)
	}
	return &task, nil
}
