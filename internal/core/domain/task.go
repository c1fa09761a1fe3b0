package domain

// Step is one solution step with parallel German and Vietnamese text.
type Step struct {
	TitleDE       string `json:"title_de"`
	TitleVI       string `json:"title_vi"`
	DescriptionDE string `json:"description_de"`
	DescriptionVI string `json:"description_vi"`
}

// TableRow is one row of the bilingual solution table.
type TableRow struct {
	TaskNumber string `json:"taskNumber"`
	LabelDE    string `json:"label_de"`
	LabelVI    string `json:"label_vi"`
	ValueDE    string `json:"value_de"`
	ValueVI    string `json:"value_vi"`
}

// TeacherSection holds the single-language (German) teacher annotation block.
type TeacherSection struct {
	LearningGoalDE string   `json:"learningGoal_de"`
	StudentStepsDE []string `json:"studentSteps_de"`
	ExplanationDE  string   `json:"explanation_de"`
	SummaryDE      string   `json:"summary_de"`
}

// Task is one analyzed textbook page: the canonical record produced by the
// analysis service and persisted by the task repository.
type Task struct {
	// ID is the opaque, generation-time unique identifier.
	ID string `json:"id"`

	// DisplayID is the human-readable stable code (e.g. K2_DEU_1).
	// Assigned once at first insertion, never recomputed.
	DisplayID string `json:"displayId,omitempty"`

	// PageNumber is the textbook page the task was scanned from.
	PageNumber int `json:"pageNumber"`

	// Grade, Subject and SubSubject form a free-text hierarchy: a subject is
	// meaningful only within its grade, a sub-subject only within grade+subject.
	Grade      string `json:"grade"`
	Subject    string `json:"subject"`
	SubSubject string `json:"subSubject"`

	TaskTitle string `json:"taskTitle"`

	TaskDescriptionDE string `json:"taskDescription_de"`
	TaskDescriptionVI string `json:"taskDescription_vi"`

	Steps         []Step     `json:"steps"`
	SolutionTable []TableRow `json:"solutionTable"`

	FinalSolutionDE string `json:"finalSolution_de"`
	FinalSolutionVI string `json:"finalSolution_vi"`

	TeacherSection TeacherSection `json:"teacherSection"`

	// ImagePreview is either an inline data URI or a remote media URL,
	// depending on which backend persisted the record.
	ImagePreview string `json:"imagePreview,omitempty"`

	// FileFingerprint identifies the source upload for deduplication.
	// At most one task may hold a given non-empty fingerprint.
	FileFingerprint string `json:"fileFingerprint,omitempty"`

	// Timestamp is the creation instant in milliseconds since the epoch.
	// It is the default sort key, descending.
	Timestamp int64 `json:"timestamp"`

	// IsTestData marks simulated records so they can be purged selectively.
	IsTestData bool `json:"isTestData,omitempty"`
}

// FilterOptions narrows task queries along the grade/subject/sub-subject
// hierarchy. Empty fields are not filtered on.
type FilterOptions struct {
	Grade      string
	Subject    string
	SubSubject string
}

// Matches reports whether the task satisfies every provided filter field.
func (o FilterOptions) Matches(t *Task) bool {
	if o.Grade != "" && t.Grade != o.Grade {
		return false
	}
	if o.Subject != "" && t.Subject != o.Subject {
		return false
	}
	if o.SubSubject != "" && t.SubSubject != o.SubSubject {
		return false
	}
	return true
}
