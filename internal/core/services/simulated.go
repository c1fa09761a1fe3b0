package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

// simulatedSubjects drives round-robin subject assignment for generated
// records.
var simulatedSubjects = []string{"Mathematik", "Deutsch", "Sachunterricht"}

// GenerateSimulatedTasks produces n complete task records flagged as test
// data, so demos can fill the library without spending analysis calls and
// `clear --test-data` can purge them again.
func GenerateSimulatedTasks(n int, grade string) []domain.Task {
	if grade == "" {
		grade = "Klasse 2"
	}

	tasks := make([]domain.Task, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		subject := simulatedSubjects[i%len(simulatedSubjects)]
		tasks = append(tasks, domain.Task{
			ID:                id,
			PageNumber:        i + 1,
			Grade:             grade,
			Subject:           subject,
			TaskTitle:         fmt.Sprintf("Übungsaufgabe %d", i+1),
			TaskDescriptionDE: fmt.Sprintf("Simulierte Aufgabe %d für %s.", i+1, subject),
			TaskDescriptionVI: fmt.Sprintf("Bài tập mô phỏng %d cho môn %s.", i+1, subject),
			Steps: []domain.Step{
				{
					TitleDE:       "Schritt 1",
					TitleVI:       "Bước 1",
					DescriptionDE: "Lies die Aufgabe genau durch.",
					DescriptionVI: "Đọc kỹ đề bài.",
				},
				{
					TitleDE:       "Schritt 2",
					TitleVI:       "Bước 2",
					DescriptionDE: "Schreibe die Lösung auf.",
					DescriptionVI: "Viết lời giải.",
				},
			},
			SolutionTable: []domain.TableRow{
				{
					TaskNumber: "1",
					LabelDE:    "Ergebnis",
					LabelVI:    "Kết quả",
					ValueDE:    fmt.Sprintf("Lösung %d", i+1),
					ValueVI:    fmt.Sprintf("Lời giải %d", i+1),
				},
			},
			FinalSolutionDE: fmt.Sprintf("Die Lösung der Aufgabe %d.", i+1),
			FinalSolutionVI: fmt.Sprintf("Lời giải của bài %d.", i+1),
			TeacherSection: domain.TeacherSection{
				LearningGoalDE: "Selbstständiges Arbeiten üben",
				StudentStepsDE: []string{"Aufgabe lesen", "Lösung aufschreiben"},
				ExplanationDE:  "Eine generierte Übungsaufgabe.",
				SummaryDE:      "Übung abgeschlossen.",
			},
			// Unique per record so generated data never collides with real
			// uploads or with itself.
			FileFingerprint: domain.Fingerprint(
				fmt.Sprintf("simuliert-%s.png", id), int64(i+1), time.Now().UnixMilli(), "image/png"),
			Timestamp:       time.Now().UnixMilli(),
			IsTestData:      true,
		})
	}
	return tasks
}
