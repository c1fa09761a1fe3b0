package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// FallbackSubjectCode is used for subjects outside the controlled vocabulary.
const FallbackSubjectCode = "ALG"

// subjectCodes maps the controlled vocabulary of subject names to 3-letter codes.
var subjectCodes = map[string]string{
	"Mathematik":     "MAT",
	"Deutsch":        "DEU",
	"Sachunterricht": "SAC",
	"Englisch":       "ENG",
	"Musik":          "MUS",
	"Kunst":          "KUN",
	"Sport":          "SPO",
	"Religion":       "REL",
}

// GradeCode extracts the numeric part of a grade label and prefixes it with K,
// so "Klasse 2" becomes "K2". A grade without digits yields "K0".
func GradeCode(grade string) string {
	var digits strings.Builder
	for _, r := range grade {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "K0"
	}
	return "K" + digits.String()
}

// SubjectCode maps a subject name to its 3-letter code, falling back to
// FallbackSubjectCode for unmapped subjects.
func SubjectCode(subject string) string {
	if code, ok := subjectCodes[strings.TrimSpace(subject)]; ok {
		return code
	}
	return FallbackSubjectCode
}

// DisplayIDPrefix returns the GradeCode_SubjectCode prefix for a task.
func DisplayIDPrefix(grade, subject string) string {
	return GradeCode(grade) + "_" + SubjectCode(subject)
}

// NextDisplayID assigns the next display ID for the given grade and subject.
// The sequence number is the smallest unused positive integer among the
// existing tasks sharing the same prefix. Display IDs are assigned once and
// never recomputed: reassigning would break printed worksheet references.
func NextDisplayID(existing []Task, grade, subject string) string {
	prefix := DisplayIDPrefix(grade, subject)

	used := make(map[int]bool)
	for i := range existing {
		id := existing[i].DisplayID
		if id == "" {
			continue
		}
		var seq int
		if _, err := fmt.Sscanf(id, prefix+"_%d", &seq); err == nil && seq > 0 {
			used[seq] = true
		}
	}

	seq := 1
	for used[seq] {
		seq++
	}
	return fmt.Sprintf("%s_%d", prefix, seq)
}
