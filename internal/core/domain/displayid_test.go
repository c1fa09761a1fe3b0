package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradeCode(t *testing.T) {
	assert.Equal(t, "K2", GradeCode("Klasse 2"))
	assert.Equal(t, "K10", GradeCode("Klasse 10"))
	assert.Equal(t, "K3", GradeCode("3. Klasse"))
	assert.Equal(t, "K0", GradeCode("Vorschule"))
	assert.Equal(t, "K0", GradeCode(""))
}

func TestSubjectCode(t *testing.T) {
	assert.Equal(t, "MAT", SubjectCode("Mathematik"))
	assert.Equal(t, "DEU", SubjectCode("Deutsch"))
	assert.Equal(t, "SAC", SubjectCode("Sachunterricht"))
	assert.Equal(t, "DEU", SubjectCode("  Deutsch  "))
	assert.Equal(t, FallbackSubjectCode, SubjectCode("Astronomie"))
	assert.Equal(t, FallbackSubjectCode, SubjectCode(""))
}

func TestNextDisplayID_EmptyLibrary(t *testing.T) {
	id := NextDisplayID(nil, "Klasse 2", "Mathematik")
	assert.Equal(t, "K2_MAT_1", id)
}

func TestNextDisplayID_Increments(t *testing.T) {
	existing := []Task{
		{DisplayID: "K2_MAT_1"},
		{DisplayID: "K2_MAT_2"},
	}
	assert.Equal(t, "K2_MAT_3", NextDisplayID(existing, "Klasse 2", "Mathematik"))
}

func TestNextDisplayID_FillsSmallestGap(t *testing.T) {
	existing := []Task{
		{DisplayID: "K2_MAT_1"},
		{DisplayID: "K2_MAT_3"},
	}
	assert.Equal(t, "K2_MAT_2", NextDisplayID(existing, "Klasse 2", "Mathematik"))
}

func TestNextDisplayID_IgnoresOtherPrefixes(t *testing.T) {
	existing := []Task{
		{DisplayID: "K2_DEU_1"},
		{DisplayID: "K3_MAT_1"},
		{DisplayID: ""},
	}
	assert.Equal(t, "K2_MAT_1", NextDisplayID(existing, "Klasse 2", "Mathematik"))
}

func TestNextDisplayID_FallbackSubject(t *testing.T) {
	existing := []Task{{DisplayID: "K1_ALG_1"}}
	assert.Equal(t, "K1_ALG_2", NextDisplayID(existing, "Klasse 1", "Astronomie"))
}
