package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeMedia records blob operations for tests without a storage account.
type fakeMedia struct {
	removed    []string
	failRemove map[string]bool
}

func (m *fakeMedia) Upload(_ context.Context, name string, _ []byte, _ string) (string, error) {
	return "https://example.test/tasks-media/" + name, nil
}

func (m *fakeMedia) Download(_ context.Context, _ string) ([]byte, error) {
	return nil, nil
}

func (m *fakeMedia) Remove(_ context.Context, name string) error {
	if m.failRemove[name] {
		return fmt.Errorf("blob service unavailable")
	}
	m.removed = append(m.removed, name)
	return nil
}

func TestRemoveAudioBlobs(t *testing.T) {
	media := &fakeMedia{}
	store := NewStore("", media)

	store.removeAudioBlobs(context.Background(), []string{"t1", "t2"})

	assert.Equal(t, []string{"audio/t1.wav.zst", "audio/t2.wav.zst"}, media.removed)
}

func TestRemoveAudioBlobs_FailureSkipsToNext(t *testing.T) {
	media := &fakeMedia{failRemove: map[string]bool{"audio/t1.wav.zst": true}}
	store := NewStore("", media)

	// A failed removal is logged only; the remaining blobs still go.
	store.removeAudioBlobs(context.Background(), []string{"t1", "t2"})

	assert.Equal(t, []string{"audio/t2.wav.zst"}, media.removed)
}
