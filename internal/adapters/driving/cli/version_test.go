package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

func TestVersionCmd_Use(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCmd_Executes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "lernwelt version test-version-1.0.0")
}

func TestIsPhotoFile(t *testing.T) {
	assert.True(t, isPhotoFile("/inbox/seite1.jpg"))
	assert.True(t, isPhotoFile("/inbox/SEITE2.JPEG"))
	assert.True(t, isPhotoFile("/inbox/seite3.png"))
	assert.True(t, isPhotoFile("/inbox/seite4.webp"))
	assert.False(t, isPhotoFile("/inbox/notizen.txt"))
	assert.False(t, isPhotoFile("/inbox/.hidden"))
}

func TestEnqueueImport_GivesUpOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody reads the channel after the watch loop exits; the settled-file
	// handoff must still return instead of blocking its timer goroutine.
	done := make(chan struct{})
	go func() {
		enqueueImport(ctx, make(chan string), "/inbox/seite1.jpg")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueueImport blocked after cancellation")
	}
}

func TestSubjectLabel(t *testing.T) {
	task := &domain.Task{Subject: "Mathematik"}
	assert.Equal(t, "Mathematik", subjectLabel(task))

	task.SubSubject = "Geometrie"
	assert.Equal(t, "Mathematik/Geometrie", subjectLabel(task))
}

func TestPCM16Bytes(t *testing.T) {
	clip := domain.NewClip([]float32{0, 1, -1})
	data := pcm16Bytes(clip)

	assert.Len(t, data, 6)
	assert.Equal(t, []byte{0x00, 0x00}, data[0:2])   // silence
	assert.Equal(t, []byte{0xff, 0x7f}, data[2:4])   // +1 clamps to max
	assert.Equal(t, []byte{0x01, 0x80}, data[4:6])   // -1 scales to -32767
}
