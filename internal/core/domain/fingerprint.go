package domain

import "fmt"

// Fingerprint derives the deduplication key for a source upload from the
// file's name, size, modification time (milliseconds) and MIME type.
// It identifies the upload, not the task; two scans of the same photo file
// collide, two photos of the same page do not.
func Fingerprint(name string, size int64, modifiedMillis int64, mimeType string) string {
	return fmt.Sprintf("%s-%d-%d-%s", name, size, modifiedMillis, mimeType)
}
