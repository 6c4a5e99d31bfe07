package utils

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
)

func TestGenerateVideoID(t *testing.T) {
	// Remote URIs hash to their text.
	a := GenerateVideoID("gs://bucket/goldeneye.mp4")
	b := GenerateVideoID("gs://bucket/goldeneye.mp4")
	c := GenerateVideoID("gs://bucket/other.mp4")
	if a == "" || a != b {
		t.Errorf("Hash is not deterministic. Got %s, then %s", a, b)
	}
	if a == c {
		t.Error("Different URIs produced the same ID")
	}

	// Integration test using the OS filesystem
	tmp, err := os.CreateTemp("", "video_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte("fake video content")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id := GenerateVideoID(tmp.Name())
	if id2 := GenerateVideoID(tmp.Name()); id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()

	if id3 := GenerateVideoID(tmp.Name()); id == id3 {
		t.Error("Hash did not change after file modification")
	}
}

func TestSafeCommandCapturesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	cmd := NewSafeCommand(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	err := cmd.Run()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected exit error, got %v", err)
	}
	if got := cmd.Stderr.String(); got != "boom\n" {
		t.Errorf("Expected captured stderr %q, got %q", "boom\n", got)
	}
}
