package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"murmur/internal/logging"
	"murmur/internal/session"
)

func openTest(t *testing.T, max int) *Store {
	t.Helper()
	s, err := Open(Options{Dir: t.TempDir(), InMemory: true, MaxEntries: max, SaveAudio: true, Logger: logging.NewTestLogger()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func handoff(id string, at time.Time) session.Handoff {
	return session.Handoff{
		SessionID:           id,
		Text:                "text " + id,
		Samples:             make([]float32, 1600),
		SampleRate:          16000,
		ModelID:             "echo",
		RecordingDurationMs: 100,
		CreatedAt:           at,
	}
}

func TestSaveListNewestFirst(t *testing.T) {
	s := openTest(t, 0)
	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Save(context.Background(), handoff(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	entries, err := s.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 || entries[0].ID != "s2" || entries[2].ID != "s0" {
		t.Fatalf("order = %+v", entries)
	}
	if top, _ := s.List(1); len(top) != 1 || top[0].ID != "s2" {
		t.Fatalf("limit = %+v", top)
	}
	e, err := s.Get("s1")
	if err != nil || e.Text != "text s1" || e.Samples != 1600 {
		t.Fatalf("get: %+v %v", e, err)
	}
	if _, err := os.Stat(e.AudioPath); err != nil {
		t.Fatalf("recording missing: %v", err)
	}
	wav, err := s.LoadAudio("s1")
	if err != nil || len(wav) < 44 || string(wav[:4]) != "RIFF" {
		t.Fatalf("load audio: %d bytes, %v", len(wav), err)
	}
}

func TestDeleteRemovesRecording(t *testing.T) {
	s := openTest(t, 0)
	_ = s.Save(context.Background(), handoff("gone", time.Now()))
	e, _ := s.Get("gone")
	if err := s.Delete("gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if _, err := os.Stat(e.AudioPath); !os.IsNotExist(err) {
		t.Fatalf("recording still on disk")
	}
	if err := s.Delete("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestPruneKeepsMaxEntries(t *testing.T) {
	s := openTest(t, 2)
	base := time.Now()
	for i := 0; i < 4; i++ {
		_ = s.Save(context.Background(), handoff(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Millisecond)))
	}
	n, _ := s.Count()
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	entries, _ := s.List(0)
	if entries[0].ID != "p3" || entries[1].ID != "p2" {
		t.Fatalf("kept %+v", entries)
	}
}

func TestClear(t *testing.T) {
	s := openTest(t, 0)
	_ = s.Save(context.Background(), handoff("a", time.Now()))
	_ = s.Save(context.Background(), handoff("b", time.Now().Add(time.Second)))
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if entries, _ := s.List(0); len(entries) != 0 {
		t.Fatalf("entries after clear: %d", len(entries))
	}
}

func TestEmptyAudioStoresNoRecording(t *testing.T) {
	s := openTest(t, 0)
	h := handoff("silent", time.Now())
	h.Samples = nil
	if err := s.Save(context.Background(), h); err != nil {
		t.Fatalf("save: %v", err)
	}
	e, _ := s.Get("silent")
	if e.AudioPath != "" {
		t.Fatalf("unexpected recording %q", e.AudioPath)
	}
	if _, err := s.LoadAudio("silent"); err == nil {
		t.Fatalf("expected no-recording error")
	}
}
