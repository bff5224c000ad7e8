// Package history keeps finished transcriptions and their audio.
//
// Entries live in a badger index keyed by creation time; audio is written
// next to it as recordings/<id>.wav.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/audio"
	"murmur/internal/session"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned for unknown entry ids.
var ErrNotFound = errors.New("history entry not found")

const (
	entryPrefix = "e/"
	idPrefix    = "i/"
)

// Entry is one stored transcription.
type Entry struct {
	ID                      string    `json:"id"`
	Text                    string    `json:"text"`
	CreatedAt               time.Time `json:"createdAt"`
	ModelID                 string    `json:"modelId,omitempty"`
	Device                  string    `json:"device,omitempty"`
	RecordingDurationMs     int64     `json:"recordingDurationMs"`
	TranscriptionDurationMs int64     `json:"transcriptionDurationMs"`
	AudioPath               string    `json:"audioPath,omitempty"`
	Samples                 int       `json:"samples"`
}

// Options configures Open.
type Options struct {
	Dir        string // holds index/ and recordings/
	InMemory   bool   // index kept in memory; audio still goes to Dir
	MaxEntries int
	SaveAudio  bool
	Logger     *logrus.Logger
}

// Store is the badger-backed history index.
type Store struct {
	db        *badger.DB
	recDir    string
	max       int
	saveAudio bool
	logger    *logrus.Logger
}

// Open opens (or creates) the history store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		bopts = badger.DefaultOptions(filepath.Join(opts.Dir, "index"))
	}
	bopts = bopts.WithLogger(badgerLogger{opts.Logger})
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open history index: %w", err)
	}
	return &Store{
		db:        db,
		recDir:    filepath.Join(opts.Dir, "recordings"),
		max:       opts.MaxEntries,
		saveAudio: opts.SaveAudio && opts.Dir != "",
		logger:    opts.Logger,
	}, nil
}

// Close flushes and closes the index.
func (s *Store) Close() error { return s.db.Close() }

func entryKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", entryPrefix, t.UnixNano(), id))
}

// Save stores a finished session. It satisfies session.HistorySink.
func (s *Store) Save(_ context.Context, h session.Handoff) error {
	created := h.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	e := Entry{
		ID:                      h.SessionID,
		Text:                    h.Text,
		CreatedAt:               created.UTC(),
		ModelID:                 h.ModelID,
		Device:                  h.Device,
		RecordingDurationMs:     h.RecordingDurationMs,
		TranscriptionDurationMs: h.TranscriptionDurationMs,
		Samples:                 len(h.Samples),
	}
	if s.saveAudio && len(h.Samples) > 0 {
		path := filepath.Join(s.recDir, h.SessionID+".wav")
		if err := audio.WriteWAVFile(path, h.Samples, h.SampleRate); err != nil {
			return fmt.Errorf("write recording: %w", err)
		}
		e.AudioPath = path
	}
	return s.put(e)
}

func (s *Store) put(e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := entryKey(e.CreatedAt, e.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set([]byte(idPrefix+e.ID), key)
	})
	if err != nil {
		return fmt.Errorf("save history entry: %w", err)
	}
	if s.max > 0 {
		if err := s.prune(s.max); err != nil {
			s.logger.Warnf("history prune: %v", err)
		}
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		// Reverse iteration starts at the last key <= seek.
		for it.Seek([]byte(entryPrefix + "\xff")); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Get returns one entry by id.
func (s *Store) Get(id string) (Entry, error) {
	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := lookup(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &e) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

func lookup(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get([]byte(idPrefix + id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Delete removes an entry and its recording.
func (s *Store) Delete(id string) error {
	var audioPath string
	err := s.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, id)
		if err != nil {
			return err
		}
		if item, err := txn.Get(key); err == nil {
			_ = item.Value(func(v []byte) error {
				var e Entry
				if json.Unmarshal(v, &e) == nil {
					audioPath = e.AudioPath
				}
				return nil
			})
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete([]byte(idPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	s.removeAudio(audioPath)
	return nil
}

// Clear drops every entry and recording.
func (s *Store) Clear() error {
	if err := s.db.DropPrefix([]byte(entryPrefix), []byte(idPrefix)); err != nil {
		return err
	}
	if err := os.RemoveAll(s.recDir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAudio returns the WAV bytes recorded for id.
func (s *Store) LoadAudio(id string) ([]byte, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if e.AudioPath == "" {
		return nil, fmt.Errorf("entry %s has no recording", id)
	}
	return os.ReadFile(e.AudioPath)
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// prune deletes the oldest entries beyond max.
func (s *Store) prune(max int) error {
	n, err := s.Count()
	if err != nil || n <= max {
		return err
	}
	excess := n - max
	var victims []Entry
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(victims) < excess; it.Next() {
			var e Entry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			victims = append(victims, e)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, v := range victims {
		if err := s.Delete(v.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	s.logger.Debugf("history pruned %d entries", len(victims))
	return nil
}

func (s *Store) removeAudio(path string) {
	if path == "" || !strings.HasPrefix(path, s.recDir) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warnf("remove recording %s: %v", path, err)
	}
}

// badgerLogger routes badger's chatter through logrus, demoting info to debug.
type badgerLogger struct{ l *logrus.Logger }

func (b badgerLogger) Errorf(f string, a ...interface{})   { b.l.Errorf("badger: "+f, a...) }
func (b badgerLogger) Warningf(f string, a ...interface{}) { b.l.Warnf("badger: "+f, a...) }
func (b badgerLogger) Infof(f string, a ...interface{})    { b.l.Debugf("badger: "+f, a...) }
func (b badgerLogger) Debugf(f string, a ...interface{})   { b.l.Tracef("badger: "+f, a...) }
