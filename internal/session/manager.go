package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"murmur/internal/audio"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type phase int

const (
	phaseIdle phase = iota
	phaseStarting
	phaseRecording
	phaseStopping
)

// Options configures a Manager.
type Options struct {
	Host          audio.Host
	Logger        *logrus.Logger
	Events        EventSink   // nil discards events
	History       HistorySink // nil skips the history hand-off
	DeviceName    string
	BufferSeconds int
	TrimSilence   bool
	VADMode       int
}

// Manager is the process-wide recording context. Each piece of mutable
// state sits behind its own lock. Start reads the engine slot while holding
// activeMu; no other method nests locks.
type Manager struct {
	host   audio.Host
	logger *logrus.Logger
	events EventSink
	hist   HistorySink

	engineMu sync.RWMutex // held for reading across a transcription
	engine   Engine
	modelID  string

	activeMu sync.Mutex
	phase    phase
	swapping bool // an engine load or unload is in progress

	captureMu sync.Mutex
	capture   *audio.Capture
	current   *Record
	last      *Record

	prefsMu       sync.RWMutex
	deviceName    string
	bufferSeconds int
	trimSilence   bool
	vadMode       int

	transcribing atomic.Int32
}

// NewManager returns an idle manager with no engine loaded.
func NewManager(opts Options) *Manager {
	events := opts.Events
	if events == nil {
		events = discardSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		host:          opts.Host,
		logger:        logger,
		events:        events,
		hist:          opts.History,
		deviceName:    opts.DeviceName,
		bufferSeconds: opts.BufferSeconds,
		trimSilence:   opts.TrimSilence,
		vadMode:       opts.VADMode,
	}
}

// SetDevice changes the preferred input device for future sessions.
func (m *Manager) SetDevice(name string) {
	m.prefsMu.Lock()
	m.deviceName = name
	m.prefsMu.Unlock()
}

// SetTrimSilence toggles VAD trimming for future stops.
func (m *Manager) SetTrimSilence(on bool, mode int) {
	m.prefsMu.Lock()
	m.trimSilence, m.vadMode = on, mode
	m.prefsMu.Unlock()
}

// IsRecording reports whether a capture is live.
func (m *Manager) IsRecording() bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	return m.phase == phaseRecording
}

// LoadEngine installs e, closing any previous engine. It is refused while
// a session is being started, recorded or stopped.
func (m *Manager) LoadEngine(e Engine, modelID string) error {
	if e == nil {
		return errors.New("nil engine")
	}
	old, err := m.swapEngine(e, modelID)
	if err != nil {
		return err
	}
	if old != nil && old != e {
		if err := old.Close(); err != nil {
			m.logger.Warnf("close previous engine: %v", err)
		}
	}
	m.logger.Infof("transcription engine loaded: %s", modelID)
	return nil
}

// UnloadEngine closes and removes the current engine.
func (m *Manager) UnloadEngine() error {
	old, err := m.swapEngine(nil, "")
	if err != nil {
		return err
	}
	if old != nil {
		return old.Close()
	}
	return nil
}

// swapEngine replaces the engine slot while holding off Start. Stop counts
// itself as transcribing before it leaves phaseStopping, so a swap never
// lands between a stop and its transcription.
func (m *Manager) swapEngine(e Engine, modelID string) (Engine, error) {
	m.activeMu.Lock()
	if m.phase != phaseIdle || m.swapping || m.transcribing.Load() > 0 {
		m.activeMu.Unlock()
		return nil, ErrAlreadyRecording
	}
	m.swapping = true
	m.activeMu.Unlock()
	defer func() {
		m.activeMu.Lock()
		m.swapping = false
		m.activeMu.Unlock()
	}()

	m.engineMu.Lock()
	old := m.engine
	m.engine, m.modelID = e, modelID
	m.engineMu.Unlock()
	return old, nil
}

func (m *Manager) engineInfo() (loaded bool, modelID string) {
	m.engineMu.RLock()
	defer m.engineMu.RUnlock()
	return m.engine != nil, m.modelID
}

// Start opens the input device and begins a session. The engine check runs
// before the recording check, so a manager without an engine always
// answers NoModelSelected. Both checks and the claim happen under activeMu,
// so an engine swap cannot slip in between them.
func (m *Manager) Start() (string, error) {
	m.activeMu.Lock()
	if m.swapping {
		m.activeMu.Unlock()
		return "", ErrNoModelSelected
	}
	loaded, modelID := m.engineInfo()
	if !loaded {
		m.activeMu.Unlock()
		return "", ErrNoModelSelected
	}
	if m.phase != phaseIdle {
		m.activeMu.Unlock()
		return "", ErrAlreadyRecording
	}
	m.phase = phaseStarting
	m.activeMu.Unlock()

	m.prefsMu.RLock()
	opts := audio.CaptureOptions{DeviceName: m.deviceName, BufferSeconds: m.bufferSeconds}
	m.prefsMu.RUnlock()

	id := uuid.NewString()
	opts.OnAmplitude = func(amps []float32, rms float32) {
		m.events.Emit(Event{Type: EventAmplitudeUpdate, SessionID: id, Amplitudes: amps, RMS: rms})
	}
	if m.host == nil {
		m.setPhase(phaseIdle)
		return "", wrap(CodeMicrophoneUnavailable, "microphone unavailable: no audio host", audio.ErrUnsupported)
	}
	c, err := audio.StartCapture(m.host, opts, m.logger)
	if err != nil {
		m.setPhase(phaseIdle)
		return "", wrap(CodeMicrophoneUnavailable, err.Error(), err)
	}

	rec := &Record{ID: id, StartedAt: time.Now(), Status: StatusRecording, ModelID: modelID, Device: c.DeviceName()}
	m.captureMu.Lock()
	m.capture = c
	m.current = rec
	m.captureMu.Unlock()

	m.setPhase(phaseRecording)
	m.logger.Infof("session %s: recording from %q", id, c.DeviceName())
	m.events.Emit(Event{Type: EventRecordingStarted, SessionID: id})
	return id, nil
}

func (m *Manager) setPhase(p phase) {
	m.activeMu.Lock()
	m.phase = p
	m.activeMu.Unlock()
}

// claim moves recording to stopping, so concurrent stops and cancels see
// NotRecording. The returned release puts the manager back to idle and is
// safe to call more than once.
func (m *Manager) claim() (release func(), err error) {
	m.activeMu.Lock()
	if m.phase != phaseRecording {
		m.activeMu.Unlock()
		return nil, ErrNotRecording
	}
	m.phase = phaseStopping
	m.activeMu.Unlock()
	return sync.OnceFunc(func() { m.setPhase(phaseIdle) }), nil
}

func (m *Manager) takeCapture() (*audio.Capture, *Record) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	c, rec := m.capture, m.current
	m.capture, m.current = nil, nil
	return c, rec
}

// Stop ends the live session, resamples the capture to 16 kHz and
// transcribes it. Recording is cleared as soon as the device is released,
// before the slower pipeline runs.
func (m *Manager) Stop(ctx context.Context) (Result, error) {
	release, err := m.claim()
	if err != nil {
		return Result{}, err
	}
	defer release()

	c, rec := m.takeCapture()
	if c == nil {
		return Result{}, ErrNotRecording
	}
	samples, rate := c.Stop()
	rec.EndedAt = time.Now()
	rec.DurationMs = rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	rec.Status = StatusTranscribing
	m.transcribing.Add(1)
	defer m.transcribing.Add(-1)
	release()

	m.logger.Infof("session %s: stopped after %dms, %d samples @ %d Hz", rec.ID, rec.DurationMs, len(samples), rate)
	m.events.Emit(Event{Type: EventRecordingStopped, SessionID: rec.ID})
	m.events.Emit(Event{Type: EventTranscriptionStarted, SessionID: rec.ID})

	began := time.Now()
	pcm, err := audio.ResampleTo16kHz(samples, rate)
	if err != nil {
		return Result{}, m.fail(rec, fmt.Sprintf("Resampling failed: %v", err), err)
	}
	pcm = m.maybeTrim(rec.ID, pcm)

	text, modelID, err := m.transcribe(ctx, pcm)
	if err != nil {
		return Result{}, m.fail(rec, fmt.Sprintf("Transcription failed: %v", err), err)
	}
	elapsed := time.Since(began).Milliseconds()
	if modelID != "" {
		rec.ModelID = modelID
	}
	m.finish(rec, StatusCompleted, text, "")
	m.logger.Infof("session %s: transcribed %d chars in %dms", rec.ID, len(text), elapsed)
	m.events.Emit(Event{Type: EventTranscriptionCompleted, SessionID: rec.ID, Text: text})

	if m.hist != nil {
		h := Handoff{
			SessionID:               rec.ID,
			Text:                    text,
			Samples:                 pcm,
			SampleRate:              audio.TargetRate,
			ModelID:                 rec.ModelID,
			Device:                  rec.Device,
			RecordingDurationMs:     rec.DurationMs,
			TranscriptionDurationMs: elapsed,
			CreatedAt:               rec.StartedAt,
		}
		if err := m.hist.Save(ctx, h); err != nil {
			m.logger.Warnf("session %s: history save failed: %v", rec.ID, err)
		}
	}
	return Result{
		SessionID:           rec.ID,
		Text:                text,
		DurationMs:          elapsed,
		RecordingDurationMs: rec.DurationMs,
		ModelID:             rec.ModelID,
	}, nil
}

func (m *Manager) maybeTrim(id string, pcm []float32) []float32 {
	m.prefsMu.RLock()
	on, mode := m.trimSilence, m.vadMode
	m.prefsMu.RUnlock()
	if !on || len(pcm) == 0 {
		return pcm
	}
	trimmed, err := audio.TrimSilence(pcm, mode)
	if err != nil {
		m.logger.Warnf("session %s: silence trim skipped: %v", id, err)
		return pcm
	}
	return trimmed
}

// transcribe holds the engine read lock for the whole call so the engine
// cannot be closed underneath it. Empty audio never reaches the engine.
func (m *Manager) transcribe(ctx context.Context, pcm []float32) (string, string, error) {
	m.engineMu.RLock()
	defer m.engineMu.RUnlock()
	if m.engine == nil {
		return "", "", ErrNoModelSelected
	}
	if len(pcm) == 0 {
		return "", m.modelID, nil
	}
	text, err := m.engine.Transcribe(ctx, pcm)
	return text, m.modelID, err
}

func (m *Manager) fail(rec *Record, msg string, cause error) error {
	m.logger.Errorf("session %s: %s", rec.ID, msg)
	m.finish(rec, StatusFailed, "", msg)
	m.events.Emit(Event{Type: EventTranscriptionFailed, SessionID: rec.ID, Message: msg})
	return wrap(CodeTranscriptionFailed, msg, cause)
}

func (m *Manager) finish(rec *Record, st Status, text, errMsg string) {
	rec.Status = st
	rec.Transcription = text
	rec.Error = errMsg
	done := *rec
	m.captureMu.Lock()
	m.last = &done
	m.captureMu.Unlock()
}

// Cancel discards the live session without transcribing it.
func (m *Manager) Cancel() error {
	release, err := m.claim()
	if err != nil {
		return err
	}
	defer release()

	c, rec := m.takeCapture()
	if c == nil {
		return ErrNotRecording
	}
	c.Discard()
	release()
	m.logger.Infof("session %s: cancelled", rec.ID)
	m.events.Emit(Event{Type: EventRecordingCancelled, SessionID: rec.ID})
	return nil
}

// Current returns the live session, if any.
func (m *Manager) Current() (Record, bool) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if m.current == nil {
		return Record{}, false
	}
	return *m.current, true
}

// Last returns the most recently finished session, if any.
func (m *Manager) Last() (Record, bool) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if m.last == nil {
		return Record{}, false
	}
	return *m.last, true
}

// Snapshot summarizes the manager state.
func (m *Manager) Snapshot() Snapshot {
	loaded, modelID := m.engineInfo()
	s := Snapshot{
		Recording:    m.IsRecording(),
		Transcribing: int(m.transcribing.Load()),
		EngineLoaded: loaded,
		ModelID:      modelID,
	}
	if cur, ok := m.Current(); ok {
		s.SessionID = cur.ID
		s.Device = cur.Device
		s.ElapsedMs = time.Since(cur.StartedAt).Milliseconds()
	}
	if last, ok := m.Last(); ok {
		s.Last = &last
	}
	return s
}

// ListDevices enumerates input devices on the manager's host.
func (m *Manager) ListDevices() ([]audio.DeviceInfo, error) {
	if m.host == nil {
		return nil, wrap(CodeDeviceEnumeration, "device enumeration failed: no audio host", audio.ErrUnsupported)
	}
	devs, err := audio.ListInputDevices(m.host)
	if err != nil {
		return nil, wrap(CodeDeviceEnumeration, err.Error(), err)
	}
	return devs, nil
}

// Close cancels any live session and unloads the engine.
func (m *Manager) Close() error {
	if err := m.Cancel(); err != nil && !errors.Is(err, ErrNotRecording) {
		m.logger.Warnf("cancel on close: %v", err)
	}
	m.engineMu.Lock()
	old := m.engine
	m.engine, m.modelID = nil, ""
	m.engineMu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}
