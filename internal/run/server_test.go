package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/internal/audio/audiotest"
	"murmur/internal/config"
	"murmur/internal/control"
	"murmur/internal/history"
	"murmur/internal/hotkey"
	"murmur/internal/logging"
	"murmur/internal/output"
	"murmur/internal/session"
	"murmur/internal/transcribe"

	"github.com/sirupsen/logrus"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	dir := t.TempDir()
	cfg.Paths.StateDir = dir
	cfg.Paths.SocketPath = filepath.Join(dir, "murmur.sock")
	cfg.Paths.PidPath = filepath.Join(dir, "murmur.pid")
	cfg.Paths.HistoryDir = filepath.Join(dir, "history")
	cfg.Audio.BufferMinutes = 1
	cfg.ASR.Engine = config.EngineEcho
	cfg.ASR.EchoText = "hello world"
	return cfg
}

func testServer(t *testing.T, cfg *config.Config, store *history.Store) (*Server, *audiotest.Host) {
	t.Helper()
	host := audiotest.New()
	s := newServer(cfg, logging.NewTestLogger(), host, store)
	s.notifyFn = func(string, string) error { return nil }
	if err := s.reloadEngine(cfg); err != nil {
		t.Fatalf("load engine: %v", err)
	}
	t.Cleanup(func() { _ = s.mgr.Close() })
	return s, host
}

func call(t *testing.T, s *Server, req control.Request) control.Response {
	t.Helper()
	client, srv := net.Pipe()
	defer client.Close()
	go s.handleConn(context.Background(), srv)
	if err := json.NewEncoder(client).Encode(req); err != nil {
		t.Fatalf("send %s: %v", req.Op, err)
	}
	var resp control.Response
	if err := json.NewDecoder(client).Decode(&resp); err != nil {
		t.Fatalf("read %s: %v", req.Op, err)
	}
	return resp
}

// speak feeds 100 ms of stereo audio into the live stream.
func speak(t *testing.T, host *audiotest.Host) {
	t.Helper()
	buf := make([]float32, 9600)
	for i := range buf {
		buf[i] = 0.25
	}
	if err := host.Last().Feed(buf); err != nil {
		t.Fatalf("feed: %v", err)
	}
}

func TestControlStartStop(t *testing.T) {
	s, host := testServer(t, testConfig(t), nil)

	resp := call(t, s, control.Request{Op: control.OpStart})
	if !resp.OK || resp.SessionID == "" {
		t.Fatalf("start: %+v", resp)
	}
	if again := call(t, s, control.Request{Op: control.OpStart}); again.OK || again.Code != string(session.CodeAlreadyRecording) {
		t.Fatalf("second start: %+v", again)
	}
	speak(t, host)

	stop := call(t, s, control.Request{Op: control.OpStop})
	if !stop.OK || stop.Result == nil {
		t.Fatalf("stop: %+v", stop)
	}
	if stop.Result.Text != "hello world" || stop.Result.SessionID != resp.SessionID {
		t.Fatalf("result = %+v", stop.Result)
	}
	if s.metrics.started.Load() != 1 || s.metrics.completed.Load() != 1 {
		t.Fatalf("metrics = %v", s.metrics.snapshot())
	}

	idle := call(t, s, control.Request{Op: control.OpStop})
	if !errors.Is(idle.Err(), session.ErrNotRecording) {
		t.Fatalf("idle stop err = %v", idle.Err())
	}
}

func TestControlToggleAndCancel(t *testing.T) {
	s, _ := testServer(t, testConfig(t), nil)

	if resp := call(t, s, control.Request{Op: control.OpToggle}); !resp.OK || resp.SessionID == "" {
		t.Fatalf("toggle on: %+v", resp)
	}
	if resp := call(t, s, control.Request{Op: control.OpCancel}); !resp.OK {
		t.Fatalf("cancel: %+v", resp)
	}
	if s.mgr.IsRecording() {
		t.Fatalf("still recording after cancel")
	}
	if resp := call(t, s, control.Request{Op: control.OpCancel}); resp.Code != string(session.CodeNotRecording) {
		t.Fatalf("idle cancel: %+v", resp)
	}

	call(t, s, control.Request{Op: control.OpToggle})
	resp := call(t, s, control.Request{Op: control.OpToggle})
	if !resp.OK || resp.Result == nil {
		t.Fatalf("toggle off: %+v", resp)
	}
}

func TestControlStatusDevicesHealth(t *testing.T) {
	s, _ := testServer(t, testConfig(t), nil)

	st := call(t, s, control.Request{Op: control.OpStatus})
	if !st.OK || st.Status == nil || !st.Status.Running || !st.Status.Session.EngineLoaded {
		t.Fatalf("status: %+v", st)
	}
	if st.Status.Session.ModelID != "echo" || st.Status.Mode != config.ModeToggle {
		t.Fatalf("status fields: %+v", st.Status)
	}
	devs := call(t, s, control.Request{Op: control.OpDevices})
	if !devs.OK || len(devs.Devices) != 2 {
		t.Fatalf("devices: %+v", devs)
	}
	if h := call(t, s, control.Request{Op: control.OpHealth}); !h.OK {
		t.Fatalf("health: %+v", h)
	}
	if u := call(t, s, control.Request{Op: "bogus"}); u.OK || !strings.Contains(u.Message, "unknown op") {
		t.Fatalf("unknown op: %+v", u)
	}
}

func TestControlSetDeviceUsedOnNextStart(t *testing.T) {
	s, host := testServer(t, testConfig(t), nil)
	if resp := call(t, s, control.Request{Op: control.OpSetDevice, Device: "USB Mic"}); !resp.OK {
		t.Fatalf("set-device: %+v", resp)
	}
	call(t, s, control.Request{Op: control.OpStart})
	if got := host.Last().Device.Name; got != "USB Mic" {
		t.Fatalf("opened %q", got)
	}
}

func TestControlNoEngine(t *testing.T) {
	cfg := testConfig(t)
	s := newServer(cfg, logging.NewTestLogger(), audiotest.New(), nil)
	resp := call(t, s, control.Request{Op: control.OpStart})
	if !errors.Is(resp.Err(), session.ErrNoModelSelected) {
		t.Fatalf("start without engine: %+v", resp)
	}
}

func TestControlReloadEngine(t *testing.T) {
	cfg := testConfig(t)
	s, _ := testServer(t, cfg, nil)
	var loads int
	s.loadEngine = func(*config.Config, *logrus.Logger) (session.Engine, string, error) {
		loads++
		return transcribe.NewEcho("reloaded"), "echo", nil
	}
	if resp := call(t, s, control.Request{Op: control.OpReloadEngine}); !resp.OK {
		t.Fatalf("reload: %+v", resp)
	}
	call(t, s, control.Request{Op: control.OpStart})
	if resp := call(t, s, control.Request{Op: control.OpReloadEngine}); resp.Code != string(session.CodeAlreadyRecording) {
		t.Fatalf("reload while recording: %+v", resp)
	}
	if loads != 2 {
		t.Fatalf("loads = %d", loads)
	}
	// Nothing was fed, so the engine is never asked.
	stop := call(t, s, control.Request{Op: control.OpStop})
	if stop.Result == nil || stop.Result.Text != "" {
		t.Fatalf("stop: %+v", stop)
	}
}

func TestReloadKeepsHookCooldown(t *testing.T) {
	cfg := testConfig(t)
	out := filepath.Join(t.TempDir(), "runs.txt")
	cfg.Output.Hook.Command = "/bin/sh -c 'echo run >> " + out + "'"
	cfg.Output.Hook.CooldownSec = 60
	s, _ := testServer(t, cfg, nil)

	job := output.Job{SessionID: "a", Text: "first", Timestamp: time.Now()}
	if err := s.deliverer().Deliver(context.Background(), job); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := s.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	job.Text = "second"
	if err := s.deliverer().Deliver(context.Background(), job); err != nil {
		t.Fatalf("deliver after reload: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "run"); got != 1 {
		t.Fatalf("hook ran %d times, want 1", got)
	}
}

func TestControlHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := history.Open(history.Options{Dir: cfg.Paths.HistoryDir, InMemory: true, SaveAudio: true, Logger: logging.NewTestLogger()})
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	s, host := testServer(t, cfg, store)

	start := call(t, s, control.Request{Op: control.OpStart})
	speak(t, host)
	call(t, s, control.Request{Op: control.OpStop})

	list := call(t, s, control.Request{Op: control.OpHistoryList, Limit: 10})
	if !list.OK || len(list.History) != 1 || list.History[0].ID != start.SessionID {
		t.Fatalf("history list: %+v", list)
	}
	get := call(t, s, control.Request{Op: control.OpHistoryGet, ID: start.SessionID})
	if !get.OK || get.Entry == nil || get.Entry.Text != "hello world" {
		t.Fatalf("history get: %+v", get)
	}
	wav := call(t, s, control.Request{Op: control.OpHistoryAudio, ID: start.SessionID})
	if !wav.OK || len(wav.Audio) < 44 || string(wav.Audio[:4]) != "RIFF" {
		t.Fatalf("history audio: ok=%v %d bytes %s", wav.OK, len(wav.Audio), wav.Message)
	}
	if del := call(t, s, control.Request{Op: control.OpHistoryDelete, ID: start.SessionID}); !del.OK {
		t.Fatalf("history delete: %+v", del)
	}
	if miss := call(t, s, control.Request{Op: control.OpHistoryGet, ID: start.SessionID}); miss.OK {
		t.Fatalf("deleted entry still served")
	}
	if clr := call(t, s, control.Request{Op: control.OpHistoryClear}); !clr.OK {
		t.Fatalf("history clear: %+v", clr)
	}
}

func TestControlHistoryDisabled(t *testing.T) {
	s, _ := testServer(t, testConfig(t), nil)
	resp := call(t, s, control.Request{Op: control.OpHistoryList})
	if resp.OK || !strings.Contains(resp.Message, "disabled") {
		t.Fatalf("history without store: %+v", resp)
	}
}

func TestEventStream(t *testing.T) {
	s, host := testServer(t, testConfig(t), nil)
	client, srv := net.Pipe()
	defer client.Close()
	go s.handleConn(context.Background(), srv)
	if err := json.NewEncoder(client).Encode(control.Request{Op: control.OpEvents}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rd := bufio.NewReader(client)
	dec := json.NewDecoder(rd)
	var ack control.Response
	if err := dec.Decode(&ack); err != nil || !ack.OK {
		t.Fatalf("ack: %+v %v", ack, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	go func() {
		_, _ = s.mgr.Start()
		buf := make([]float32, 9600)
		_ = host.Last().Feed(buf)
		_, _ = s.mgr.Stop(context.Background())
	}()

	var got []session.EventType
	for len(got) < 4 {
		var ev session.Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != session.EventAmplitudeUpdate {
			got = append(got, ev.Type)
		}
	}
	want := []session.EventType{
		session.EventRecordingStarted,
		session.EventRecordingStopped,
		session.EventTranscriptionStarted,
		session.EventTranscriptionCompleted,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v", got)
		}
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := newHub()
	sub, unsubscribe := h.subscribe()
	dropped := 0
	for i := 0; i < subscriberBuffer+5; i++ {
		dropped += h.publish(session.Event{Type: session.EventAmplitudeUpdate})
	}
	if dropped != 5 || len(sub.C) != subscriberBuffer {
		t.Fatalf("dropped=%d buffered=%d", dropped, len(sub.C))
	}
	unsubscribe()
	unsubscribe()
	if h.count() != 0 {
		t.Fatalf("subscriber not removed")
	}
	if n := h.publish(session.Event{}); n != 0 {
		t.Fatalf("publish with no subscribers dropped %d", n)
	}
}

func TestHubPublishIgnoresWriterLock(t *testing.T) {
	h := newHub()
	sub, unsubscribe := h.subscribe()
	defer unsubscribe()

	h.mu.Lock()
	done := make(chan int)
	go func() { done <- h.publish(session.Event{Type: session.EventAmplitudeUpdate}) }()
	select {
	case n := <-done:
		if n != 0 {
			t.Fatalf("dropped %d", n)
		}
	case <-time.After(time.Second):
		h.mu.Unlock()
		t.Fatalf("publish waited on the subscriber lock")
	}
	h.mu.Unlock()
	if len(sub.C) != 1 {
		t.Fatalf("buffered = %d", len(sub.C))
	}
}

func TestHandleHotkeyToggle(t *testing.T) {
	s, host := testServer(t, testConfig(t), nil)
	press := hotkey.Event{Action: hotkey.ActionToggleRecording, Pressed: true}
	release := hotkey.Event{Action: hotkey.ActionToggleRecording, Pressed: false}

	if r := s.handleHotkey(context.Background(), press); r != hotkey.StartRecording || !s.mgr.IsRecording() {
		t.Fatalf("first press = %v", r)
	}
	if r := s.handleHotkey(context.Background(), release); r != hotkey.NoOp {
		t.Fatalf("release = %v", r)
	}
	speak(t, host)
	if r := s.handleHotkey(context.Background(), press); r != hotkey.StopAndTranscribe {
		t.Fatalf("second press = %v", r)
	}
	s.wg.Wait()
	if last, ok := s.mgr.Last(); !ok || last.Transcription != "hello world" {
		t.Fatalf("last = %+v", last)
	}
}

func TestHandleHotkeyPushToTalkAndCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recording.Mode = config.ModePushToTalk
	s, _ := testServer(t, cfg, nil)
	ptt := hotkey.Event{Action: hotkey.ActionPushToTalk, Pressed: true}

	if r := s.handleHotkey(context.Background(), ptt); r != hotkey.StartRecording {
		t.Fatalf("ptt press = %v", r)
	}
	if r := s.handleHotkey(context.Background(), hotkey.Event{Action: hotkey.ActionCancelRecording, Pressed: true}); r != hotkey.CancelRecording {
		t.Fatalf("escape = %v", r)
	}
	if s.mgr.IsRecording() || s.metrics.cancelled.Load() != 1 {
		t.Fatalf("cancel not applied")
	}
	if r := s.handleHotkey(context.Background(), hotkey.Event{Action: hotkey.ActionOpenSettings, Pressed: true}); r != hotkey.ShowSettings {
		t.Fatalf("settings = %v", r)
	}
}

func TestStopQueuesDelivery(t *testing.T) {
	cfg := testConfig(t)
	out := filepath.Join(t.TempDir(), "delivered.txt")
	cfg.Output.Hook.Command = "/bin/sh -c 'printf %s \"$MURMUR_TEXT\" > " + out + "'"
	s, host := testServer(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.wg.Add(1)
	go s.deliveryWorker(ctx)

	call(t, s, control.Request{Op: control.OpStart})
	speak(t, host)
	call(t, s, control.Request{Op: control.OpStop})

	deadline := time.Now().Add(3 * time.Second)
	for s.metrics.delivered.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "hello world" {
		t.Fatalf("delivered %q, %v", data, err)
	}
	cancel()
	s.wg.Wait()
}

func TestNotificationsFollowConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Enabled = true
	s, _ := testServer(t, cfg, nil)
	var mu sync.Mutex
	var msgs []string
	done := make(chan struct{}, 4)
	s.notifyFn = func(_, m string) error {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}
	s.Emit(session.Event{Type: session.EventRecordingStarted})
	s.Emit(session.Event{Type: session.EventAmplitudeUpdate})
	s.Emit(session.Event{Type: session.EventTranscriptionFailed, Message: "boom"})
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %d not sent", i)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 2 {
		t.Fatalf("notifications = %v", msgs)
	}
}
