package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"murmur/internal/audio"
	"murmur/internal/config"
	"murmur/internal/control"
	"murmur/internal/history"
	"murmur/internal/hotkey"
	"murmur/internal/output"
	"murmur/internal/session"
	"murmur/internal/transcribe"

	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"
)

// engineLoader builds the configured transcription engine.
type engineLoader func(cfg *config.Config, logger *logrus.Logger) (session.Engine, string, error)

func loadConfiguredEngine(cfg *config.Config, logger *logrus.Logger) (session.Engine, string, error) {
	e, id, err := transcribe.Load(cfg, logger)
	if err != nil {
		return nil, "", err
	}
	return e, id, nil
}

// Server owns the session manager and everything that talks to it:
// control socket, hotkeys, transcript delivery, notifications and metrics.
type Server struct {
	cfgMu  sync.RWMutex
	cfg    *config.Config
	logger *logrus.Logger

	mgr        *session.Manager
	host       audio.Host
	hist       *history.Store
	deliver    *output.Deliverer
	loadEngine engineLoader
	notifyFn   func(title, message string) error

	startedAt time.Time
	metrics   metrics
	hub       *hub
	deliverCh chan output.Job

	wg sync.WaitGroup
}

func newServer(cfg *config.Config, logger *logrus.Logger, host audio.Host, store *history.Store) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		host:       host,
		hist:       store,
		deliver:    output.NewDeliverer(cfg, logger),
		loadEngine: loadConfiguredEngine,
		notifyFn: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		startedAt: time.Now(),
		hub:       newHub(),
		deliverCh: make(chan output.Job, deliveryQueueSize),
	}
	opts := session.Options{
		Host:          host,
		Logger:        logger,
		Events:        s,
		DeviceName:    cfg.Audio.DeviceName,
		BufferSeconds: cfg.Audio.BufferMinutes * 60,
		TrimSilence:   cfg.VAD.TrimSilence,
		VADMode:       cfg.VAD.Aggressiveness,
	}
	if store != nil {
		opts.History = store
	}
	s.mgr = session.NewManager(opts)
	return s
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Server) deliverer() *output.Deliverer {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.deliver
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	host, err := audio.NewHost()
	if err != nil {
		// Still serve history and status; start will report the microphone.
		logger.Warnf("audio host: %v", err)
		host = nil
	} else {
		defer func() { _ = host.Close() }()
	}
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(history.Options{
			Dir:        cfg.Paths.HistoryDir,
			MaxEntries: cfg.History.MaxEntries,
			SaveAudio:  cfg.History.SaveAudio,
			Logger:     logger,
		})
		if err != nil {
			logger.Warnf("history disabled: %v", err)
			store = nil
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warnf("history close: %v", err)
				}
			}()
		}
	}

	srv := newServer(cfg, logger, host, store)
	defer func() {
		if err := srv.mgr.Close(); err != nil {
			logger.Warnf("session close: %v", err)
		}
	}()
	if err := srv.reloadEngine(cfg); err != nil {
		logger.Warnf("transcription engine not loaded: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.controlLoop(ctx)

	srv.wg.Add(1)
	go srv.deliveryWorker(ctx)

	go srv.hotkeyLoop(ctx)

	if cfg.Metrics.Enabled {
		go srv.metricsServe(ctx.Done(), cfg.Metrics.Addr)
	}

	logger.Infof("murmur ready (mode=%s engine=%s)", cfg.Recording.Mode, cfg.ASR.Engine)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		logger.Infof("received signal %s, shutting down", sig)
	case <-ctx.Done():
	}
	if srv.mgr.IsRecording() {
		_ = srv.mgr.Cancel()
	}
	cancel()
	srv.wg.Wait()
	return nil
}

// Emit implements session.EventSink. It runs on the audio thread for
// amplitude updates, so everything here must return promptly.
func (s *Server) Emit(ev session.Event) {
	s.metrics.observe(ev)
	if n := s.hub.publish(ev); n > 0 {
		s.metrics.eventsDropped.Add(int64(n))
	}
	if ev.Type == session.EventAmplitudeUpdate {
		return
	}
	s.logger.WithField("session", ev.SessionID).Debugf("event %s", ev.Type)
	if !s.config().Notify.Enabled {
		return
	}
	switch ev.Type {
	case session.EventRecordingStarted:
		s.notify("Recording started")
	case session.EventTranscriptionFailed:
		s.notify("Transcription failed: " + ev.Message)
	}
}

func (s *Server) notify(message string) {
	go func() {
		if err := s.notifyFn("murmur", message); err != nil {
			s.logger.Debugf("notify: %v", err)
		}
	}()
}

func (s *Server) start() (string, error) {
	id, err := s.mgr.Start()
	if err != nil {
		s.logger.Warnf("start: %v", err)
		return "", err
	}
	s.logger.Infof("recording %s", id)
	return id, nil
}

// stop finishes the active session and queues its transcript for delivery.
func (s *Server) stop(ctx context.Context) (session.Result, error) {
	res, err := s.mgr.Stop(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNotRecording) {
			s.logger.Errorf("stop: %v", err)
		}
		return res, err
	}
	s.metrics.lastRecordingMs.Store(res.RecordingDurationMs)
	s.logger.Infof("transcribed %s in %dms: %q", res.SessionID, res.DurationMs, res.Text)
	s.enqueueDelivery(output.Job{SessionID: res.SessionID, Text: res.Text, Timestamp: time.Now()})
	return res, nil
}

func (s *Server) reloadEngine(cfg *config.Config) error {
	e, modelID, err := s.loadEngine(cfg, s.logger)
	if err != nil {
		return err
	}
	if err := s.mgr.LoadEngine(e, modelID); err != nil {
		_ = e.Close()
		return err
	}
	s.logger.Infof("transcription engine %s loaded", modelID)
	return nil
}

// reload re-reads the config file and applies engine, device, VAD,
// delivery and mode changes. It is refused while a session is active.
func (s *Server) reload() error {
	cur := s.config()
	cfg := cur
	if cur.Paths.ConfigPath != "" {
		fresh, err := config.Load(cur.Paths.ConfigPath)
		if err != nil {
			return err
		}
		cfg = fresh
	}
	if err := s.reloadEngine(cfg); err != nil {
		return err
	}
	s.mgr.SetDevice(cfg.Audio.DeviceName)
	s.mgr.SetTrimSilence(cfg.VAD.TrimSilence, cfg.VAD.Aggressiveness)
	next := output.NewDeliverer(cfg, s.logger)
	s.cfgMu.Lock()
	next.CarryCooldown(s.deliver)
	s.cfg = cfg
	s.deliver = next
	s.cfgMu.Unlock()
	return nil
}

func (s *Server) hotkeyLoop(ctx context.Context) {
	bindings, err := hotkey.ParseBindings(config.HotkeySpecs(s.config()))
	if err != nil {
		s.logger.Errorf("hotkeys: %v", err)
		return
	}
	l, err := hotkey.NewListener(bindings, s.logger)
	if err != nil {
		if errors.Is(err, hotkey.ErrUnsupported) {
			s.logger.Info("global hotkeys unavailable in this build; use `murmur record`")
		} else {
			s.logger.Errorf("hotkeys: %v", err)
		}
		return
	}
	events := make(chan hotkey.Event, 8)
	go func() {
		if err := l.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorf("hotkey listener: %v", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.handleHotkey(ctx, ev)
		}
	}
}

// handleHotkey resolves a binding event against the current mode and
// recording state, and carries out the response. Stops run in the
// background so the listener keeps draining key events.
func (s *Server) handleHotkey(ctx context.Context, ev hotkey.Event) hotkey.Response {
	mode := hotkey.Mode(s.config().Recording.Mode)
	resp := hotkey.Resolve(ev, mode, s.mgr.IsRecording())
	switch resp {
	case hotkey.StartRecording:
		_, _ = s.start()
	case hotkey.StopAndTranscribe:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.stop(ctx)
		}()
	case hotkey.CancelRecording:
		if err := s.mgr.Cancel(); err != nil {
			s.logger.Debugf("cancel: %v", err)
		}
	case hotkey.ShowSettings, hotkey.ShowTargetSelector:
		s.logger.Infof("hotkey %s: no settings UI attached", resp)
	}
	return resp
}

func (s *Server) controlLoop(ctx context.Context) {
	ln, err := net.Listen("unix", s.config().Paths.SocketPath)
	if err != nil {
		s.logger.Errorf("control listen: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Debugf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	enc := json.NewEncoder(conn)
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = enc.Encode(control.Response{Message: "bad request: " + err.Error()})
		return
	}
	if req.Op == control.OpEvents {
		s.streamEvents(ctx, conn, enc)
		return
	}
	_ = enc.Encode(s.dispatch(ctx, req))
}

func (s *Server) dispatch(ctx context.Context, req control.Request) control.Response {
	switch req.Op {
	case control.OpStatus:
		st := s.status()
		return control.Response{OK: true, Status: &st}
	case control.OpHealth:
		return control.Response{OK: true, Message: "ok"}
	case control.OpStart:
		id, err := s.start()
		if err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, SessionID: id}
	case control.OpStop:
		return s.stopResponse(ctx)
	case control.OpToggle:
		if s.mgr.IsRecording() {
			return s.stopResponse(ctx)
		}
		id, err := s.start()
		if err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, SessionID: id}
	case control.OpCancel:
		if err := s.mgr.Cancel(); err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true}
	case control.OpDevices:
		devs, err := s.mgr.ListDevices()
		if err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, Devices: devs}
	case control.OpSetDevice:
		s.mgr.SetDevice(req.Device)
		return control.Response{OK: true, Message: "device set for next recording"}
	case control.OpReloadEngine:
		if err := s.reload(); err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, Message: "reloaded"}
	case control.OpHistoryList, control.OpHistoryGet, control.OpHistoryDelete, control.OpHistoryClear, control.OpHistoryAudio:
		return s.historyOp(req)
	default:
		return control.Response{Message: "unknown op " + req.Op}
	}
}

func (s *Server) stopResponse(ctx context.Context) control.Response {
	res, err := s.stop(ctx)
	if err != nil {
		return control.ErrorResponse(err)
	}
	return control.Response{OK: true, SessionID: res.SessionID, Result: &res}
}

func (s *Server) historyOp(req control.Request) control.Response {
	if s.hist == nil {
		return control.Response{Message: "history is disabled"}
	}
	switch req.Op {
	case control.OpHistoryList:
		entries, err := s.hist.List(req.Limit)
		if err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, History: entries}
	case control.OpHistoryGet:
		e, err := s.hist.Get(req.ID)
		if err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, Entry: &e}
	case control.OpHistoryDelete:
		if err := s.hist.Delete(req.ID); err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true}
	case control.OpHistoryAudio:
		wav, err := s.hist.LoadAudio(req.ID)
		if err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true, Audio: wav}
	default:
		if err := s.hist.Clear(); err != nil {
			return control.ErrorResponse(err)
		}
		return control.Response{OK: true}
	}
}

func (s *Server) status() control.Status {
	cfg := s.config()
	return control.Status{
		Running:   true,
		UptimeSec: time.Since(s.startedAt).Seconds(),
		Mode:      cfg.Recording.Mode,
		Engine:    cfg.ASR.Engine,
		Session:   s.mgr.Snapshot(),
		Metrics:   s.metrics.snapshot(),
	}
}

// streamEvents acknowledges the subscription, then writes one JSON event
// per line until the client disconnects or the daemon stops.
func (s *Server) streamEvents(ctx context.Context, conn net.Conn, enc *json.Encoder) {
	sub, unsubscribe := s.hub.subscribe()
	defer unsubscribe()
	if err := enc.Encode(control.Response{OK: true, Message: "subscribed"}); err != nil {
		return
	}
	gone := make(chan struct{})
	go func() {
		// Any read result means the client closed or misbehaved.
		var buf [1]byte
		_, _ = conn.Read(buf[:])
		close(gone)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case ev := <-sub.C:
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
	}
}
