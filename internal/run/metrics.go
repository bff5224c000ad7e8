package run

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"murmur/internal/session"
)

type metrics struct {
	started         atomic.Int64
	completed       atomic.Int64
	failed          atomic.Int64
	cancelled       atomic.Int64
	amplitude       atomic.Int64
	eventsDropped   atomic.Int64
	delivered       atomic.Int64
	deliveryFailed  atomic.Int64
	deliveryDropped atomic.Int64
	lastRecordingMs atomic.Int64
}

func (m *metrics) observe(ev session.Event) {
	switch ev.Type {
	case session.EventRecordingStarted:
		m.started.Add(1)
	case session.EventTranscriptionCompleted:
		m.completed.Add(1)
	case session.EventTranscriptionFailed:
		m.failed.Add(1)
	case session.EventRecordingCancelled:
		m.cancelled.Add(1)
	case session.EventAmplitudeUpdate:
		m.amplitude.Add(1)
	}
}

func (m *metrics) snapshot() map[string]int64 {
	return map[string]int64{
		"sessions_started":   m.started.Load(),
		"sessions_completed": m.completed.Load(),
		"sessions_failed":    m.failed.Load(),
		"sessions_cancelled": m.cancelled.Load(),
		"amplitude_events":   m.amplitude.Load(),
		"events_dropped":     m.eventsDropped.Load(),
		"deliveries":         m.delivered.Load(),
		"delivery_failures":  m.deliveryFailed.Load(),
		"deliveries_dropped": m.deliveryDropped.Load(),
		"last_recording_ms":  m.lastRecordingMs.Load(),
	}
}

func (m *metrics) handler(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "murmur_sessions_started_total %d\n", m.started.Load())
	fmt.Fprintf(w, "murmur_sessions_completed_total %d\n", m.completed.Load())
	fmt.Fprintf(w, "murmur_sessions_failed_total %d\n", m.failed.Load())
	fmt.Fprintf(w, "murmur_sessions_cancelled_total %d\n", m.cancelled.Load())
	fmt.Fprintf(w, "murmur_amplitude_events_total %d\n", m.amplitude.Load())
	fmt.Fprintf(w, "murmur_events_dropped_total %d\n", m.eventsDropped.Load())
	fmt.Fprintf(w, "murmur_deliveries_total %d\n", m.delivered.Load())
	fmt.Fprintf(w, "murmur_delivery_failures_total %d\n", m.deliveryFailed.Load())
	fmt.Fprintf(w, "murmur_deliveries_dropped_total %d\n", m.deliveryDropped.Load())
	fmt.Fprintf(w, "murmur_last_recording_ms %d\n", m.lastRecordingMs.Load())
}

func (s *Server) metricsServe(ctxDone <-chan struct{}, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.metrics.handler)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	s.logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warnf("metrics server: %v", err)
	}
}
