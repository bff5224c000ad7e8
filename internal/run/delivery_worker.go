package run

import (
	"context"
	"time"

	"murmur/internal/output"
)

const deliveryQueueSize = 16

func (s *Server) enqueueDelivery(job output.Job) {
	if d := s.deliverer(); d == nil || !d.Enabled() {
		return
	}
	select {
	case s.deliverCh <- job:
	default:
		s.metrics.deliveryDropped.Add(1)
		s.logger.Warn("delivery queue full, dropping transcript")
	}
}

func (s *Server) deliveryWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.deliverCh:
			dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := s.deliverer().Deliver(dctx, job)
			cancel()
			if err != nil {
				s.metrics.deliveryFailed.Add(1)
				s.logger.Errorf("deliver %s: %v", job.SessionID, err)
				continue
			}
			s.metrics.delivered.Add(1)
		}
	}
}
