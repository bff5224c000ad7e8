package output

import (
	"context"
	"errors"
	"strings"

	"murmur/internal/config"

	"github.com/atotto/clipboard"
	"github.com/sirupsen/logrus"
)

// Deliverer fans a transcript out to every enabled target.
type Deliverer struct {
	hook      *Hook
	clipboard bool
	copy      func(string) error
	logger    *logrus.Logger
}

// NewDeliverer builds the targets enabled in cfg.
func NewDeliverer(cfg *config.Config, logger *logrus.Logger) *Deliverer {
	hc := cfg.Output.Hook
	return &Deliverer{
		hook: NewHook(HookOptions{
			Command:     hc.Command,
			Args:        hc.Args,
			Prefix:      hc.Prefix,
			TimeoutSec:  hc.TimeoutSec,
			CooldownSec: hc.CooldownSec,
			RedactPII:   hc.RedactPII,
			Env:         hc.Env,
		}, logger),
		clipboard: cfg.Output.Clipboard,
		copy:      clipboard.WriteAll,
		logger:    logger,
	}
}

// Enabled reports whether any target is configured.
func (d *Deliverer) Enabled() bool { return d.clipboard || d.hook.Enabled() }

// CarryCooldown adopts prev's last hook run, so a deliverer rebuilt on
// config reload keeps honoring cooldown_sec.
func (d *Deliverer) CarryCooldown(prev *Deliverer) {
	if prev == nil || prev.hook == nil {
		return
	}
	prev.hook.mu.Lock()
	last := prev.hook.lastRun
	prev.hook.mu.Unlock()

	d.hook.mu.Lock()
	if last.After(d.hook.lastRun) {
		d.hook.lastRun = last
	}
	d.hook.mu.Unlock()
}

// Deliver sends job to all targets. Empty transcripts are skipped.
// Every target is attempted; their errors are joined.
func (d *Deliverer) Deliver(ctx context.Context, job Job) error {
	if strings.TrimSpace(job.Text) == "" {
		return nil
	}
	var errs []error
	if d.clipboard {
		if err := d.copy(job.Text); err != nil {
			errs = append(errs, err)
		}
	}
	switch {
	case !d.hook.Enabled():
	case !d.hook.ShouldRun():
		d.logger.Debug("hook skipped (cooldown)")
	default:
		if err := d.hook.Run(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
