package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/config"
)

// Checker sweeps the collector on a fixed interval and routes threshold
// breaches to the alerter. Alerting is edge-triggered: a condition pages
// once when it appears and again only after it has cleared, so a stuck
// fallback rate does not re-page on every sweep.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	active map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]bool),
	}
}

// Run starts the sweep loop, with one sweep up front so a server that comes
// up against an already-degraded store pages immediately instead of waiting
// a full interval. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	c.sweep(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx, log)
		}
	}
}

func (c *Checker) sweep(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect snapshot", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.reconcile(alerts, log)

	if len(fresh) > 0 {
		sent := c.alerter.SendAlerts(ctx, fresh)
		log.Info("monitoring: sweep raised alerts",
			zap.Int("alerts_new", len(fresh)),
			zap.Int("alerts_active", len(alerts)),
			zap.Int("alerts_sent", sent),
		)
		return
	}

	log.Debug("monitoring: sweep complete",
		zap.Int("tickets_total", snap.TicketsTotal),
		zap.Float64("fallback_rate", snap.FallbackRate),
		zap.Int("alerts_active", len(alerts)),
	)
}

// reconcile diffs the sweep's alerts against the active set: it returns the
// newly-raised ones and logs conditions that have cleared since last sweep.
func (c *Checker) reconcile(alerts []Alert, log *zap.Logger) []Alert {
	current := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		current[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}

	for typ := range c.active {
		if !current[typ] {
			log.Info("monitoring: alert condition cleared", zap.String("type", string(typ)))
		}
	}
	c.active = current
	return fresh
}
