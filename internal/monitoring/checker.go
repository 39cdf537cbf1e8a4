package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/config"
)

// DefaultRenotifyAfter is how long an alert for the same condition is
// suppressed after it was sent.
const DefaultRenotifyAfter = time.Hour

// Checker evaluates scrape health on a schedule and notifies the webhook,
// sending each ongoing condition at most once per renotify window.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	renotifyAfter time.Duration
	now           func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector:     collector,
		alerter:       alerter,
		cfg:           cfg,
		renotifyAfter: DefaultRenotifyAfter,
		now:           time.Now,
		lastSent:      make(map[string]time.Time),
	}
}

// Run checks once immediately and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and sends the alerts that are not inside their
// renotify window. It returns every alert that was triggered, sent or not.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.due(alerts)
	if len(fresh) == 0 {
		log.Debug("monitoring: nothing to send", zap.Int("alerts_triggered", len(alerts)))
		return alerts
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_due", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// due filters out alerts sent within the renotify window and marks the rest
// as sent. Conditions that cleared are forgotten so they alert again on
// recurrence.
func (c *Checker) due(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	active := make(map[string]bool, len(alerts))
	var out []Alert
	for _, a := range alerts {
		key := string(a.Type) + "|" + a.Retailer
		active[key] = true
		if last, ok := c.lastSent[key]; ok && now.Sub(last) < c.renotifyAfter {
			continue
		}
		c.lastSent[key] = now
		out = append(out, a)
	}
	for key := range c.lastSent {
		if !active[key] {
			delete(c.lastSent, key)
		}
	}
	return out
}
