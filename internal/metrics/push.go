package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushConfig addresses a Prometheus Pushgateway.
type PushConfig struct {
	URL      string
	Job      string
	Instance string
}

// Push replaces the metrics of the job's group on the Pushgateway with the
// current contents of gatherer. Run processes exit right after a scan, so
// this is how their counters outlive them.
func Push(ctx context.Context, cfg PushConfig, gatherer prometheus.Gatherer) error {
	if cfg.URL == "" {
		return errors.New("pushgateway url is required")
	}
	if cfg.Job == "" {
		return errors.New("push job name is required")
	}
	pusher := push.New(cfg.URL, cfg.Job).Gatherer(gatherer)
	if cfg.Instance != "" {
		pusher = pusher.Grouping("instance", cfg.Instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.URL, err)
	}
	return nil
}
