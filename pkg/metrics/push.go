package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the current values of every collector to a Pushgateway. Each
// command gets its own grouping so an import push does not replace the last
// dedup push.
func Push(ctx context.Context, url, job, command string) error {
	reg := prometheus.NewRegistry()
	RegisterCollectors(reg)
	return push.New(url, job).
		Gatherer(reg).
		Grouping("command", command).
		PushContext(ctx)
}
