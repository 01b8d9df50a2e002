package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultOK    = "ok"
	resultError = "error"
)

type Metrics struct {
	Ops *prometheus.CounterVec
}

// NewMetrics registers cache counters on reg. A nil reg yields working but
// unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_cache_operations_total",
				Help: "Cache operations by namespace, operation and result",
			},
			[]string{"namespace", "op", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Ops)
	}
	return m
}

// Deps are shared by every namespace.
type Deps struct {
	Backend Backend
	Log     *zap.Logger
	Metrics *Metrics
}

// namespace wraps a Backend and absorbs its failures: a broken backend reads
// as a miss and writes become no-ops.
type namespace struct {
	name    string
	ttl     time.Duration
	backend Backend
	log     *zap.Logger
	metrics *Metrics
}

func newNamespace(name string, ttl time.Duration, d Deps) namespace {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	return namespace{
		name:    name,
		ttl:     ttl,
		backend: d.Backend,
		log:     d.Log.With(zap.String("cache", name)),
		metrics: d.Metrics,
	}
}

func (n namespace) observe(op, result string) {
	n.metrics.Ops.WithLabelValues(n.name, op, result).Inc()
}

func (n namespace) get(ctx context.Context, key string, dst any) bool {
	raw, err := n.backend.Get(ctx, key)
	switch {
	case errors.Is(err, ErrMiss):
		n.observe("get", resultMiss)
		return false
	case err != nil:
		n.observe("get", resultError)
		n.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		n.observe("get", resultError)
		n.log.Warn("cache entry undecodable, dropping", zap.String("key", key), zap.Error(err))
		n.del(ctx, key)
		return false
	}

	n.observe("get", resultHit)
	return true
}

func (n namespace) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		n.observe("set", resultError)
		n.log.Warn("cache entry unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := n.backend.Set(ctx, key, raw, n.ttl); err != nil {
		n.observe("set", resultError)
		n.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	n.observe("set", resultOK)
}

func (n namespace) del(ctx context.Context, keys ...string) {
	if err := n.backend.Del(ctx, keys...); err != nil {
		n.observe("del", resultError)
		n.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return
	}
	n.observe("del", resultOK)
}

func (n namespace) keys(ctx context.Context, prefix string) []string {
	keys, err := n.backend.Keys(ctx, prefix)
	if err != nil {
		n.observe("scan", resultError)
		n.log.Warn("cache scan failed", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	n.observe("scan", resultOK)
	return keys
}
