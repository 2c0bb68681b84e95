package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Names of the process-wide speech capabilities.
const (
	Recognition = "stt"
	Synthesis   = "tts"
)

var (
	ErrUnknown     = errors.New("capability not registered")
	ErrUnavailable = errors.New("capability unavailable")
	ErrBusy        = errors.New("capability in use")
)

type Capability struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Exclusive bool      `json:"exclusive"`
	Holder    string    `json:"holder,omitempty"`
	Since     time.Time `json:"since,omitempty"`
}

// Registry tracks which speech capabilities this process has and hands out
// leases on the exclusive ones.
type Registry struct {
	log         *slog.Logger
	mu          sync.RWMutex
	caps        map[string]*Capability
	meter       metric.Meter
	availGauge  metric.Int64ObservableGauge
	leasedGauge metric.Int64ObservableGauge
}

func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{
		log:   log.With(slog.String("component", "capability-registry")),
		caps:  make(map[string]*Capability),
		meter: otel.Meter("github.com/loqalabs/loqa-concierge/capability"),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

// Register declares a capability. Exclusive capabilities allow one holder at a time.
func (r *Registry) Register(name string, available, exclusive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.caps[name] = &Capability{Name: name, Available: available, Exclusive: exclusive}
	r.log.Info("capability registered",
		slog.String("name", name),
		slog.Bool("available", available),
		slog.Bool("exclusive", exclusive))
}

func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caps[name]
	return ok && c.Available
}

// Acquire leases the capability to holder. The returned release func is
// safe to call more than once.
func (r *Registry) Acquire(name, holder string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	if !c.Available {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	if !c.Exclusive {
		return func() {}, nil
	}
	if c.Holder != "" {
		return nil, fmt.Errorf("%w: %s held by %s", ErrBusy, name, c.Holder)
	}
	c.Holder = holder
	c.Since = time.Now().UTC()

	var once sync.Once
	return func() {
		once.Do(func() { r.release(name, holder) })
	}, nil
}

func (r *Registry) release(name, holder string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.caps[name]; ok && c.Holder == holder {
		c.Holder = ""
		c.Since = time.Time{}
	}
}

func (r *Registry) Query(filter func(Capability) bool) []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []Capability
	for _, c := range r.caps {
		copy := *c
		if filter == nil || filter(copy) {
			results = append(results, copy)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func WithAvailableFilter() func(Capability) bool {
	return func(c Capability) bool { return c.Available }
}

func WithLeasedFilter() func(Capability) bool {
	return func(c Capability) bool { return c.Holder != "" }
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	avail, err := r.meter.Int64ObservableGauge("concierge.capabilities.available", metric.WithDescription("Speech capabilities present in this process"))
	if err != nil {
		return err
	}
	leased, err := r.meter.Int64ObservableGauge("concierge.capabilities.leased", metric.WithDescription("Exclusive capabilities currently leased"))
	if err != nil {
		return err
	}
	r.availGauge = avail
	r.leasedGauge = leased
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		available, inUse := r.snapshotCounts()
		obs.ObserveInt64(avail, available)
		obs.ObserveInt64(leased, inUse)
		return nil
	}, avail, leased)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var available, leased int64
	for _, c := range r.caps {
		if c.Available {
			available++
		}
		if c.Holder != "" {
			leased++
		}
	}
	return available, leased
}
