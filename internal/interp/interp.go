// Package interp implements the policy stack machine: a resumable,
// priority-driven evaluator that walks compiled policy graphs against
// requests. Executions are cheap per-request objects; the Interpreter itself
// is shared and safe for concurrent Run calls.
package interp

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	internalevents "github.com/strand-labs/strand/internal/events"
	internallogger "github.com/strand-labs/strand/internal/logger"
	internalmetrics "github.com/strand-labs/strand/internal/metrics"
	"github.com/strand-labs/strand/internal/policy"
	v1 "github.com/strand-labs/strand/pkg/strand/v1"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/events"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
	strandmetrics "github.com/strand-labs/strand/pkg/strand/v1/metrics"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
	strandtracing "github.com/strand-labs/strand/pkg/strand/v1/tracing"
)

// Interpreter runs compiled policy sections. It reads the active graph from
// its store on every Run, so a hot reload takes effect for the next request
// without affecting in-flight executions.
type Interpreter struct {
	store   *policy.Store
	log     strandlog.Logger
	bus     events.Bus
	tracer  trace.Tracer
	metrics *interpMetrics

	metricsProvider strandmetrics.RegistryProvider
	tracerProvider  strandtracing.TracerProvider

	// rng feeds keyless load-balance picks. Guarded because Run is
	// concurrent.
	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ v1.Interpreter = (*Interpreter)(nil)

// Option configures the Interpreter during New.
type Option func(*Interpreter)

// WithLogger sets the interpreter's logger. Requests carrying their own
// logger override it per execution.
func WithLogger(l strandlog.Logger) Option {
	return func(i *Interpreter) { i.log = l }
}

// WithEventBus sets the bus lifecycle events are emitted on.
func WithEventBus(b events.Bus) Option {
	return func(i *Interpreter) { i.bus = b }
}

// WithMetricsRegistryProvider sets the registry strand metrics register on.
func WithMetricsRegistryProvider(p strandmetrics.RegistryProvider) Option {
	return func(i *Interpreter) { i.metricsProvider = p }
}

// WithTracerProvider sets the OpenTelemetry provider execution spans are
// created from.
func WithTracerProvider(tp strandtracing.TracerProvider) Option {
	return func(i *Interpreter) { i.tracerProvider = tp }
}

// WithRandSeed seeds the load-balance picker, making keyless picks
// deterministic. Intended for tests.
func WithRandSeed(seed int64) Option {
	return func(i *Interpreter) { i.rng = rand.New(rand.NewSource(seed)) }
}

// New creates an interpreter over the given policy store. Unset options get
// working defaults: a text logger, a no-op event bus, a private metrics
// registry and no tracing.
func New(store *policy.Store, opts ...Option) (*Interpreter, error) {
	if store == nil {
		return nil, stranderrors.NewConfigError("interpreter requires a policy store", nil)
	}

	i := &Interpreter{store: store}
	for _, opt := range opts {
		opt(i)
	}

	if i.log == nil {
		i.log = internallogger.NewDefaultLogger("info")
	}
	if i.bus == nil {
		i.bus = internalevents.NewNoOpEventBus()
	}
	if i.metricsProvider == nil {
		i.metricsProvider = internalmetrics.NewPrometheusRegistryProvider()
	}
	if i.rng == nil {
		i.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if i.tracerProvider != nil {
		i.tracer = i.tracerProvider.GetTracer("strand")
	}

	m, err := newInterpMetrics(i.metricsProvider.Registry())
	if err != nil {
		return nil, stranderrors.NewConfigError("failed to register interpreter metrics", err)
	}
	i.metrics = m

	return i, nil
}

// Run evaluates the named section of the active policy against req. The
// request must not be used by any other execution until the returned result
// is terminal.
func (i *Interpreter) Run(ctx context.Context, req *request.Request, section string) (v1.Result, error) {
	if req == nil {
		return v1.Result{Code: rcode.Fail}, stranderrors.NewConfigError("run requires a request", nil)
	}

	g := i.store.Graph()
	root, ok := g.Section(section)
	if !ok {
		return v1.Result{Code: rcode.Fail}, stranderrors.NewValidationError(
			fmt.Sprintf("policy '%s' has no section '%s'", g.Name(), section), nil)
	}

	log := req.Log
	if log == nil {
		log = i.log
	}
	log = log.With("request_id", req.ID, "section", section)

	if i.tracer != nil {
		var span trace.Span
		ctx, span = i.tracer.Start(ctx, "strand.run."+section)
		defer span.End()
	}

	e := &execution{
		interp:  i,
		req:     req,
		graph:   g,
		section: section,
		log:     log,
		threads: make(map[string]interface{}),
		start:   time.Now(),
	}

	i.emit(events.Event{
		Type:        events.ExecutionStart,
		Timestamp:   time.Now(),
		PolicyName:  g.Name(),
		ExecutionID: req.ID,
		Payload:     map[string]interface{}{"section": section},
	})

	rootNode := g.Node(root)
	if rootNode.Child == policy.NilNode {
		return e.wrap(execStatus{code: rcode.Noop}, nil)
	}
	if err := e.push(&frame{
		owner:  root,
		report: root,
		node:   rootNode.Child,
		mode:   modeWalk,
	}, rootNode.Name); err != nil {
		return e.wrap(execStatus{}, err)
	}

	st, err := e.run(ctx)
	return e.wrap(st, err)
}

// emit publishes an event; a nil bus drops it.
func (i *Interpreter) emit(ev events.Event) {
	if i.bus != nil {
		i.bus.Emit(ev)
	}
}

func (i *Interpreter) randIntn(n int) int {
	i.rngMu.Lock()
	defer i.rngMu.Unlock()
	return i.rng.Intn(n)
}

// pickStart selects a starting child for a load-balance node. A keyed node
// hashes the expanded key so the same key always lands on the same child; a
// keyless node picks randomly.
func (e *execution) pickStart(n *policy.Node, count int) int {
	if n.Pick != nil && n.Pick.Key != nil {
		key, err := n.Pick.Key.Evaluate(e.req)
		if err == nil && key != "" {
			h := fnv.New32a()
			h.Write([]byte(key))
			return int(h.Sum32() % uint32(count))
		}
		if err != nil {
			e.log.Warnf("load-balance key in %s failed to expand, picking randomly: %v", n.Name, err)
		}
	}
	return e.interp.randIntn(count)
}

// interpMetrics holds the interpreter's Prometheus instruments.
type interpMetrics struct {
	executionsTotal   *prometheus.CounterVec
	moduleCallsTotal  *prometheus.CounterVec
	yieldsTotal       prometheus.Counter
	resumesTotal      prometheus.Counter
	cancelsTotal      prometheus.Counter
	executionDuration prometheus.Histogram
}

func newInterpMetrics(reg *prometheus.Registry) (*interpMetrics, error) {
	m := &interpMetrics{
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_executions_total",
			Help: "Completed policy executions by terminal result code.",
		}, []string{"rcode"}),
		moduleCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_module_calls_total",
			Help: "Module method invocations by instance and method.",
		}, []string{"module", "method"}),
		yieldsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strand_yields_total",
			Help: "Executions suspended awaiting an external event.",
		}),
		resumesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strand_resumes_total",
			Help: "Suspended executions resumed.",
		}),
		cancelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strand_cancels_total",
			Help: "Suspended executions canceled.",
		}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strand_execution_duration_seconds",
			Help:    "Wall-clock time from Run to terminal result, including suspended time.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.executionsTotal, m.moduleCallsTotal, m.yieldsTotal,
		m.resumesTotal, m.cancelsTotal, m.executionDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
