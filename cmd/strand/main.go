package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	v1 "github.com/strand-labs/strand/pkg/strand/v1"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
	"github.com/strand-labs/strand/pkg/strand/v1/request"

	"github.com/strand-labs/strand/internal/config"
	"github.com/strand-labs/strand/internal/events"
	"github.com/strand-labs/strand/internal/interp"
	"github.com/strand-labs/strand/internal/logger"
	"github.com/strand-labs/strand/internal/mapproc"
	"github.com/strand-labs/strand/internal/metrics"
	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/policy"
	"github.com/strand-labs/strand/internal/redact"
	"github.com/strand-labs/strand/internal/secrets"
	"github.com/strand-labs/strand/internal/tracing"

	_ "github.com/strand-labs/strand/modules/always"
	_ "github.com/strand-labs/strand/modules/cache"
	_ "github.com/strand-labs/strand/modules/echo"
	_ "github.com/strand-labs/strand/modules/exec"
	_ "github.com/strand-labs/strand/modules/kvproc"
	_ "github.com/strand-labs/strand/modules/pause"
)

const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsageError      = 2
	ExitSigIntBase      = 128
	ExitSigInt          = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm         = ExitSigIntBase + int(syscall.SIGTERM)
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultSection      = "authorize"
	DefaultEventBusSize = 256
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		runValidateCommand(os.Args[2:])
		return
	}
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		printVersion()
		os.Exit(ExitSuccess)
	}
	exitCode := runExecuteCommand(os.Args[1:])
	os.Exit(exitCode)
}

func printVersion() {
	fmt.Printf("strand version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)
	policyPath := validateFlags.String("policy", "", "Path to the policy document YAML file to validate (required)")
	logLevel := validateFlags.String("log-level", DefaultLogLevel, "Log level for validation output (debug, info, warn, error)")

	validateFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate -policy <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Validates the structure, schema compatibility and module references of a strand policy document.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		validateFlags.PrintDefaults()
	}

	if err := validateFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing validate flags: %v\n", err)
		os.Exit(ExitUsageError)
	}

	if *policyPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -policy flag is required for validation")
		validateFlags.Usage()
		os.Exit(ExitUsageError)
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)
	log.Infof("Validating policy document: %s", *policyPath)

	doc, err := config.LoadDocumentFromFile(*policyPath)
	if err != nil {
		logLoadError(log, err)
		os.Exit(ExitFailure)
	}

	// Compiling instantiates the referenced modules, so a bad module name or
	// config surfaces here instead of at the first request.
	g, _, err := policy.Compile(doc, module.DefaultStaticRegistryGetter, mapproc.DefaultStaticRegistryGetter,
		policy.WithSecretsProvider(secrets.NewEnvProvider()))
	if err != nil {
		log.Errorf("Policy compilation failed:\n%s", err.Error())
		os.Exit(ExitFailure)
	}

	log.Infof("Policy document validation successful: %s (%d nodes, sections: %v)",
		*policyPath, g.NumNodes(), g.Sections())
	os.Exit(ExitSuccess)
}

func logLoadError(log strandlog.Logger, err error) {
	var validationErr *stranderrors.ValidationError
	var configErr *stranderrors.ConfigError
	if errors.As(err, &validationErr) {
		log.Errorf("Policy document validation failed:\n%s", validationErr.Error())
	} else if errors.As(err, &configErr) {
		log.Errorf("Policy document configuration error:\n%s", configErr.Error())
	} else {
		log.Errorf("Failed to load policy document: %v", err)
	}
}

func runExecuteCommand(args []string) int {
	execFlags := flag.NewFlagSet("strand", flag.ExitOnError)
	policyPath := execFlags.String("policy", "", "Path to the policy document YAML file (required)")
	section := execFlags.String("section", DefaultSection, "Policy section to evaluate (authorize, authenticate, accounting, ...)")
	requestPath := execFlags.String("request", "", "Path to a YAML file of request attributes (optional)")
	logLevel := execFlags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	logFormat := execFlags.String("log-format", DefaultLogFmt, "Log format (text, json)")
	watch := execFlags.Bool("watch", false, "Keep running and re-evaluate the request whenever the policy file changes")
	versionFlag := execFlags.Bool("version", false, "Print version information and exit")

	execFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags...] -policy <path>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Evaluates a policy section against a request.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		execFlags.PrintDefaults()
	}

	if err := execFlags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}

	if *policyPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -policy flag is required")
		execFlags.Usage()
		return ExitUsageError
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -log-format must be 'text' or 'json'")
		return ExitUsageError
	}

	var logWriter io.Writer = os.Stderr
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("strand_version", version)

	log.Infof("strand policy interpreter v%s starting...", version)
	log.Debugf("Log level: %s", *logLevel)
	log.Debugf("Log format: %s", *logFormat)

	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	defer eventBus.Close()
	secretsProvider := secrets.NewEnvProvider()
	tracker := secrets.NewTracker()
	metricsProvider := metrics.NewPrometheusRegistryProvider()
	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to initialize tracing from environment: %v. Using NoOp tracer.", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}

	compileOpts := []policy.CompileOption{
		policy.WithSecretsProvider(secretsProvider),
		policy.WithSecretsTracker(tracker),
	}

	log.Infof("Loading policy document: %s", *policyPath)
	doc, err := config.LoadDocumentFromFile(*policyPath)
	if err != nil {
		logLoadError(log, err)
		return ExitFailure
	}
	graph, set, err := policy.Compile(doc, module.DefaultStaticRegistryGetter, mapproc.DefaultStaticRegistryGetter, compileOpts...)
	if err != nil {
		log.Errorf("Policy compilation failed: %v", err)
		return ExitFailure
	}
	store := policy.NewStore(graph, set)
	log.Infof("Policy '%s' compiled (%d nodes, sections: %v)", graph.Name(), graph.NumNodes(), graph.Sections())

	interpreter, err := interp.New(store,
		interp.WithLogger(log),
		interp.WithEventBus(eventBus),
		interp.WithMetricsRegistryProvider(metricsProvider),
		interp.WithTracerProvider(tracerProvider),
	)
	if err != nil {
		log.Errorf("Failed to create interpreter: %v", err)
		return ExitFailure
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	busYields, busResumes, busCancels, err := newBusCounters(metricsProvider.Registry())
	if err != nil {
		log.Errorf("Failed to register event bus metrics: %v", err)
		return ExitFailure
	}
	listener := events.NewMetricsEventListener(eventBus, busYields, busResumes, busCancels, log)
	go listener.Start(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Shutting down...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
			log.Debugf("Signal handler exiting because run context is done.")
		}
	}()
	defer wg.Wait()

	exitCode := evaluateOnce(runCtx, log, interpreter, tracker, *requestPath, *section)

	if *watch && runCtx.Err() == nil {
		exitCode = watchLoop(runCtx, log, interpreter, store, eventBus, tracker, compileOpts, *policyPath, *requestPath, *section)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	if finalSignal != nil {
		switch finalSignal {
		case syscall.SIGINT:
			return ExitSigInt
		case syscall.SIGTERM:
			return ExitSigTerm
		}
	}
	return exitCode
}

// newBusCounters registers the bus-observed suspension counters the metrics
// listener increments. They are separate from the interpreter's own counters
// so the two paths can be compared to detect dropped events.
func newBusCounters(reg *prometheus.Registry) (yields, resumes, cancels prometheus.Counter, err error) {
	yields = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strand_bus_yields_total",
		Help: "ExecutionYield events observed on the event bus.",
	})
	resumes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strand_bus_resumes_total",
		Help: "ExecutionResume events observed on the event bus.",
	})
	cancels = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strand_bus_cancels_total",
		Help: "ExecutionCancel events observed on the event bus.",
	})
	for _, c := range []prometheus.Counter{yields, resumes, cancels} {
		if err = reg.Register(c); err != nil {
			return nil, nil, nil, err
		}
	}
	return yields, resumes, cancels, nil
}

// watchLoop blocks until the context is done, re-evaluating the request after
// every successful policy reload. The event bus already has its one consumer,
// so reloads are detected by the store's graph pointer changing.
func watchLoop(ctx context.Context, log strandlog.Logger, interpreter v1.Interpreter, store *policy.Store,
	bus *events.ChannelEventBus, tracker *secrets.Tracker, compileOpts []policy.CompileOption,
	policyPath, requestPath, section string) int {

	watcher, err := policy.NewWatcher(policyPath, store,
		module.DefaultStaticRegistryGetter, mapproc.DefaultStaticRegistryGetter, log, bus, compileOpts...)
	if err != nil {
		log.Errorf("Failed to create policy watcher: %v", err)
		return ExitFailure
	}
	go func() {
		if werr := watcher.Watch(ctx); werr != nil {
			log.Errorf("Policy watcher stopped: %v", werr)
		}
	}()
	defer watcher.Stop()

	log.Infof("Watching '%s'; edit the policy to re-evaluate (Ctrl-C to exit)", policyPath)

	exitCode := ExitSuccess
	lastGraph := store.Graph()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return exitCode
		case <-ticker.C:
			if g := store.Graph(); g != lastGraph {
				lastGraph = g
				exitCode = evaluateOnce(ctx, log, interpreter, tracker, requestPath, section)
			}
		}
	}
}

// evaluateOnce builds the request, runs the section and prints the outcome.
// A suspended execution has no external event source in the CLI, so it is
// resumed immediately until it reaches a terminal result.
func evaluateOnce(ctx context.Context, log strandlog.Logger, interpreter v1.Interpreter,
	tracker *secrets.Tracker, requestPath, section string) int {

	req, err := loadRequest(requestPath)
	if err != nil {
		log.Errorf("Failed to load request file '%s': %v", requestPath, err)
		return ExitFailure
	}

	start := time.Now()
	res, err := interpreter.Run(ctx, req, section)
	for err == nil && !res.Done() {
		res, err = res.Suspension.Resume(ctx)
	}
	duration := time.Since(start).Truncate(time.Microsecond)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("Evaluation canceled after %v", duration)
		} else {
			log.Errorf("Evaluation of section '%s' failed after %v: %v", section, duration, err)
		}
		return ExitFailure
	}

	log.Infof("Section '%s' finished: %s (request %s, %v)", section, res.Code, req.ID, duration)
	for _, p := range redact.Pairs(req.Reply.Pairs(), tracker) {
		log.Infof("  reply: %s = %v", p.Name, p.Value)
	}

	if res.Code.IsGood() {
		return ExitSuccess
	}
	return ExitFailure
}

// requestFile is the on-disk shape of a -request YAML document: one mapping
// per attribute list, absent lists staying empty.
type requestFile struct {
	Packet  map[string]interface{} `yaml:"packet"`
	Control map[string]interface{} `yaml:"control"`
}

// loadRequest builds a fresh request from the given YAML file. An empty path
// yields an empty request, which is enough for policies that only write.
func loadRequest(path string) (*request.Request, error) {
	req := request.New()
	if path == "" {
		return req, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf requestFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("YAML parsing error: %w", err)
	}
	for name, value := range rf.Packet {
		addAttr(req.Packet.Add, name, value)
	}
	for name, value := range rf.Control {
		addAttr(req.Control.Add, name, value)
	}
	return req, nil
}

// addAttr adds a parsed YAML value, flattening sequences into one pair per
// element so multivalued attributes round-trip naturally.
func addAttr(add func(string, interface{}), name string, value interface{}) {
	if seq, ok := value.([]interface{}); ok {
		for _, v := range seq {
			add(name, v)
		}
		return
	}
	add(name, value)
}
