// internal/daemon/daemon.go
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veilproject/veil/internal/audit"
	"github.com/veilproject/veil/internal/bloom"
	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/logging"
	"github.com/veilproject/veil/internal/redact"
	"github.com/veilproject/veil/internal/secure"
	"github.com/veilproject/veil/internal/template"
	"github.com/veilproject/veil/internal/trigger"
)

// job pairs a job config with its compiled-order rule set. The rules are
// loaded once at job load time; individual bad patterns are reported then
// and again per redaction, never fatally.
type job struct {
	cfg   *config.Job
	rules redact.RuleSet
}

// Daemon watches files and directories and redacts them through their
// job's rule set as they change.
type Daemon struct {
	configPath string
	jobsDir    string
	config     *config.Global
	jobs       map[string]*job
	triggers   map[string]trigger.Trigger
	events     chan trigger.Event
	logger     *slog.Logger
	webhooks   map[string]*trigger.Webhook
	httpServer *http.Server
	auditDB    *audit.DB
	seen       *bloom.Filter // pre-filter over output content digests
	seenMu     sync.Mutex
	startTime  time.Time
	mu         sync.RWMutex
	sem        chan struct{}  // concurrency limiter
	wg         sync.WaitGroup // tracks in-flight event handlers

	triggerCancel context.CancelFunc // cancels the current trigger generation
}

// New creates a new daemon instance
func New(configPath, jobsDir string) *Daemon {
	return &Daemon{
		configPath: configPath,
		jobsDir:    jobsDir,
		jobs:       make(map[string]*job),
		triggers:   make(map[string]trigger.Trigger),
		events:     make(chan trigger.Event, 100),
		webhooks:   make(map[string]*trigger.Webhook),
	}
}

// Run starts the daemon and blocks until context is cancelled
func (d *Daemon) Run(ctx context.Context) error {
	d.startTime = time.Now()

	if err := d.loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logWriter, err := d.initLogWriter()
	if err != nil {
		d.logger = logging.NewLogger(d.config.Logging.Format, d.config.Daemon.LogLevel, os.Stdout)
		if d.config.Logging.Path != "" {
			d.logger.Warn("failed to initialize rotating log writer, using stdout", "error", err)
		}
	} else {
		d.logger = logging.NewLogger(d.config.Logging.Format, d.config.Daemon.LogLevel, logWriter)
	}

	d.logger.Info("starting daemon", "config", d.configPath, "jobs_dir", d.jobsDir)

	if err := d.initAuditDB(); err != nil {
		d.logger.Warn("failed to initialize audit database, history will not be recorded", "error", err)
	}

	// Job files carry the patterns an operator considers sensitive;
	// refuse to run quietly from a world-writable directory.
	if err := secure.ValidateDirectoryPermissions(d.jobsDir); err != nil {
		d.logger.Error("CRITICAL: jobs directory has unsafe permissions", "error", err, "path", d.jobsDir)
	}

	if err := d.loadJobs(); err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}

	if err := d.startTriggers(ctx); err != nil {
		return fmt.Errorf("starting triggers: %w", err)
	}

	go d.startHTTPServer(ctx)
	go d.startHotReload(ctx)

	d.logger.Info("daemon started", "jobs_loaded", len(d.jobs))

	d.sem = make(chan struct{}, d.config.Redaction.MaxConcurrent)

	for {
		select {
		case event := <-d.events:
			d.sem <- struct{}{} // acquire semaphore
			d.wg.Add(1)
			go func() {
				defer func() {
					<-d.sem
					d.wg.Done()
				}()
				d.handleEvent(ctx, event)
			}()
		case <-ctx.Done():
			d.logger.Info("daemon stopping, waiting for in-flight redactions")
			d.wg.Wait()
			return d.shutdown()
		}
	}
}

func (d *Daemon) initLogWriter() (*logging.RotatingWriter, error) {
	if d.config.Logging.Path == "" {
		return nil, fmt.Errorf("no log path configured")
	}
	if err := os.MkdirAll(filepath.Dir(d.config.Logging.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return logging.NewRotatingWriter(d.config.Logging.Path, 50*1024*1024) // 50MB
}

// initAuditDB opens the audit database and seeds the digest pre-filter
// from recent history so restarted daemons keep skipping files they
// already redacted.
func (d *Daemon) initAuditDB() error {
	if !d.config.Audit.Enabled {
		return nil
	}

	db, err := audit.Open(d.config.Audit.Path)
	if err != nil {
		return fmt.Errorf("opening audit database: %w", err)
	}
	d.auditDB = db
	d.seen = bloom.New(d.config.Audit.BloomBits, nil)

	digests, err := db.RecentDigests(10000)
	if err != nil {
		d.logger.Warn("seeding digest filter failed", "error", err)
	} else {
		for _, dg := range digests {
			d.seen.Add(dg)
		}
	}

	go func() {
		if deleted, err := db.Cleanup(d.config.Audit.RetentionDays); err != nil {
			d.logger.Warn("audit cleanup failed", "error", err)
		} else if deleted > 0 {
			d.logger.Info("cleaned up old audit records", "deleted", deleted)
		}
	}()

	return nil
}

func (d *Daemon) loadConfig() error {
	cfg, err := config.LoadGlobal(d.configPath)
	if err != nil {
		return err
	}
	d.config = cfg
	return nil
}

func (d *Daemon) loadJobs() error {
	jobs, err := config.LoadJobsDir(d.jobsDir)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.jobs = make(map[string]*job)
	for _, cfg := range jobs {
		if cfg.RulesFile == "" {
			d.logger.Error("job has no rules_file, skipping", "job", cfg.Name)
			continue
		}
		if err := secure.ValidateFilePermissions(cfg.RulesFile); err != nil {
			d.logger.Error("rules file has unsafe permissions, skipping job", "job", cfg.Name, "error", err)
			continue
		}

		rules, err := config.LoadRules(cfg.RulesFile)
		if err != nil {
			d.logger.Error("failed to load rules, skipping job", "job", cfg.Name, "error", err)
			continue
		}

		// Bad patterns degrade the job, they don't disable it.
		for _, ruleErr := range redact.Validate(rules) {
			d.logger.Warn("rule will be skipped", "job", cfg.Name, "rule", ruleErr.Rule, "error", ruleErr.Err)
		}

		d.jobs[cfg.Name] = &job{cfg: cfg, rules: rules}
	}

	return nil
}

// startTriggers creates and starts a trigger per enabled job. Triggers
// run under their own cancellable context so hot reload can replace a
// generation without tearing down the daemon.
func (d *Daemon) startTriggers(ctx context.Context) error {
	triggerCtx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.triggerCancel = cancel
	d.triggers = make(map[string]trigger.Trigger)
	d.webhooks = make(map[string]*trigger.Webhook)

	for _, jb := range d.jobs {
		if !jb.cfg.Enabled {
			d.logger.Debug("skipping disabled job", "job", jb.cfg.Name)
			continue
		}

		t, err := trigger.New(jb.cfg.Name, jb.cfg.Trigger)
		if err != nil {
			d.logger.Error("failed to create trigger", "job", jb.cfg.Name, "error", err)
			continue
		}

		d.triggers[jb.cfg.Name] = t

		// Track webhook triggers separately for HTTP routing
		if wh, ok := t.(*trigger.Webhook); ok {
			d.webhooks[wh.ListenPath()] = wh
		}

		go func(t trigger.Trigger) {
			if err := t.Start(triggerCtx, d.events); err != nil && err != context.Canceled {
				d.logger.Error("trigger error", "job", t.JobName(), "error", err)
			}
		}(t)
	}

	return nil
}

// stopTriggers stops the current trigger generation.
func (d *Daemon) stopTriggers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.triggerCancel != nil {
		d.triggerCancel()
	}
	for name, t := range d.triggers {
		if err := t.Stop(); err != nil {
			d.logger.Warn("stopping trigger", "job", name, "error", err)
		}
	}
	d.triggers = make(map[string]trigger.Trigger)
	d.webhooks = make(map[string]*trigger.Webhook)
}

// startHTTPServer starts the HTTP server with health, API, and webhook endpoints.
func (d *Daemon) startHTTPServer(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d",
		d.config.Daemon.ListenAddress,
		d.config.Daemon.ListenPort,
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", rateLimitHandler(60, d.handleHealth))
	mux.HandleFunc("/api/jobs", rateLimitHandler(30, d.handleAPIJobs))
	mux.HandleFunc("/api/history", rateLimitHandler(30, d.handleAPIHistory))
	mux.HandleFunc("/api/run", rateLimitHandler(10, d.handleAPIRun))

	// Webhook handler (catch-all)
	mux.HandleFunc("/", rateLimitHandler(10, func(w http.ResponseWriter, r *http.Request) {
		d.mu.RLock()
		wh, ok := d.webhooks[r.URL.Path]
		d.mu.RUnlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		if wh.HandleRequest(r, d.events) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			http.Error(w, "Forbidden", http.StatusForbidden)
		}
	}))

	d.httpServer = &http.Server{Addr: addr, Handler: mux}

	d.logger.Info("starting HTTP server", "address", addr)

	go func() {
		if err := d.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			d.logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.httpServer.Shutdown(shutdownCtx)
}

// handleHealth returns daemon health status.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.mu.RLock()
	jobsLoaded := len(d.jobs)
	jobsEnabled := 0
	for _, jb := range d.jobs {
		if jb.cfg.Enabled {
			jobsEnabled++
		}
	}
	d.mu.RUnlock()

	uptime := time.Since(d.startTime).Truncate(time.Second).String()
	resp := map[string]any{
		"status":       "ok",
		"uptime":       uptime,
		"jobs_loaded":  jobsLoaded,
		"jobs_enabled": jobsEnabled,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleAPIJobs returns all jobs with their rule counts.
func (d *Daemon) handleAPIJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	type jobStatus struct {
		Name        string `json:"name"`
		Enabled     bool   `json:"enabled"`
		TriggerType string `json:"trigger_type"`
		Rules       int    `json:"rules"`
	}

	var jobs []jobStatus
	for _, jb := range d.jobs {
		jobs = append(jobs, jobStatus{
			Name:        jb.cfg.Name,
			Enabled:     jb.cfg.Enabled,
			TriggerType: jb.cfg.Trigger.Type,
			Rules:       len(jb.rules),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// handleAPIHistory returns redaction history from the audit DB.
func (d *Daemon) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if d.auditDB == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
		return
	}

	jobName := r.URL.Query().Get("job")
	stateFilter := r.URL.Query().Get("state")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}
	if limit > 500 {
		limit = 500
	}

	records, err := d.auditDB.History(jobName, stateFilter, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("querying history: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// handleAPIRun fires a job on demand: POST {"job": "...", "path": "..."}.
// Path is optional; without it the job's scan paths are swept.
func (d *Daemon) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Job  string `json:"job"`
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	d.mu.RLock()
	_, ok := d.jobs[req.Job]
	d.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}

	select {
	case d.events <- trigger.Event{
		JobName:   req.Job,
		Type:      "manual",
		Path:      req.Path,
		Timestamp: time.Now(),
		Data:      map[string]any{},
	}:
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	default:
		http.Error(w, "event queue full", http.StatusServiceUnavailable)
	}
}

// rateLimitHandler wraps an HTTP handler with a simple token-bucket rate limiter.
func rateLimitHandler(requestsPerMinute int, handler http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	tokens := requestsPerMinute
	lastRefill := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		now := time.Now()
		elapsed := now.Sub(lastRefill)
		refill := int(elapsed.Minutes() * float64(requestsPerMinute))
		if refill > 0 {
			tokens += refill
			if tokens > requestsPerMinute {
				tokens = requestsPerMinute
			}
			lastRefill = now
		}

		if tokens <= 0 {
			mu.Unlock()
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		tokens--
		mu.Unlock()

		handler(w, r)
	}
}

// handleEvent resolves an event to one or more target files and redacts
// each of them through the job's rule set.
func (d *Daemon) handleEvent(ctx context.Context, event trigger.Event) {
	d.mu.RLock()
	jb, ok := d.jobs[event.JobName]
	d.mu.RUnlock()

	if !ok {
		d.logger.Error("job not found for event", "job", event.JobName)
		return
	}

	logger := logging.WithJob(d.logger, jb.cfg.Name)
	logger.Info("handling event", "type", event.Type, "path", event.Path)

	targets, err := d.resolveTargets(jb, event)
	if err != nil {
		logger.Error("resolving targets", "error", err)
		return
	}
	if len(targets) == 0 {
		logger.Debug("no targets for event")
		return
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		d.redactTarget(jb, event, target, logger)
	}
}

// resolveTargets turns an event into the list of files to redact. Events
// carrying a path name a single file; sweep events expand the job's
// scan_paths globs. Paths arriving over HTTP (webhook, /api/run) must
// pass the allowlist.
func (d *Daemon) resolveTargets(jb *job, event trigger.Event) ([]string, error) {
	if event.Path != "" {
		fromHTTP := event.Type == "webhook" || event.Type == "manual"
		if fromHTTP && !d.pathAllowed(jb, event.Path) {
			return nil, fmt.Errorf("path %q is outside the allowed roots", event.Path)
		}
		return []string{event.Path}, nil
	}

	var targets []string
	for _, pattern := range jb.cfg.ScanPaths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad scan path %q: %w", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				targets = append(targets, m)
			}
		}
	}
	return targets, nil
}

// pathAllowed reports whether an externally requested path falls under a
// configured allowed root, or under the job's own watch/scan locations
// when no roots are configured.
func (d *Daemon) pathAllowed(jb *job, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	roots := d.config.Daemon.AllowedRoots
	if len(roots) == 0 {
		roots = append(roots, jb.cfg.Trigger.WatchPaths...)
		for _, sp := range jb.cfg.ScanPaths {
			roots = append(roots, filepath.Dir(sp))
		}
	}

	for _, root := range roots {
		cleanRoot := filepath.Clean(root)
		if abs == cleanRoot || strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// redactTarget redacts a single file and records the run. Files whose
// current content digest matches a previously written output are skipped:
// in-place redaction fires a file_modified event for its own write, and
// the digest check is what breaks that loop.
func (d *Daemon) redactTarget(jb *job, event trigger.Event, src string, logger *slog.Logger) {
	startedAt := time.Now()

	data, err := os.ReadFile(src)
	if err != nil {
		logger.Error("reading target", "path", src, "error", err)
		d.record(jb, event, audit.Record{
			State: "failure", SourcePath: src, Error: err.Error(),
		}, startedAt)
		return
	}

	digest, _ := secure.Digest(string(data), secure.AlgorithmSHA256, nil)
	if d.alreadyRedacted(digest) {
		logger.Debug("content already redacted, skipping", "path", src)
		d.record(jb, event, audit.Record{
			State: "skipped", SourcePath: src, ContentDigest: digest,
		}, startedAt)
		return
	}

	dst := template.OutputPath(jb.cfg.OutputTemplate, src)
	report, err := redact.RedactFile(src, dst, jb.rules)
	if err != nil {
		logger.Error("redaction failed", "path", src, "error", err)
		d.record(jb, event, audit.Record{
			State: "failure", SourcePath: src, OutputPath: dst, Error: err.Error(),
		}, startedAt)
		return
	}

	for _, ruleErr := range report.RuleErrors {
		logger.Warn("rule skipped during redaction", "rule", ruleErr.Rule, "error", ruleErr.Err)
	}

	logger.Info("redaction complete",
		"path", src,
		"output", dst,
		"matches", report.Matches,
		"duration", report.Duration,
	)

	d.markRedacted(report.Digest)
	d.record(jb, event, audit.Record{
		State:         "success",
		SourcePath:    src,
		OutputPath:    dst,
		Matches:       report.Matches,
		RuleErrors:    joinRuleErrors(report.RuleErrors),
		ContentDigest: report.Digest,
	}, startedAt)
}

// alreadyRedacted checks the digest pre-filter and confirms hits against
// the audit DB, so bloom false positives never skip real work.
func (d *Daemon) alreadyRedacted(digest string) bool {
	if d.seen == nil || d.auditDB == nil {
		return false
	}

	d.seenMu.Lock()
	possible := d.seen.Check(digest)
	d.seenMu.Unlock()
	if !possible {
		return false
	}

	confirmed, err := d.auditDB.HasDigest(digest)
	if err != nil {
		d.logger.Warn("digest lookup failed", "error", err)
		return false
	}
	return confirmed
}

func (d *Daemon) markRedacted(digest string) {
	if d.seen == nil || digest == "" {
		return
	}
	d.seenMu.Lock()
	d.seen.Add(digest)
	d.seenMu.Unlock()
}

func (d *Daemon) record(jb *job, event trigger.Event, rec audit.Record, startedAt time.Time) {
	if d.auditDB == nil {
		return
	}

	finishedAt := time.Now()
	rec.JobName = jb.cfg.Name
	rec.TriggerType = event.Type
	rec.StartedAt = startedAt
	rec.FinishedAt = finishedAt
	rec.DurationMs = finishedAt.Sub(startedAt).Milliseconds()

	if _, err := d.auditDB.Add(rec); err != nil {
		d.logger.Warn("failed to record redaction", "error", err)
	}
}

func joinRuleErrors(errs []*redact.RuleError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

// startHotReload watches the jobs directory and reloads jobs and their
// triggers when job files change.
func (d *Daemon) startHotReload(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("hot reload disabled", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(d.jobsDir); err != nil {
		d.logger.Warn("hot reload disabled, cannot watch jobs dir", "error", err)
		return
	}

	var reloadTimer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			ext := filepath.Ext(ev.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			// Debounce: editors fire several events per save
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(time.Second, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			d.logger.Info("job files changed, reloading")
			d.reloadJobs(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("hot reload watcher error", "error", err)
		}
	}
}

// reloadJobs replaces the loaded jobs and restarts the trigger generation.
func (d *Daemon) reloadJobs(ctx context.Context) {
	d.stopTriggers()

	if err := d.loadJobs(); err != nil {
		d.logger.Error("reload failed, keeping no jobs until next change", "error", err)
		return
	}
	if err := d.startTriggers(ctx); err != nil {
		d.logger.Error("restarting triggers after reload", "error", err)
		return
	}

	d.mu.RLock()
	count := len(d.jobs)
	d.mu.RUnlock()
	d.logger.Info("reload complete", "jobs_loaded", count)
}

func (d *Daemon) shutdown() error {
	d.stopTriggers()

	if d.auditDB != nil {
		if err := d.auditDB.Close(); err != nil {
			d.logger.Warn("closing audit database", "error", err)
		}
	}

	d.logger.Info("daemon stopped")
	return nil
}

// RunJob fires a job by name outside its normal trigger, targeting an
// optional single path. Used by tests and the HTTP API plumbing.
func (d *Daemon) RunJob(ctx context.Context, jobName, path string) error {
	d.mu.RLock()
	_, ok := d.jobs[jobName]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job not found: %s", jobName)
	}

	select {
	case d.events <- trigger.Event{
		JobName:   jobName,
		Type:      "manual",
		Path:      path,
		Timestamp: time.Now(),
		Data:      map[string]any{},
	}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
