// Package workflow drives one clinician session through the case intake and
// analysis pipeline: draft editing with debounced persistence, consent, submit,
// poll, normalize and review, plus history for the selected patient.
package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/history"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/analysisclient"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/cache"
)

const (
	DefaultDebounce        = 2 * time.Second
	DefaultMaxPollAttempts = analysisclient.DefaultMaxAttempts

	noteTimeout = 30 * time.Second
)

// AnalysisService is the remote analysis API as seen by the workflow.
type AnalysisService interface {
	Submit(ctx context.Context, req intake.AnalysisRequest) (string, error)
	Poll(ctx context.Context, requestID string, maxAttempts int) (*analysis.RawAnalysisResponse, error)
	FetchHistory(ctx context.Context, patientID string, page, limit int) (history.HistoryPage, error)
	AddNote(ctx context.Context, caseID, note string) error
}

// Observer receives a snapshot after every observable change. It may be
// called from background goroutines and must not block.
type Observer func(Snapshot)

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.baseLogger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithAfterFunc replaces time.AfterFunc for the draft debounce timer.
func WithAfterFunc(after AfterFunc) Option {
	return func(c *Controller) { c.after = after }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounceDelay = d
		}
	}
}

func WithMaxPollAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithHistoryPageSize(n int) Option {
	return func(c *Controller) { c.pageSize = n }
}

type pipelineRun struct {
	tag    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller owns the workflow state of one session. All state is guarded
// by mu; remote calls and cache I/O run without it and apply their results
// only if the session tag they started under is still current.
type Controller struct {
	svc        AnalysisService
	cache      *cache.Cache
	baseLogger zerolog.Logger
	now        func() time.Time
	after      AfterFunc
	observer   Observer
	newTag     func() string

	debounceDelay time.Duration
	maxAttempts   int
	pageSize      int

	mu         sync.Mutex
	wg         sync.WaitGroup
	logger     zerolog.Logger
	closed     bool
	tag        string
	state      State
	patientID  string
	draft      intake.CaseDraft
	touched    intake.FieldSet
	edited     bool
	report     intake.ValidationReport
	analysis   *analysis.NormalizedAnalysis
	history    *history.Aggregator
	historyErr string
	consent    bool
	consentAt  time.Time
	pending    *intake.AnalysisRequest
	requestID  string
	stageErr   *StageError
	debounce   *debouncer
	run        *pipelineRun
}

func NewController(svc AnalysisService, store *cache.Cache, opts ...Option) *Controller {
	c := &Controller{
		svc:           svc,
		cache:         store,
		baseLogger:    zerolog.Nop(),
		now:           time.Now,
		newTag:        uuid.NewString,
		debounceDelay: DefaultDebounce,
		maxAttempts:   DefaultMaxPollAttempts,
		state:         StateIdle,
		touched:       intake.NewFieldSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseLogger = c.baseLogger.With().Str("component", "workflow").Logger()
	c.logger = c.baseLogger
	if c.cache == nil {
		c.cache = cache.New(cache.NewMemoryStore(0), c.baseLogger, cache.Namespaces(0, 0), cache.WithClock(c.now))
	}
	c.history = history.NewAggregator(svc, c.pageSize)
	c.debounce = newDebouncer(c.debounceDelay, c.after)
	c.draft = intake.NewDraft("")
	c.report = intake.Validate(c.draft, c.touched)
	return c
}

// SelectPatient starts a new session for patientID. Any pending draft write
// and in-flight analysis for the previous patient are abandoned, consent is
// reset, and the draft, analysis and first history page are loaded for the
// new patient. History failures are logged and recorded in the snapshot.
func (c *Controller) SelectPatient(ctx context.Context, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return ErrNoPatient
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.debounce.cancel()
	c.stopPipelineLocked()
	c.tag = c.newTag()
	tag := c.tag
	c.logger = c.baseLogger.With().Str("patient_id", patientID).Str("session", tag).Logger()
	c.patientID = patientID
	c.draft = intake.NewDraft(patientID)
	c.touched = intake.NewFieldSet()
	c.edited = false
	c.report = intake.Validate(c.draft, c.touched)
	c.analysis = nil
	c.historyErr = ""
	c.consent = false
	c.consentAt = time.Time{}
	c.pending = nil
	c.requestID = ""
	c.stageErr = nil
	c.history.Reset(patientID)
	c.state = StateEditing
	c.logger.Info().Msg("patient selected")
	c.unlockAndNotify()

	var snap intake.DraftSnapshot
	hasDraft := c.cache.Get(ctx, cache.NamespaceDraft, patientID, &snap)
	var cached analysis.NormalizedAnalysis
	hasAnalysis := c.cache.Get(ctx, cache.NamespaceAnalysis, patientID, &cached)

	c.mu.Lock()
	if c.tag != tag {
		c.mu.Unlock()
		return nil
	}
	if hasDraft && !c.edited {
		c.draft = snap.Restore(patientID)
		c.report = intake.Validate(c.draft, c.touched)
	}
	if hasAnalysis && c.analysis == nil {
		c.analysis = &cached
	}
	c.unlockAndNotify()

	_ = c.loadHistory(ctx, tag, patientID, 1)
	return nil
}

// Edit applies mutate to a copy of the draft, marks fields as touched and
// returns the recomputed report. The draft is persisted after the debounce
// delay has passed without further edits.
func (c *Controller) Edit(mutate func(*intake.CaseDraft), fields ...intake.Field) (intake.ValidationReport, error) {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return intake.ValidationReport{}, err
	}
	if c.state.Busy() {
		report := c.report
		c.mu.Unlock()
		return report, ErrSubmissionActive
	}

	d := c.draft.Clone()
	if mutate != nil {
		mutate(&d)
	}
	d.PatientID = c.patientID
	c.draft = d
	c.touched.Touch(fields...)
	c.edited = true
	c.report = intake.Validate(c.draft, c.touched)
	if c.state == StateReviewed {
		c.state = StateEditing
	}

	tag := c.tag
	c.debounce.schedule(func(gen uint64) { c.flushDraft(tag, gen) })
	report := c.report
	c.unlockAndNotify()
	return report, nil
}

func (c *Controller) flushDraft(tag string, gen uint64) {
	c.mu.Lock()
	if c.closed || c.tag != tag || !c.debounce.current(gen) {
		c.mu.Unlock()
		return
	}
	c.debounce.done()
	patientID := c.patientID
	snap := c.draft.Snapshot(c.now())
	logger := c.logger
	c.mu.Unlock()

	c.cache.Put(context.Background(), cache.NamespaceDraft, patientID, snap)
	logger.Debug().Msg("draft saved")
}

// GrantConsent records patient consent for this session. A submission that
// was suspended waiting for consent resumes with the request it was built
// from.
func (c *Controller) GrantConsent() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.consent {
		c.consent = true
		c.consentAt = c.now()
		c.logger.Info().Time("consent_at", c.consentAt).Msg("consent granted")
	}

	if c.pending != nil && c.state == StateEditing && c.run == nil {
		req := *c.pending
		req.ConsentObtained = true
		req.ConsentTimestamp = c.consentAt
		c.pending = nil
		c.startPipelineLocked(context.Background(), req, "")
	}
	c.unlockAndNotify()
	return nil
}

// Submit validates the draft with every field touched and, when consent has
// been granted, starts the analysis pipeline in the background. Without
// consent the request is kept and ErrConsentRequired is returned; it is
// sent once GrantConsent is called.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.Busy() || c.run != nil {
		c.mu.Unlock()
		return ErrSubmissionActive
	}
	if c.state == StateReviewed {
		c.state = StateEditing
	}
	if err := ValidateTransition(c.state, StateSubmitting); err != nil {
		c.mu.Unlock()
		return err
	}

	c.report = intake.Validate(c.draft, c.touched)
	if !c.report.IsValid {
		c.unlockAndNotify()
		return ErrInvalidDraft
	}

	c.debounce.cancel()
	patientID := c.patientID
	snap := c.draft.Snapshot(c.now())

	var err error
	if c.consent {
		c.pending = nil
		c.startPipelineLocked(ctx, intake.BuildRequest(c.draft, c.consentAt), "")
	} else {
		req := intake.BuildRequest(c.draft, time.Time{})
		c.pending = &req
		c.logger.Info().Msg("submission waiting for consent")
		err = ErrConsentRequired
	}
	c.unlockAndNotify()

	c.cache.Put(ctx, cache.NamespaceDraft, patientID, snap)
	return err
}

// RetryPoll polls again for an analysis that timed out, without
// resubmitting the case.
func (c *Controller) RetryPoll(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != StateError {
		c.mu.Unlock()
		return ErrNotInErrorState
	}
	if c.stageErr == nil || !c.stageErr.Timeout() || c.requestID == "" {
		c.mu.Unlock()
		return ErrNothingToRepoll
	}
	c.startPipelineLocked(ctx, intake.AnalysisRequest{}, c.requestID)
	c.unlockAndNotify()
	return nil
}

// Retry leaves the error state and returns to editing. The draft is kept.
func (c *Controller) Retry() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != StateError {
		c.mu.Unlock()
		return ErrNotInErrorState
	}
	c.state = StateEditing
	c.stageErr = nil
	c.requestID = ""
	c.unlockAndNotify()
	return nil
}

// LoadMoreHistory fetches the next history page if there is one.
func (c *Controller) LoadMoreHistory(ctx context.Context) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.history.HasMore() {
		c.mu.Unlock()
		return nil
	}
	tag, patientID, page := c.tag, c.patientID, c.history.NextPage()
	c.mu.Unlock()

	return c.loadHistory(ctx, tag, patientID, page)
}

func (c *Controller) loadHistory(ctx context.Context, tag, patientID string, page int) error {
	p, err := c.history.Fetch(ctx, patientID, page)

	c.mu.Lock()
	if c.tag != tag {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.historyErr = err.Error()
		c.logger.Warn().Err(err).Int("page", page).Msg("history load failed")
		c.unlockAndNotify()
		return err
	}
	c.historyErr = ""
	if err := c.history.Apply(patientID, p); err != nil {
		c.mu.Unlock()
		return nil
	}
	hydrated, ok := c.history.Hydrate(c.analysis)
	if ok {
		c.analysis = hydrated
		c.logger.Debug().Str("case_id", hydrated.CaseID).Msg("analysis hydrated from history")
	}
	c.unlockAndNotify()

	if ok {
		c.cache.Put(ctx, cache.NamespaceAnalysis, patientID, *hydrated)
	}
	return nil
}

// AddReviewerNote attaches a note to a history record locally and posts it
// in the background. Failures to post are logged only.
func (c *Controller) AddReviewerNote(ctx context.Context, caseID, note string) error {
	caseID = strings.TrimSpace(caseID)
	note = strings.TrimSpace(note)
	if caseID == "" || note == "" {
		return ErrNoteRequired
	}

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.history.AttachNote(caseID, note)
	logger := c.logger
	c.wg.Add(1)
	c.unlockAndNotify()

	go func() {
		defer c.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noteTimeout)
		defer cancel()
		if err := c.svc.AddNote(nctx, caseID, note); err != nil {
			logger.Warn().Err(err).Str("case_id", caseID).Msg("reviewer note not saved")
		}
	}()
	return nil
}

// HistoryPageSize is the number of records requested per history page.
func (c *Controller) HistoryPageSize() int {
	return c.history.PageSize()
}

// Await blocks until the active pipeline, if any, has finished.
func (c *Controller) Await(ctx context.Context) error {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels pending work and waits for background goroutines.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.debounce.cancel()
	c.stopPipelineLocked()
	c.tag = ""
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) usableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.patientID == "" {
		return ErrNoPatient
	}
	return nil
}

func (c *Controller) stopPipelineLocked() {
	if c.run != nil {
		c.run.cancel()
		c.run = nil
	}
}

// startPipelineLocked runs submit (unless requestID is set), poll and
// normalize in a goroutine tied to the current session tag. The pipeline
// is detached from the caller's cancellation.
func (c *Controller) startPipelineLocked(parent context.Context, req intake.AnalysisRequest, requestID string) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	run := &pipelineRun{tag: c.tag, cancel: cancel, done: make(chan struct{})}
	c.run = run
	c.stageErr = nil
	if requestID == "" {
		c.requestID = ""
		c.state = StateSubmitting
	} else {
		c.state = StatePolling
	}
	c.logger.Info().Str("stage", string(c.state)).Msg("analysis started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.finishRun(run)
		c.runPipeline(ctx, run, req, requestID)
	}()
}

func (c *Controller) runPipeline(ctx context.Context, run *pipelineRun, req intake.AnalysisRequest, requestID string) {
	if requestID == "" {
		id, err := c.svc.Submit(ctx, req)
		if err != nil {
			c.fail(run, StateSubmitting, err)
			return
		}
		requestID = id
		if !c.advance(run, StatePolling, func() { c.requestID = id }) {
			return
		}
	}

	raw, err := c.svc.Poll(ctx, requestID, c.maxAttempts)
	if err != nil {
		c.fail(run, StatePolling, err)
		return
	}
	if !c.advance(run, StateNormalizing, nil) {
		return
	}

	n := analysis.Normalize(raw)
	if n.CaseID == "" {
		n.CaseID = requestID
	}
	var patientID string
	if !c.advance(run, StateReviewed, func() {
		c.analysis = &n
		patientID = c.patientID
	}) {
		return
	}
	c.cache.Put(ctx, cache.NamespaceAnalysis, patientID, n)
}

// advance moves the pipeline to the next state if run is still current.
func (c *Controller) advance(run *pipelineRun, to State, apply func()) bool {
	c.mu.Lock()
	if c.run != run || c.tag != run.tag {
		c.mu.Unlock()
		return false
	}
	if err := ValidateTransition(c.state, to); err != nil {
		c.logger.Error().Err(err).Msg("pipeline transition rejected")
		c.mu.Unlock()
		return false
	}
	if apply != nil {
		apply()
	}
	c.state = to
	c.logger.Debug().Str("stage", string(to)).Msg("analysis advanced")
	c.unlockAndNotify()
	return true
}

func (c *Controller) fail(run *pipelineRun, stage State, err error) {
	c.mu.Lock()
	if c.run != run || c.tag != run.tag {
		c.mu.Unlock()
		return
	}
	c.stageErr = &StageError{Stage: stage, Err: err}
	c.state = StateError
	c.logger.Error().Err(err).Str("stage", string(stage)).Str("request_id", c.requestID).Msg("analysis failed")
	c.unlockAndNotify()
}

func (c *Controller) finishRun(run *pipelineRun) {
	run.cancel()
	c.mu.Lock()
	if c.run == run {
		c.run = nil
	}
	c.mu.Unlock()
	close(run.done)
}

func (c *Controller) unlockAndNotify() {
	if c.observer == nil {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.observer(snap)
}
