// Package analysisclient talks to the remote diagnostic analysis service:
// case submission, completion polling, patient history and reviewer notes.
package analysisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/history"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/auth"
)

const (
	DefaultMaxAttempts    = 30
	DefaultPollInterval   = 2 * time.Second
	DefaultRequestTimeout = 15 * time.Second

	maxBodyBytes = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets the fixed wait between poll attempts.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithRequestTimeout bounds each individual HTTP request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(ts auth.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSleep replaces the wait between poll attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// Client is safe for concurrent use and holds no per-case state.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	pollInterval   time.Duration
	requestTimeout time.Duration
	tokens         auth.TokenSource
	logger         zerolog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		pollInterval:   DefaultPollInterval,
		requestTimeout: DefaultRequestTimeout,
		logger:         zerolog.Nop(),
		sleep:          sleepContext,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type response struct {
	StatusCode int
	Body       []byte
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{StatusCode: resp.StatusCode, Body: data}, nil
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// Submit posts a case for analysis and returns the request id to poll.
func (c *Client) Submit(ctx context.Context, req intake.AnalysisRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/diagnostics/cases", nil, req)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: errors.New(snippet(resp.Body))}
	}

	var body struct {
		ID        string `json:"id"`
		CaseID    string `json:"caseId"`
		RequestID string `json:"requestId"`
		Data      struct {
			ID     string `json:"id"`
			CaseID string `json:"caseId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	id := firstNonEmpty(body.ID, body.CaseID, body.RequestID, body.Data.ID, body.Data.CaseID)
	if id == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: errors.New("response carries no case id")}
	}
	c.logger.Info().Str("request_id", id).Str("patient_id", req.PatientID).Msg("case submitted")
	return id, nil
}

var (
	pendingStatuses = map[string]bool{"processing": true, "pending": true, "queued": true, "in-progress": true, "in_progress": true}
	failedStatuses  = map[string]bool{"failed": true, "error": true, "cancelled": true, "canceled": true}
)

type pollOutcome int

const (
	pollDone pollOutcome = iota
	pollPending
	pollTransient
	pollFailed
)

// Poll fetches the analysis until it leaves the processing state, waiting a
// fixed interval between attempts. It gives up with *PollTimeoutError after
// maxAttempts (DefaultMaxAttempts when <= 0).
func (c *Client) Poll(ctx context.Context, requestID string, maxAttempts int) (*analysis.RawAnalysisResponse, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	log := c.logger.With().Str("request_id", requestID).Logger()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return nil, err
			}
		}

		outcome, raw, err := c.pollOnce(ctx, requestID)
		switch outcome {
		case pollDone:
			log.Info().Int("attempt", attempt).Msg("analysis complete")
			return raw, nil
		case pollFailed:
			return nil, err
		case pollTransient:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("transient poll failure")
		default:
			log.Debug().Int("attempt", attempt).Msg("analysis still processing")
		}
	}
	return nil, &PollTimeoutError{RequestID: requestID, Attempts: maxAttempts}
}

func (c *Client) pollOnce(ctx context.Context, requestID string) (pollOutcome, *analysis.RawAnalysisResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/diagnostics/cases/"+url.PathEscape(requestID), nil, nil)
	if err != nil {
		return pollTransient, nil, err
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return pollPending, nil, nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return pollTransient, nil, fmt.Errorf("status %d", resp.StatusCode)
	case !isSuccess(resp.StatusCode):
		return pollFailed, nil, &PollFailedError{RequestID: requestID, StatusCode: resp.StatusCode, Reason: snippet(resp.Body)}
	}

	var env struct {
		Status   string          `json:"status"`
		Error    string          `json:"error"`
		Message  string          `json:"message"`
		Result   json.RawMessage `json:"result"`
		Analysis json.RawMessage `json:"analysis"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return pollFailed, nil, &PollFailedError{RequestID: requestID, StatusCode: resp.StatusCode, Reason: "malformed response: " + err.Error()}
	}

	payload := resp.Body
	for _, candidate := range []json.RawMessage{env.Result, env.Analysis, env.Data} {
		if isObject(candidate) {
			payload = candidate
			break
		}
	}

	status := strings.ToLower(strings.TrimSpace(env.Status))
	if status == "" && isObject(env.Data) {
		var inner struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(env.Data, &inner)
		status = strings.ToLower(strings.TrimSpace(inner.Status))
	}

	switch {
	case pendingStatuses[status]:
		return pollPending, nil, nil
	case failedStatuses[status]:
		return pollFailed, nil, &PollFailedError{RequestID: requestID, Status: status, Reason: firstNonEmpty(env.Error, env.Message)}
	}

	raw := &analysis.RawAnalysisResponse{}
	if err := json.Unmarshal(payload, raw); err != nil {
		return pollFailed, nil, &PollFailedError{RequestID: requestID, Status: status, Reason: "malformed analysis: " + err.Error()}
	}
	if raw.ID == "" {
		raw.ID = requestID
	}
	return pollDone, raw, nil
}

func isObject(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

// FetchHistory loads one page of a patient's past analyses, newest first.
func (c *Client) FetchHistory(ctx context.Context, patientID string, page, limit int) (history.HistoryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.do(ctx, http.MethodGet, "/diagnostics/patients/"+url.PathEscape(patientID)+"/history", q, nil)
	if err != nil {
		return history.HistoryPage{}, fmt.Errorf("fetch history: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return history.HistoryPage{}, &StatusError{Op: "fetch history", StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}

	var body struct {
		Items      []history.HistoryRecord `json:"items"`
		History    []history.HistoryRecord `json:"history"`
		Data       json.RawMessage         `json:"data"`
		Page       int                     `json:"page"`
		Limit      int                     `json:"limit"`
		Total      int                     `json:"total"`
		Pagination *struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return history.HistoryPage{}, fmt.Errorf("decode history: %w", err)
	}

	out := history.HistoryPage{Page: body.Page, Limit: body.Limit, Total: body.Total}
	switch {
	case len(body.Items) > 0:
		out.Items = body.Items
	case len(body.History) > 0:
		out.Items = body.History
	case len(bytes.TrimSpace(body.Data)) > 0 && bytes.TrimSpace(body.Data)[0] == '[':
		if err := json.Unmarshal(body.Data, &out.Items); err != nil {
			return history.HistoryPage{}, fmt.Errorf("decode history items: %w", err)
		}
	}
	if body.Pagination != nil {
		out.Page = body.Pagination.Page
		out.Limit = body.Pagination.Limit
		out.Total = body.Pagination.Total
	}
	if out.Page <= 0 {
		out.Page = page
	}
	if out.Limit <= 0 {
		out.Limit = limit
	}
	if out.Items == nil {
		out.Items = []history.HistoryRecord{}
	}
	return out, nil
}

// AddNote attaches a reviewer note to a completed case.
func (c *Client) AddNote(ctx context.Context, caseID, note string) error {
	resp, err := c.do(ctx, http.MethodPost, "/diagnostics/cases/"+url.PathEscape(caseID)+"/notes", nil, map[string]string{"note": note})
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return &StatusError{Op: "add note", StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	return nil
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return &StatusError{Op: "ping", StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
