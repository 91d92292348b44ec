// Package analysissim is an in-memory stand-in for the remote diagnostic
// analysis service. Cases report processing for a configurable number of
// polls and then complete with a canned analysis.
package analysissim

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/auth"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/middleware"
	"github.com/Megagig/pharmacy-monorepo-sub016/pkg/pagination"
)

const DefaultProcessingPolls = 2

type Option func(*Server)

// WithProcessingPolls sets how many polls answer "processing" before a case
// completes.
func WithProcessingPolls(n int) Option {
	return func(s *Server) { s.processingPolls = n }
}

// WithFailingPatients makes every case for the given patients fail.
func WithFailingPatients(ids ...string) Option {
	return func(s *Server) {
		for _, id := range ids {
			s.failing[id] = true
		}
	}
}

// WithServiceAuth requires service bearer tokens signed with cfg.SigningKey.
func WithServiceAuth(cfg auth.JWTConfig) Option {
	return func(s *Server) { s.authCfg = &cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

type Server struct {
	store           *Store
	processingPolls int
	failing         map[string]bool
	authCfg         *auth.JWTConfig
	logger          zerolog.Logger
	now             func() time.Time
}

func New(opts ...Option) *Server {
	s := &Server{
		store:           NewStore(),
		processingPolls: DefaultProcessingPolls,
		failing:         make(map[string]bool),
		logger:          zerolog.Nop(),
		now:             time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the backing case store.
func (s *Server) Store() *Store { return s.store }

// Echo builds a ready-to-serve echo instance with the simulator routes.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(s.logger))
	s.RegisterRoutes(e)
	return e
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	g := e.Group("/diagnostics")
	if s.authCfg != nil {
		g.Use(auth.JWTMiddleware(*s.authCfg))
	}
	g.POST("/cases", s.submit)
	g.GET("/cases/:id", s.poll)
	g.POST("/cases/:id/notes", s.addNote)
	g.GET("/patients/:id/history", s.history)
}

func (s *Server) submit(c echo.Context) error {
	var req intake.AnalysisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	if !req.ConsentObtained {
		return echo.NewHTTPError(http.StatusBadRequest, "patient consent is required")
	}
	if len(req.Symptoms.Subjective) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one subjective symptom is required")
	}

	cs := &Case{
		ID:             uuid.NewString(),
		PatientID:      req.PatientID,
		Request:        req,
		Status:         StatusProcessing,
		PollsRemaining: s.processingPolls,
		CreatedAt:      s.now().UTC(),
	}
	s.store.Create(cs)
	s.logger.Info().Str("case_id", cs.ID).Str("patient_id", cs.PatientID).Msg("case accepted")

	return c.JSON(http.StatusCreated, map[string]string{"id": cs.ID, "status": "queued"})
}

func (s *Server) complete(cs *Case) {
	if s.failing[cs.PatientID] {
		cs.Status = StatusFailed
		cs.FailureReason = "analysis model unavailable"
		return
	}
	elapsed := s.now().Sub(cs.CreatedAt)
	cs.Status = StatusCompleted
	cs.Result = resultFor(cs.ID, cs.Request, float64(elapsed.Milliseconds()))
}

func (s *Server) poll(c echo.Context) error {
	cs, err := s.store.Advance(c.Param("id"), s.complete)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	switch cs.Status {
	case StatusProcessing:
		return c.JSON(http.StatusOK, map[string]string{"id": cs.ID, "status": StatusProcessing})
	case StatusFailed:
		return c.JSON(http.StatusOK, map[string]string{"id": cs.ID, "status": StatusFailed, "error": cs.FailureReason})
	default:
		return c.JSON(http.StatusOK, map[string]interface{}{"id": cs.ID, "status": cs.Status, "result": cs.Result})
	}
}

func (s *Server) addNote(c echo.Context) error {
	var body struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Note) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "note is required")
	}
	if err := s.store.SetNote(c.Param("id"), strings.TrimSpace(body.Note)); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": c.Param("id"), "note": strings.TrimSpace(body.Note)})
}

func (s *Server) history(c echo.Context) error {
	p := pagination.FromContext(c)
	all := s.store.History(c.Param("id"))
	start, end := p.Window(len(all))
	return c.JSON(http.StatusOK, pagination.NewResponse(all[start:end], len(all), p))
}
