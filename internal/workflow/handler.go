package workflow

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/history"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/auth"
	"github.com/Megagig/pharmacy-monorepo-sub016/pkg/pagination"
)

// maxHistoryCatchUp bounds how many pages one history request may load.
const maxHistoryCatchUp = 10

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sessions")
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.DeleteSession)
	g.PUT("/:id/patient", h.SelectPatient)
	g.PATCH("/:id/draft", h.EditDraft)
	g.POST("/:id/consent", h.GrantConsent)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/retry", h.Retry)
	g.POST("/:id/repoll", h.RetryPoll)
	g.GET("/:id/history", h.History)
	g.POST("/:id/notes", h.AddNote)
}

type selectPatientRequest struct {
	PatientID string `json:"patientId"`
}

type editDraftRequest struct {
	Draft   *intake.CaseDraft `json:"draft"`
	Touched []intake.Field    `json:"touched"`
}

type noteRequest struct {
	CaseID string `json:"caseId"`
	Note   string `json:"note"`
}

type createSessionResponse struct {
	ID      string   `json:"id"`
	Session Snapshot `json:"session"`
}

func owner(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) controller(c echo.Context) (*Controller, error) {
	ctrl, err := h.registry.Get(c.Param("id"), owner(c))
	if err != nil {
		return nil, httpError(err)
	}
	return ctrl, nil
}

func (h *Handler) CreateSession(c echo.Context) error {
	id, ctrl := h.registry.Create(owner(c))
	return c.JSON(http.StatusCreated, createSessionResponse{ID: id, Session: ctrl.Snapshot()})
}

func (h *Handler) GetSession(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.registry.Remove(c.Param("id"), owner(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SelectPatient(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	var req selectPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := ctrl.SelectPatient(c.Request().Context(), req.PatientID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) EditDraft(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	var req editDraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	_, err = ctrl.Edit(func(d *intake.CaseDraft) {
		if req.Draft != nil {
			*d = req.Draft.Clone()
		}
	}, req.Touched...)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) GrantConsent(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.GrantConsent(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ctrl.Snapshot())
}

// Submit starts the analysis. With ?wait=true the response is held until
// the pipeline finishes or the request is cancelled.
func (h *Handler) Submit(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	switch err := ctrl.Submit(ctx); {
	case errors.Is(err, ErrInvalidDraft):
		return c.JSON(http.StatusUnprocessableEntity, ctrl.Snapshot())
	case errors.Is(err, ErrConsentRequired):
		return c.JSON(http.StatusConflict, ctrl.Snapshot())
	case err != nil:
		return httpError(err)
	}
	if c.QueryParam("wait") == "true" {
		if err := ctrl.Await(ctx); err != nil {
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		}
		return c.JSON(http.StatusOK, ctrl.Snapshot())
	}
	return c.JSON(http.StatusAccepted, ctrl.Snapshot())
}

func (h *Handler) Retry(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.Retry(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) RetryPoll(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.RetryPoll(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, ctrl.Snapshot())
}

// History returns one page of the aggregated history, loading further
// pages from the analysis service as needed.
func (h *Handler) History(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p := pagination.FromContext(c)
	p.Limit = ctrl.HistoryPageSize()

	view := ctrl.Snapshot().History
	for i := 0; view.Page < p.Page && view.HasMore && i < maxHistoryCatchUp; i++ {
		if err := ctrl.LoadMoreHistory(ctx); err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		view = ctrl.Snapshot().History
	}

	start, end := p.Window(len(view.Records))
	items := append([]history.HistoryRecord{}, view.Records[start:end]...)
	total := view.Total
	if total < len(view.Records) {
		total = len(view.Records)
	}
	resp := pagination.NewResponse(items, total, p)
	if p.Page >= view.Page && view.HasMore {
		resp.HasMore = true
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddNote(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := ctrl.AddReviewerNote(c.Request().Context(), req.CaseID, req.Note); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, ctrl.Snapshot())
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNoPatient), errors.Is(err, ErrNoteRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSubmissionActive), errors.Is(err, ErrNotInErrorState),
		errors.Is(err, ErrNothingToRepoll), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrClosed):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
