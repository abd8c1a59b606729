package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/model"
	"github.com/ACBRI/veritas.ia/internal/offense"
	"github.com/ACBRI/veritas.ia/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const catalogTimeout = 10 * time.Second

type OffenseCatalog interface {
	ListOffenses(ctx context.Context) ([]model.OffenseCategory, error)
}

// ReportHandler exposes the report store to local UI collaborators.
type ReportHandler struct {
	store      *service.ReportStore
	catalog    OffenseCatalog
	translator *offense.Translator
	onViewport func(model.ViewBounds)
	now        func() time.Time
}

func NewReportHandler(store *service.ReportStore, catalog OffenseCatalog) *ReportHandler {
	return &ReportHandler{
		store:      store,
		catalog:    catalog,
		translator: offense.Default,
		now:        time.Now,
	}
}

// SetViewportListener installs a callback told about every accepted viewport.
func (h *ReportHandler) SetViewportListener(fn func(model.ViewBounds)) {
	h.onViewport = fn
}

func (h *ReportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Handles GET /status - loading and connection flags for the status badge.
func (h *ReportHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loading":      h.store.Loading(),
		"is_connected": h.store.IsConnected(),
		"session_id":   h.store.SessionID(),
		"report_count": len(h.store.Reports()),
	})
}

// Handles GET /reports - the current collection, newest first.
func (h *ReportHandler) GetReports(c *gin.Context) {
	c.JSON(http.StatusOK, h.listResponse(h.store.Reports()))
}

type viewportRequest struct {
	Bounds      json.RawMessage    `json:"bounds"`
	OffenseType *model.OffenseType `json:"offense_type"`
}

// Handles POST /viewport - fetches the reports inside the visible window.
// The body is either a bare bounds value or {"bounds": ..., "offense_type": ...}.
func (h *ReportHandler) SetViewport(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw := body
	var req viewportRequest
	if err := json.Unmarshal(body, &req); err == nil && len(req.Bounds) > 0 {
		raw = req.Bounds
	}

	input, err := geo.ParseBounds(raw)
	if err != nil {
		writeError(c, err)
		return
	}
	bounds, err := geo.NormalizeBounds(input)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.OffenseType != nil && *req.OffenseType == model.OffenseUnknown {
		req.OffenseType = nil
	}

	if h.onViewport != nil {
		h.onViewport(bounds)
	}

	reports, err := h.store.FetchForBounds(c.Request.Context(), geo.Explicit(bounds), req.OffenseType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.listResponse(reports))
}

// Handles POST /reports - submits a new report.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var draft model.ReportDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.store.Submit(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewReportView(report, h.now()))
}

// Handles PUT /reports/:id/confirm.
func (h *ReportHandler) ConfirmReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}

	report, err := h.store.Confirm(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewReportView(report, h.now()))
}

// Handles GET /reports/nearby?lat=&lng=&radius_km=
func (h *ReportHandler) GetNearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required numbers"})
		return
	}
	origin := model.Location{Latitude: lat, Longitude: lng}
	if err := geo.Validate(origin); err != nil {
		writeError(c, err)
		return
	}

	radius := service.DefaultNearbyRadiusKm
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be a number"})
			return
		}
		radius = r
	}

	c.JSON(http.StatusOK, h.listResponse(h.store.Nearby(origin, radius)))
}

// Handles GET /offenses - the backend catalogue, or the built-in list when
// no catalogue is wired.
func (h *ReportHandler) GetOffenses(c *gin.Context) {
	if h.catalog == nil {
		known := h.translator.Known()
		out := make([]model.OffenseCategory, 0, len(known))
		for _, id := range known {
			wire, _ := h.translator.ToWire(id)
			out = append(out, model.OffenseCategory{WireID: wire, LocalID: id, Name: string(id)})
		}
		c.JSON(http.StatusOK, out)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()

	cats, err := h.catalog.ListOffenses(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (h *ReportHandler) listResponse(reports []model.Report) model.ReportListResponse {
	now := h.now()
	views := make([]model.ReportView, 0, len(reports))
	for _, r := range reports {
		views = append(views, model.NewReportView(r, now))
	}
	return model.ReportListResponse{
		Reports:     views,
		Total:       len(views),
		Loading:     h.store.Loading(),
		IsConnected: h.store.IsConnected(),
	}
}

func writeError(c *gin.Context, err error) {
	var (
		rateLimited *model.RateLimitedError
		imprecise   *model.LocationTooImpreciseError
	)

	switch {
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             err.Error(),
			"minutes_remaining": rateLimited.MinutesRemaining,
		})
	case errors.As(err, &imprecise):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           err.Error(),
			"accuracy_meters": imprecise.AccuracyMeters,
		})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidCoordinates), errors.Is(err, model.ErrUnknownOffenseType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrTransport), errors.Is(err, model.ErrMalformedResponse):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "could not reach the report service, please try again",
			"detail": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
