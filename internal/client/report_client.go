// Package client talks to the Veritas backend over request/response calls.
// It converts payloads at the boundary and never retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/model"
	"github.com/ACBRI/veritas.ia/internal/offense"
	"github.com/ACBRI/veritas.ia/internal/wire"

	"github.com/google/uuid"
)

const (
	reportsPath  = "/reports/"
	offensesPath = "/electoral-offenses/"

	SessionHeader = "X-Session-ID"

	maxErrorBody = 4 << 10
)

type ReportClient struct {
	baseURL    string
	httpClient *http.Client
	translator *offense.Translator
	sessionID  string
}

func NewReportClient(baseURL string, timeout time.Duration, translator *offense.Translator) *ReportClient {
	if translator == nil {
		translator = offense.Default
	}
	return &ReportClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		translator: translator,
	}
}

// SetSessionID tags subsequent submissions with the anonymous session.
func (c *ReportClient) SetSessionID(id string) {
	c.sessionID = id
}

// Create submits a draft and returns the backend-assigned report.
func (c *ReportClient) Create(ctx context.Context, draft model.ReportDraft) (model.Report, error) {
	wireID, ok := c.translator.Resolve(draft.OffenseTypeID)
	if !ok {
		return model.Report{}, fmt.Errorf("%w: %q", model.ErrUnknownOffenseType, draft.OffenseTypeID)
	}

	local, err := geo.FromLocation(draft.Location, geo.ShapeLocal)
	if err != nil {
		return model.Report{}, err
	}
	transport, err := geo.Normalize(local, geo.ShapeTransport)
	if err != nil {
		return model.Report{}, err
	}

	payload := wire.CreateReportRequest{
		OffenseTypeID: wireID,
		Coordinates:   transport.(geo.TransportCoordinates).Coordinates,
	}

	var rec wire.ReportRecord
	if err := c.do(ctx, http.MethodPost, reportsPath, nil, payload, &rec); err != nil {
		return model.Report{}, err
	}

	report, err := rec.ToReport(c.translator)
	if err != nil {
		return model.Report{}, &model.MalformedResponseError{Err: err}
	}
	// The backend echoes what it stored; keep the precision we sent when the
	// record does not carry it.
	if rec.Accuracy == nil {
		report.Location.Accuracy = draft.Location.Accuracy
	}
	return report, nil
}

// List returns the reports inside bounds. filter may be nil.
func (c *ReportClient) List(ctx context.Context, bounds geo.BoundsInput, filter *model.OffenseType, activeOnly bool) ([]model.Report, error) {
	b, err := geo.NormalizeBounds(bounds)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("min_lat", formatFloat(b.MinLat))
	q.Set("min_lon", formatFloat(b.MinLon))
	q.Set("max_lat", formatFloat(b.MaxLat))
	q.Set("max_lon", formatFloat(b.MaxLon))
	q.Set("active_only", strconv.FormatBool(activeOnly))
	if filter != nil {
		wireID, ok := c.translator.Resolve(*filter)
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrUnknownOffenseType, *filter)
		}
		q.Set("offense_type", strconv.Itoa(wireID))
	}

	var records []wire.ReportRecord
	if err := c.do(ctx, http.MethodGet, reportsPath, q, nil, &records); err != nil {
		return nil, err
	}

	// One bad record must not blank the whole window.
	reports := make([]model.Report, 0, len(records))
	for _, rec := range records {
		report, err := rec.ToReport(c.translator)
		if err != nil {
			log.Printf("client: skipping report %s: %v", rec.ID, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Confirm registers one confirmation for id. Idempotency is the caller's job.
func (c *ReportClient) Confirm(ctx context.Context, id uuid.UUID) (model.ConfirmationAck, error) {
	var ack model.ConfirmationAck
	path := reportsPath + url.PathEscape(id.String()) + "/confirm"
	if err := c.do(ctx, http.MethodPut, path, nil, struct{}{}, &ack); err != nil {
		return model.ConfirmationAck{}, err
	}
	return ack, nil
}

// ListOffenses returns the offense catalogue with local ids attached.
// Categories the translator does not know keep an empty LocalID.
func (c *ReportClient) ListOffenses(ctx context.Context) ([]model.OffenseCategory, error) {
	var records []wire.OffenseRecord
	if err := c.do(ctx, http.MethodGet, offensesPath, nil, nil, &records); err != nil {
		return nil, err
	}

	out := make([]model.OffenseCategory, 0, len(records))
	for _, rec := range records {
		local, _ := c.translator.FromWire(rec.ID)
		out = append(out, model.OffenseCategory{
			WireID:      rec.ID,
			LocalID:     local,
			Name:        rec.Name,
			Description: rec.Description,
			IconURL:     rec.IconURL,
		})
	}
	return out, nil
}

func (c *ReportClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &model.TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.sessionID != "" {
		req.Header.Set(SessionHeader, c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.TransportError{StatusCode: resp.StatusCode, Err: errorMessage(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.MalformedResponseError{Err: err}
	}
	return nil
}

func errorMessage(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body wire.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := body.Message(); msg != "" {
			return errors.New(msg)
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return errors.New(text)
	}
	return errors.New(http.StatusText(resp.StatusCode))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
