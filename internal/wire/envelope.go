package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"
	"github.com/ACBRI/veritas.ia/internal/offense"

	"github.com/google/uuid"
)

// ErrUnknownType marks envelopes whose type this client does not handle.
var ErrUnknownType = errors.New("unknown push message type")

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ConfirmationUpdate struct {
	ReportID          string `json:"report_id"`
	ConfirmationCount int    `json:"confirmation_count"`
}

type ReportRef struct {
	ReportID string `json:"report_id"`
}

// Decode turns an envelope into a push event. Unknown types yield
// ErrUnknownType; every other failure is a malformed message.
func (e Envelope) Decode(tr *offense.Translator, now time.Time) (model.PushEvent, error) {
	ev := model.PushEvent{Kind: model.PushEventKind(e.Type), ReceivedAt: now}

	switch ev.Kind {
	case model.PushHeartbeat:
		return ev, nil

	case model.PushNewReport:
		var rec ReportRecord
		if err := e.unmarshalData(&rec); err != nil {
			return ev, err
		}
		report, err := rec.ToReport(tr)
		if err != nil {
			return ev, fmt.Errorf("new_report: %w", err)
		}
		if report.CreatedAt.IsZero() {
			report.CreatedAt = now
		}
		ev.ReportID = report.ID
		ev.Report = &report
		return ev, nil

	case model.PushConfirmationUpdate:
		var upd ConfirmationUpdate
		if err := e.unmarshalData(&upd); err != nil {
			return ev, err
		}
		id, err := uuid.Parse(upd.ReportID)
		if err != nil {
			return ev, fmt.Errorf("confirmation_update: report_id: %w", err)
		}
		ev.ReportID = id
		ev.ConfirmationCount = upd.ConfirmationCount
		return ev, nil

	case model.PushReportExpired, model.PushReportDeleted:
		var ref ReportRef
		if err := e.unmarshalData(&ref); err != nil {
			return ev, err
		}
		id, err := uuid.Parse(ref.ReportID)
		if err != nil {
			return ev, fmt.Errorf("%s: report_id: %w", e.Type, err)
		}
		ev.ReportID = id
		return ev, nil

	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
}

func (e Envelope) unmarshalData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}
