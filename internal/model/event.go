package model

import (
	"time"

	"github.com/google/uuid"
)

type PushEventKind string

const (
	PushHeartbeat          PushEventKind = "heartbeat"
	PushNewReport          PushEventKind = "new_report"
	PushConfirmationUpdate PushEventKind = "confirmation_update"
	PushReportExpired      PushEventKind = "report_expired"
	PushReportDeleted      PushEventKind = "report_deleted"
)

// PushEvent is a decoded server-to-client event. Report is set only for
// PushNewReport; ConfirmationCount only for PushConfirmationUpdate.
type PushEvent struct {
	Kind              PushEventKind
	ReportID          uuid.UUID
	Report            *Report
	ConfirmationCount int
	ReceivedAt        time.Time
}

type ChangeKind string

const (
	ChangeUpsert     ChangeKind = "upsert"
	ChangeRemove     ChangeKind = "remove"
	ChangeConnection ChangeKind = "connection"
)

// ChangeEvent announces a change installed in the report store.
type ChangeEvent struct {
	Kind      ChangeKind `json:"kind"`
	ReportID  uuid.UUID  `json:"report_id,omitempty"`
	Report    *Report    `json:"report,omitempty"`
	Connected *bool      `json:"connected,omitempty"`
	At        time.Time  `json:"at"`
}
