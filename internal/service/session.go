package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ACBRI/veritas.ia/internal/repository"

	"github.com/google/uuid"
)

type SessionRepository interface {
	Load(ctx context.Context) (*repository.SessionRecord, error)
	Save(ctx context.Context, rec *repository.SessionRecord) (*repository.SessionRecord, error)
}

// EnsureSession returns the stored anonymous session id, creating and
// persisting one on first use.
func EnsureSession(ctx context.Context, repo SessionRepository) (string, error) {
	rec, err := repo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if rec != nil {
		return rec.SessionID, nil
	}

	stored, err := repo.Save(ctx, &repository.SessionRecord{
		SessionID: uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	log.Printf("session: created anonymous session %s", stored.SessionID)
	return stored.SessionID, nil
}
