package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"applydesk/internal/domain"
)

// CreatePosition records an open role for the caller's organization.
func (a *App) CreatePosition(ctx context.Context, orgID, title, startingDate string) (domain.Position, error) {
	ve := &ValidationError{}
	if strings.TrimSpace(title) == "" {
		ve.Messages = append(ve.Messages, "Title is required.")
	}
	start, err := time.Parse("2006-01-02", startingDate)
	if err != nil {
		ve.Messages = append(ve.Messages, "Starting date must be a valid date (YYYY-MM-DD).")
	}
	if len(ve.Messages) > 0 {
		return domain.Position{}, ve
	}
	p := domain.Position{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Title:        strings.TrimSpace(title),
		StartingDate: start,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SavePosition(p); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// ListPositions returns the organization's open roles, newest first.
func (a *App) ListPositions(ctx context.Context, orgID string) ([]domain.Position, error) {
	return a.store.ListPositionsByOrg(orgID)
}
