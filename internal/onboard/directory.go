package onboard

import (
	"context"

	"github.com/plura-ai/onboard/internal/dispatch"
	"github.com/plura-ai/onboard/internal/persist"
)

// storeDirectory adapts the persistence layer to the dispatcher's
// directory surface.
type storeDirectory struct {
	store *persist.Store
}

// NewDirectory exposes the persistence store as a dispatch.Directory.
func NewDirectory(store *persist.Store) dispatch.Directory {
	return &storeDirectory{store: store}
}

func (d *storeDirectory) FirstWorkspaceOfUser(_ context.Context, userID string) (*dispatch.WorkspaceRecord, error) {
	ws, err := d.store.GetFirstWorkspaceOfUser(userID)
	if err != nil || ws == nil {
		return nil, err
	}
	return &dispatch.WorkspaceRecord{ID: ws.ID, Name: ws.Name}, nil
}

func (d *storeDirectory) ProjectOfWorkspace(_ context.Context, workspaceID string) (*dispatch.ProjectRecord, error) {
	proj, err := d.store.GetProjectOfUser(workspaceID)
	if err != nil || proj == nil {
		return nil, err
	}
	return &dispatch.ProjectRecord{Name: proj.Name}, nil
}

func (d *storeDirectory) CompleteOnboarding(_ context.Context, userID string) error {
	return d.store.OnboardingComplete(userID)
}
