package persist

import "time"

// Identity is the authenticated user behind an onboarding session.
type Identity struct {
	UserID    string
	Name      string
	Email     string
	Onboarded bool
	CreatedAt time.Time
}

// Workspace is one workspace record owned by a user.
type Workspace struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Project is one project record inside a workspace.
type Project struct {
	ID          string
	WorkspaceID string
	Name        string
	CreatedAt   time.Time
}
