package models

import "time"

// Activity is one entry of the append-only audit feed.
type Activity struct {
	ID         string    `json:"id" db:"id"`
	ProjectID  string    `json:"projectId,omitempty" db:"project_id"`
	EntityType string    `json:"entityType" db:"entity_type"` // "project", "task", "user", ...
	EntityID   string    `json:"entityId" db:"entity_id"`
	Action     string    `json:"action" db:"action"` // "create", "status_change", ...
	ActorID    string    `json:"actorId" db:"actor_id"`
	Message    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// ActivityFilter narrows the activity feed. ProjectIDs, when non-nil,
// restricts results to those projects.
type ActivityFilter struct {
	ProjectID  string
	ProjectIDs []string
	ActorID    string
	Page       Page
}
