package domain

import "time"

// Chore is a recurring or one-off household task.
type Chore struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	IsCompleted bool       `json:"isCompleted"`
	Timestamps
}
