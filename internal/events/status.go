package events

import "github.com/corkboard/backend/internal/models"

// transitions lists the statuses an event may move to from each status.
var transitions = map[models.EventStatus][]models.EventStatus{
	models.EventStatusDraft:     {models.EventStatusPublished, models.EventStatusCancelled},
	models.EventStatusPublished: {models.EventStatusCancelled, models.EventStatusCompleted},
}

// CanTransition reports whether an event may move from one status to another.
func CanTransition(from, to models.EventStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
