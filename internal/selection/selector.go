// Package selection keeps track of which bot is active for a tenant's dashboard
// session. A session seeds its choice from the tenant's persisted selection,
// then reconciles it against every new version of the tenant's bot list.
package selection

import (
	"reflect"

	"botdesk/internal/models"
)

const keyPrefix = "selected_bot_"

// Key returns the persistence key holding a tenant's selected bot id.
func Key(tenantID string) string {
	return keyPrefix + tenantID
}

// Resolve picks the bot a session starts with: the persisted selection if it
// is still live, else the primary bot, else the first bot in list order.
// It returns nil for an empty list.
func Resolve(liveBots []models.Bot, persistedID string) *models.Bot {
	if len(liveBots) == 0 {
		return nil
	}
	if persistedID != "" {
		if b := find(liveBots, persistedID); b != nil {
			return b
		}
	}
	for i := range liveBots {
		if liveBots[i].IsPrimary {
			b := liveBots[i]
			return &b
		}
	}
	b := liveBots[0]
	return &b
}

// Reconcile maps the held bot onto a new version of the bot list. A bot that
// is still present is returned with its fresh attributes; the held pointer is
// kept when nothing changed. A bot that disappeared is replaced by what
// Resolve picks without a persisted selection.
func Reconcile(current *models.Bot, liveBots []models.Bot) *models.Bot {
	if current == nil {
		return Resolve(liveBots, "")
	}
	fresh := find(liveBots, current.ID)
	if fresh == nil {
		return Resolve(liveBots, "")
	}
	if reflect.DeepEqual(*current, *fresh) {
		return current
	}
	return fresh
}

// find returns a copy of the bot with the given id.
func find(bots []models.Bot, id string) *models.Bot {
	for i := range bots {
		if bots[i].ID == id {
			b := bots[i]
			return &b
		}
	}
	return nil
}
