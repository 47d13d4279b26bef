package subscription

import (
	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
)

// StatusNone is the pseudo-state of a tenant with no subscription record
// in a category. It only ever appears on the left side of a transition.
const StatusNone models.SubscriptionStatus = ""

// transitionTable is the exhaustive set of legal status moves. Anything
// not listed is a conflict; there is no fallback path.
var transitionTable = map[models.SubscriptionStatus]map[models.SubscriptionStatus]bool{
	StatusNone: {
		models.SubscriptionTrialing:        true,
		models.SubscriptionActive:          true,
		models.SubscriptionManuallyGranted: true,
	},
	models.SubscriptionTrialing: {
		models.SubscriptionActive:    true,
		models.SubscriptionExpired:   true,
		models.SubscriptionCancelled: true,
	},
	models.SubscriptionActive: {
		models.SubscriptionCancelled: true,
		models.SubscriptionExpired:   true,
	},
	models.SubscriptionManuallyGranted: {
		models.SubscriptionCancelled: true,
		models.SubscriptionExpired:   true,
	},
	// cancelled and expired are terminal; re-entry happens through a new
	// subscription record, never by resurrecting the old row.
	models.SubscriptionCancelled: {},
	models.SubscriptionExpired:   {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.SubscriptionStatus) bool {
	return transitionTable[from][to]
}

func checkTransition(from, to models.SubscriptionStatus) error {
	if !CanTransition(from, to) {
		return apperr.Conflictf("illegal subscription transition %s -> %s", from, to)
	}
	return nil
}
