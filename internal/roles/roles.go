package roles

import (
	"github.com/retailops/notifier/internal/contracts"
)

// Formula maps a stats aggregate to a badge number.
type Formula func(stats contracts.OrderStats) int

// sumOf builds a formula that adds the given statuses, each counted once.
func sumOf(statuses ...string) Formula {
	set := uniq(statuses)
	return func(stats contracts.OrderStats) int {
		total := 0
		for _, status := range set {
			total += stats.Count(status)
		}
		return total
	}
}

var financeBadge = []string{
	contracts.StatusWaitingInvoice,
	contracts.StatusWaitingAdminVerification,
	contracts.StatusDelivered,
	contracts.StatusDebtPending,
}

var gudangBadge = []string{
	contracts.StatusPending,
	contracts.StatusReadyToShip,
	contracts.StatusAllocated,
	contracts.StatusPartiallyFulfilled,
}

var kasirBadge = []string{
	contracts.StatusPending,
	contracts.StatusWaitingPayment,
}

var superAdminBadge = concat(financeBadge, gudangBadge, kasirBadge, []string{
	contracts.StatusShipped,
	contracts.StatusHold,
})

var badgeStatuses = map[contracts.Role][]string{
	contracts.RoleAdminFinance: financeBadge,
	contracts.RoleAdminGudang:  gudangBadge,
	contracts.RoleKasir:        kasirBadge,
	contracts.RoleSuperAdmin:   superAdminBadge,
}

var formulas = func() map[contracts.Role]Formula {
	out := make(map[contracts.Role]Formula, len(badgeStatuses))
	for role, statuses := range badgeStatuses {
		out[role] = sumOf(statuses...)
	}
	return out
}()

func zero(contracts.OrderStats) int { return 0 }

// BadgeFormula returns the order badge formula for a role. Unknown roles get
// a formula that always yields zero.
func BadgeFormula(role contracts.Role) Formula {
	if f, ok := formulas[role]; ok {
		return f
	}
	return zero
}

// BadgeStatuses lists the statuses summed into a role's badge.
func BadgeStatuses(role contracts.Role) []string {
	return append([]string(nil), uniq(badgeStatuses[role])...)
}

// Actionable statuses per role. The warehouse set includes hold even though
// hold is not part of its badge formula.
var actionable = map[contracts.Role][]string{
	contracts.RoleAdminGudang: {
		contracts.StatusPending,
		contracts.StatusReadyToShip,
		contracts.StatusAllocated,
		contracts.StatusPartiallyFulfilled,
		contracts.StatusHold,
	},
	contracts.RoleAdminFinance: {
		contracts.StatusWaitingInvoice,
		contracts.StatusWaitingAdminVerification,
		contracts.StatusDelivered,
	},
	contracts.RoleKasir: {
		contracts.StatusPending,
		contracts.StatusWaitingPayment,
	},
	contracts.RoleSuperAdmin: superAdminBadge,
}

// ActionableStatuses returns the ordered actionable set of a role.
func ActionableStatuses(role contracts.Role) []string {
	return append([]string(nil), uniq(actionable[role])...)
}

// IsActionable reports whether an event moving an order to status needs
// attention from role. Drivers act on every event addressed to them.
func IsActionable(role contracts.Role, status string) bool {
	if role == contracts.RoleDriver {
		return true
	}
	for _, s := range actionable[role] {
		if s == status {
			return true
		}
	}
	return false
}

// IsRelevant reports whether an order event is addressed to the given
// role and user. super_admin sees everything; an event without target roles
// is visible to every role. Drivers additionally need to be among the
// declared target users.
func IsRelevant(role contracts.Role, userID string, event contracts.OrderStatusChanged) bool {
	if role == contracts.RoleSuperAdmin {
		return true
	}
	if len(event.TargetRoles) > 0 && !containsRole(event.TargetRoles, role) {
		return false
	}
	if role == contracts.RoleDriver && len(event.TargetUserIDs) > 0 {
		for _, id := range event.TargetUserIDs {
			if id == userID {
				return true
			}
		}
		return false
	}
	return true
}

var statusLabels = map[string]string{
	contracts.StatusPending:                  "Pending",
	contracts.StatusWaitingPayment:           "Waiting for payment",
	contracts.StatusWaitingInvoice:           "Waiting for invoice",
	contracts.StatusWaitingAdminVerification: "Waiting for payment verification",
	contracts.StatusReadyToShip:              "Ready to ship",
	contracts.StatusAllocated:                "Allocated",
	contracts.StatusPartiallyFulfilled:       "Partially fulfilled",
	contracts.StatusShipped:                  "Shipped",
	contracts.StatusDelivered:                "Delivered",
	contracts.StatusDebtPending:              "Debt pending",
	contracts.StatusHold:                     "On hold",
	contracts.StatusCompleted:                "Completed",
	contracts.StatusCanceled:                 "Canceled",
}

// StatusLabel returns a human readable label, falling back to the raw status.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

func containsRole(list []contracts.Role, role contracts.Role) bool {
	for _, r := range list {
		if contracts.ParseRole(string(r)) == role {
			return true
		}
	}
	return false
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return uniq(out)
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
