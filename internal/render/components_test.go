package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/notifier/internal/app/badges"
	"github.com/retailops/notifier/internal/app/tracker"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/toast"
)

func TestBadges_FinanceOnlyCards(t *testing.T) {
	state := badges.State{OrderBadgeCount: 4, Finance: badges.FinanceBadges{VerifyPayment: 1, CODSettlement: 2, RefundRetur: 3}}

	html, err := String(context.Background(), Badges(contracts.RoleAdminFinance, state))
	require.NoError(t, err)
	assert.Contains(t, html, `id="ops-badges"`)
	assert.Contains(t, html, "Refund retur <b>3</b>")

	html, err = String(context.Background(), Badges(contracts.RoleKasir, state))
	require.NoError(t, err)
	assert.Contains(t, html, "Orders <b>4</b>")
	assert.NotContains(t, html, "Refund retur")
}

func TestToast_EscapesMessage(t *testing.T) {
	html, err := String(context.Background(), Toast(&toast.Entry{ID: "t1", Message: `<script>alert(1)</script>`}))
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")

	empty, err := String(context.Background(), Toast(nil))
	require.NoError(t, err)
	assert.Equal(t, `<div id="ops-toast" class="toast toast-end"></div>`, empty)
}

func TestTracker_RendersCardsAndEvents(t *testing.T) {
	snap := tracker.Snapshot{
		Role:         contracts.RoleAdminGudang,
		NewTaskCount: 1,
		PriorityCards: []tracker.PriorityCard{
			{Status: "ready_to_ship", Label: "Ready to ship", Count: 3, NewCount: 1},
		},
		LatestEvents: []contracts.OrderStatusChanged{
			{OrderID: "o-1", ToStatus: "ready_to_ship", TriggeredAt: time.Date(2026, 2, 9, 22, 0, 1, 0, time.UTC)},
		},
	}
	html, err := String(context.Background(), Tracker(snap))
	require.NoError(t, err)
	assert.Contains(t, html, "+1 new")
	assert.Contains(t, html, `data-order-id="o-1"`)
	assert.Contains(t, html, "Order o-1 is now Ready to ship")
	assert.Equal(t, 1, strings.Count(html, `data-status=`))

	empty, err := String(context.Background(), Tracker(tracker.Snapshot{Role: contracts.RoleKasir}))
	require.NoError(t, err)
	assert.Contains(t, empty, "Nothing new since you last looked.")
}
