package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/retailops/notifier/internal/app/badges"
	"github.com/retailops/notifier/internal/app/tracker"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/roles"
	"github.com/retailops/notifier/internal/toast"
)

// Element ids patched by the stream.
const (
	BadgesID  = "ops-badges"
	ToastID   = "ops-toast"
	TrackerID = "ops-tracker"
)

func write(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

func esc(s string) string { return templ.EscapeString(s) }

func countBadge(label string, n int) string {
	class := "badge badge-ghost"
	if n > 0 {
		class = "badge badge-primary"
	}
	return `<span class="` + class + `" data-label="` + esc(label) + `">` + esc(label) + ` <b>` + strconv.Itoa(n) + `</b></span>`
}

// Badges renders the navigation badge strip. Finance card badges only appear
// for admin_finance.
func Badges(role contracts.Role, state badges.State) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if err := write(w, `<div id="`, BadgesID, `" class="flex gap-2" data-role="`, esc(string(role)), `">`,
			countBadge("Orders", state.OrderBadgeCount)); err != nil {
			return err
		}
		if role == contracts.RoleAdminFinance {
			if err := write(w,
				countBadge("Verify payment", state.Finance.VerifyPayment),
				countBadge("COD settlement", state.Finance.CODSettlement),
				countBadge("Refund retur", state.Finance.RefundRetur),
			); err != nil {
				return err
			}
		}
		return write(w, `</div>`)
	})
}

// Toast renders the visible toast, or an empty container when none is shown.
func Toast(entry *toast.Entry) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if entry == nil {
			return write(w, `<div id="`, ToastID, `" class="toast toast-end"></div>`)
		}
		return write(w,
			`<div id="`, ToastID, `" class="toast toast-end"><div class="alert alert-info" data-toast-id="`, esc(entry.ID), `">`,
			`<span>`, esc(entry.Message), `</span>`,
			`<button class="btn btn-xs btn-ghost" data-action="dismiss-toast">&times;</button>`,
			`</div></div>`,
		)
	})
}

// Tracker renders the new-task counter, the priority cards and the latest
// unseen events.
func Tracker(snap tracker.Snapshot) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if err := write(w,
			`<section id="`, TrackerID, `" class="space-y-3">`,
			`<div class="flex items-center gap-2"><span class="font-semibold">New tasks</span>`,
			countBadge("New", snap.NewTaskCount),
			`<button class="btn btn-sm btn-outline" data-action="mark-seen">Mark seen</button></div>`,
			`<div class="grid grid-cols-2 gap-2">`,
		); err != nil {
			return err
		}
		for _, card := range snap.PriorityCards {
			newLabel := ""
			if card.NewCount > 0 {
				newLabel = fmt.Sprintf(`<span class="badge badge-accent">+%d new</span>`, card.NewCount)
			}
			if err := write(w,
				`<div class="card bg-base-100 border p-3" data-status="`, esc(card.Status), `">`,
				`<div class="text-sm">`, esc(card.Label), `</div>`,
				`<div class="text-2xl font-bold">`, strconv.Itoa(card.Count), `</div>`, newLabel,
				`</div>`,
			); err != nil {
				return err
			}
		}
		if err := write(w, `</div><ul class="list text-sm">`); err != nil {
			return err
		}
		if len(snap.LatestEvents) == 0 {
			if err := write(w, `<li class="list-row text-base-content/60">Nothing new since you last looked.</li>`); err != nil {
				return err
			}
		}
		for _, e := range snap.LatestEvents {
			if err := write(w,
				`<li class="list-row" data-order-id="`, esc(e.OrderID), `">`,
				`<span>`, esc(tracker.ToastMessage(snap.Role, e)), `</span>`,
				`<time datetime="`, e.TriggeredAt.UTC().Format("2006-01-02T15:04:05Z"), `">`,
				e.TriggeredAt.Format("15:04"), `</time>`,
				`<span class="badge badge-ghost">`, esc(roles.StatusLabel(e.ToStatus)), `</span></li>`,
			); err != nil {
				return err
			}
		}
		return write(w, `</ul></section>`)
	})
}

// String renders a component for embedding in an event stream frame.
func String(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Placeholders rendered before the first stream frame arrives.
var (
	EmptyBadges  = badges.State{}
	EmptyTracker = tracker.Snapshot{}
)
