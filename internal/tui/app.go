package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/retailops/notifier/internal/app/session"
	"github.com/retailops/notifier/internal/app/tracker"
	"github.com/retailops/notifier/internal/contracts"
)

// API is the part of Client the dashboard uses.
type API interface {
	CreateSession(ctx context.Context) (session.State, error)
	CloseSession(ctx context.Context, id string) error
	MarkSeen(ctx context.Context, id string) error
	DismissToast(ctx context.Context, id string) error
	Focus(ctx context.Context, id string) error
	Stream(ctx context.Context, id string, onState func(session.State), onUpdate func(session.Update)) error
}

type sessionCreatedMsg struct {
	state session.State
	err   error
}

type stateMsg session.State

type updateMsg session.Update

type streamEndedMsg struct{ err error }

type actionDoneMsg struct {
	action string
	err    error
}

// App is the root Bubbletea model.
type App struct {
	api     API
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan tea.Msg
	state   session.State
	ready   bool
	status  string
	err     error
	width   int
	updated time.Time
	now     func() time.Time
}

func NewApp(api API) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		api:    api,
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan tea.Msg, 32),
		status: "connecting",
		now:    time.Now,
	}
}

func (a *App) Init() tea.Cmd {
	return a.createSession()
}

func (a *App) createSession() tea.Cmd {
	return func() tea.Msg {
		st, err := a.api.CreateSession(a.ctx)
		return sessionCreatedMsg{state: st, err: err}
	}
}

// listen pumps the stream goroutine's messages into the program one at a
// time.
func (a *App) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-a.inbox:
			return msg
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) startStream(id string) {
	go func() {
		err := a.api.Stream(a.ctx, id,
			func(st session.State) { a.post(stateMsg(st)) },
			func(u session.Update) { a.post(updateMsg(u)) },
		)
		a.post(streamEndedMsg{err: err})
	}()
}

func (a *App) post(msg tea.Msg) {
	select {
	case a.inbox <- msg:
	case <-a.ctx.Done():
	}
}

func (a *App) action(name string, fn func(ctx context.Context, id string) error) tea.Cmd {
	id := a.state.ID
	return func() tea.Msg {
		return actionDoneMsg{action: name, err: fn(a.ctx, id)}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width

	case sessionCreatedMsg:
		if msg.err != nil {
			a.err = msg.err
			a.status = "could not start session"
			return a, nil
		}
		a.state = msg.state
		a.ready = true
		a.status = "live"
		a.startStream(msg.state.ID)
		return a, a.listen()

	case stateMsg:
		a.state = session.State(msg)
		a.updated = a.now()
		return a, a.listen()

	case updateMsg:
		a.apply(session.Update(msg))
		return a, a.listen()

	case streamEndedMsg:
		a.status = "disconnected"
		if msg.err != nil {
			a.err = msg.err
		}
		return a, nil

	case actionDoneMsg:
		if msg.err != nil {
			a.err = fmt.Errorf("%s: %w", msg.action, msg.err)
		} else {
			a.err = nil
		}
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.shutdown()
			return a, tea.Quit
		}
		if !a.ready {
			return a, nil
		}
		switch msg.String() {
		case "s":
			return a, a.action("mark seen", a.api.MarkSeen)
		case "d", "esc":
			return a, a.action("dismiss", a.api.DismissToast)
		case "r":
			return a, a.action("refresh", a.api.Focus)
		}
	}
	return a, nil
}

func (a *App) apply(u session.Update) {
	switch u.Kind {
	case session.UpdateBadges:
		if u.Badges != nil {
			a.state.Badges = *u.Badges
		}
	case session.UpdateTracker:
		if u.Tracker != nil {
			a.state.Tracker = *u.Tracker
		}
	case session.UpdateClosed:
		a.status = "session closed"
	}
	a.updated = a.now()
}

func (a *App) shutdown() {
	if a.ready {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.api.CloseSession(ctx, a.state.ID)
		cancel()
	}
	a.cancel()
}

func (a *App) View() string {
	var b strings.Builder
	header := titleStyle.Render("ops notifier")
	if a.ready {
		header += dimStyle.Render(fmt.Sprintf("  %s (%s)  %s", a.state.Identity.Username, a.state.Identity.Role, a.status))
	} else {
		header += dimStyle.Render("  " + a.status)
	}
	b.WriteString(header + "\n\n")

	if a.ready {
		b.WriteString(a.badgesView() + "\n\n")
		if t := a.state.Tracker.ActiveToast; t != nil {
			b.WriteString(toastStyle.Render(t.Message) + "\n\n")
		}
		b.WriteString(a.trackerView())
	}

	if a.err != nil {
		b.WriteString("\n" + errStyle.Render("error: "+a.err.Error()) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("s mark seen · d dismiss · r refresh · q quit"))
	return b.String()
}

func (a *App) badgesView() string {
	parts := []string{countBadge("Orders", a.state.Badges.OrderBadgeCount)}
	if a.state.Identity.Role == contracts.RoleAdminFinance {
		f := a.state.Badges.Finance
		parts = append(parts,
			countBadge("Verify payment", f.VerifyPayment),
			countBadge("COD settlement", f.CODSettlement),
			countBadge("Refund retur", f.RefundRetur),
		)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, " "))
}

func (a *App) trackerView() string {
	snap := a.state.Tracker
	var b strings.Builder
	b.WriteString(countBadge("New", snap.NewTaskCount) + " " + countBadge("Actionable", snap.ActionableCount) + "\n\n")

	if len(snap.PriorityCards) > 0 {
		cards := make([]string, 0, len(snap.PriorityCards))
		for _, c := range snap.PriorityCards {
			body := fmt.Sprintf("%s\n%d", c.Label, c.Count)
			if c.NewCount > 0 {
				body += fmt.Sprintf(" (+%d)", c.NewCount)
			}
			cards = append(cards, cardStyle.Render(body))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...) + "\n\n")
	}

	if len(snap.LatestEvents) == 0 {
		b.WriteString(dimStyle.Render("Nothing new since you last looked.") + "\n")
		return b.String()
	}
	for _, e := range snap.LatestEvents {
		b.WriteString(dimStyle.Render(e.TriggeredAt.Local().Format("15:04:05")) + "  " + tracker.ToastMessage(snap.Role, e) + "\n")
	}
	return b.String()
}
