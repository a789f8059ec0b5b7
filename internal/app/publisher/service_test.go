package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/retailops/notifier/internal/contracts"
)

type published struct {
	event   string
	payload []byte
}

func newTestService(out *[]published) *Service {
	svc := NewService(func(_ context.Context, event string, payload []byte) error {
		*out = append(*out, published{event: event, payload: payload})
		return nil
	})
	svc.Now = func() time.Time { return time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC) }
	svc.NewID = func() string { return "evt-1" }
	return svc
}

func TestHandlePayloadPublishesOrderEvent(t *testing.T) {
	var out []published
	svc := newTestService(&out)

	payload := []byte(`{"action":"order-status","order_id":"o-1","from_status":"pending","to_status":"ready_to_ship","target_roles":["admin_gudang"]}`)
	if _, err := svc.HandlePayload(context.Background(), payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one publish, got %d", len(out))
	}
	if out[0].event != contracts.EventOrderStatusChanged {
		t.Fatalf("unexpected event %q", out[0].event)
	}

	var event contracts.OrderStatusChanged
	if err := json.Unmarshal(out[0].payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventID != "evt-1" || event.ToStatus != "ready_to_ship" {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.TriggeredAt.Equal(time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected triggered_at %s", event.TriggeredAt)
	}
	if len(event.TargetRoles) != 1 || event.TargetRoles[0] != contracts.RoleAdminGudang {
		t.Fatalf("unexpected target roles %v", event.TargetRoles)
	}
}

func TestRefreshBadgesPublishesEmptyObject(t *testing.T) {
	var out []published
	svc := newTestService(&out)
	if err := svc.RefreshBadges(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out) != 1 || out[0].event != contracts.EventRefreshBadges || string(out[0].payload) != "{}" {
		t.Fatalf("unexpected publish %+v", out)
	}
}

func TestHandleRejectsBadCommands(t *testing.T) {
	var out []published
	svc := newTestService(&out)

	cases := []struct {
		payload string
		want    error
	}{
		{`{`, ErrInvalidCommandPayload},
		{`{"action":"order-status","order_id":"o-1"}`, ErrInvalidCommandPayload},
		{`{"action":"retur-status"}`, ErrInvalidCommandPayload},
		{`{"action":"cod-settlement"}`, ErrInvalidCommandPayload},
		{`{"action":"archive-order"}`, ErrUnsupportedCommandAction},
	}
	for _, tc := range cases {
		if _, err := svc.HandlePayload(context.Background(), []byte(tc.payload)); !errors.Is(err, tc.want) {
			t.Fatalf("payload %s: expected %v, got %v", tc.payload, tc.want, err)
		}
	}
	if len(out) != 0 {
		t.Fatalf("expected nothing published, got %d", len(out))
	}
}

func TestPublishErrorIsReturned(t *testing.T) {
	boom := errors.New("nats down")
	svc := NewService(func(context.Context, string, []byte) error { return boom })
	if _, err := svc.Handle(context.Background(), Command{Action: ActionCODSettlement, DriverID: "d-1"}); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}
