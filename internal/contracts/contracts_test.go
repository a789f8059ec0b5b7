package contracts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_OrderStatusChanged(t *testing.T) {
	payload := []byte(`{"order_id":"ord-1","to_status":"ready_to_ship","triggered_at":"2026-02-09T22:00:01Z","target_roles":["admin_gudang"]}`)

	event, err := Decode(EventOrderStatusChanged, payload)
	require.NoError(t, err)

	got, ok := event.(OrderStatusChanged)
	require.True(t, ok)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, "ready_to_ship", got.ToStatus)
	assert.Equal(t, []Role{RoleAdminGudang}, got.TargetRoles)
	assert.Equal(t, time.Date(2026, 2, 9, 22, 0, 1, 0, time.UTC), got.TriggeredAt.UTC())
	assert.Equal(t, []string{"ord-1"}, got.EntityIDs(IDOrder))
	assert.Nil(t, got.EntityIDs(IDDriver))
}

func TestDecode_OrderWithoutIDIsInvalid(t *testing.T) {
	_, err := Decode(EventOrderStatusChanged, []byte(`{"to_status":"pending"}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode("invoice:created", []byte(`{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecode_BadgeRefreshIgnoresPayload(t *testing.T) {
	event, err := Decode(EventRefreshBadges, nil)
	require.NoError(t, err)
	assert.Equal(t, DomainBadgeRefresh, event.Domain())
}

func TestCODSettlementEntityIDs(t *testing.T) {
	e := CODSettlementUpdated{DriverID: "drv-1", OrderIDs: []string{"o1", "o2"}}
	assert.Equal(t, []string{"drv-1"}, e.EntityIDs(IDDriver))
	assert.Equal(t, []string{"o1", "o2"}, e.EntityIDs(IDOrder))
	assert.Nil(t, e.EntityIDs(IDRetur))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := ReturStatusChanged{ReturID: "r-1", OrderID: "o-1", ToStatus: "approved"}
	name, payload, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, EventReturStatusChanged, name)

	out, err := Decode(name, payload)
	require.NoError(t, err)
	assert.Equal(t, in.ReturID, out.(ReturStatusChanged).ReturID)
}

func TestEventName(t *testing.T) {
	assert.Equal(t, EventCODSettlementUpdated, EventName(DomainCODSettlement))
	assert.Equal(t, "", EventName(Domain("invoice")))
}

func TestDedupKeyStableAcrossZones(t *testing.T) {
	at := time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC)
	a := OrderStatusChanged{OrderID: "o", ToStatus: "pending", TriggeredAt: at}
	b := OrderStatusChanged{OrderID: "o", ToStatus: "pending", TriggeredAt: at.In(time.FixedZone("WIB", 7*3600))}
	assert.Equal(t, a.DedupKey(), b.DedupKey())
}
