package contracts

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrUnknownEvent = errors.New("unknown event name")
var ErrInvalidPayload = errors.New("invalid event payload")

// Role identifies an operator worklist.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleAdminFinance Role = "admin_finance"
	RoleAdminGudang  Role = "admin_gudang"
	RoleKasir        Role = "kasir"
	RoleDriver       Role = "driver"
	RoleCustomer     Role = "customer"
)

func ParseRole(raw string) Role {
	return Role(strings.TrimSpace(strings.ToLower(raw)))
}

// Domain is a coarse category of backend change.
type Domain string

const (
	DomainOrder         Domain = "order"
	DomainRetur         Domain = "retur"
	DomainCODSettlement Domain = "cod-settlement"
	DomainBadgeRefresh  Domain = "admin-badge-refresh"
)

// Push channel event names.
const (
	EventOrderStatusChanged   = "order:status_changed"
	EventReturStatusChanged   = "retur:status_changed"
	EventCODSettlementUpdated = "cod:settlement_updated"
	EventRefreshBadges        = "admin:refresh_badges"
)

// IDKind names the entity id families an event can be filtered on.
type IDKind string

const (
	IDOrder  IDKind = "order"
	IDRetur  IDKind = "retur"
	IDDriver IDKind = "driver"
)

// EventName returns the push channel event carrying changes for a domain.
func EventName(d Domain) string {
	switch d {
	case DomainOrder:
		return EventOrderStatusChanged
	case DomainRetur:
		return EventReturStatusChanged
	case DomainCODSettlement:
		return EventCODSettlementUpdated
	case DomainBadgeRefresh:
		return EventRefreshBadges
	default:
		return ""
	}
}

// DomainEvent is one push channel message. Delivery is at-least-once and
// unordered, so consumers must tolerate duplicates.
type DomainEvent interface {
	Domain() Domain
	EntityIDs(kind IDKind) []string
}

type OrderStatusChanged struct {
	EventID       string    `json:"event_id,omitempty"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number,omitempty"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status"`
	TriggeredAt   time.Time `json:"triggered_at"`
	TargetRoles   []Role    `json:"target_roles,omitempty"`
	TargetUserIDs []string  `json:"target_user_ids,omitempty"`
}

func (e OrderStatusChanged) Domain() Domain { return DomainOrder }

func (e OrderStatusChanged) EntityIDs(kind IDKind) []string {
	if kind == IDOrder && e.OrderID != "" {
		return []string{e.OrderID}
	}
	return nil
}

// DedupKey identifies redeliveries of the same transition.
func (e OrderStatusChanged) DedupKey() string {
	return e.OrderID + "|" + e.ToStatus + "|" + e.TriggeredAt.UTC().Format(time.RFC3339Nano)
}

type ReturStatusChanged struct {
	EventID     string    `json:"event_id,omitempty"`
	ReturID     string    `json:"retur_id"`
	OrderID     string    `json:"order_id"`
	ToStatus    string    `json:"to_status,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
}

func (e ReturStatusChanged) Domain() Domain { return DomainRetur }

func (e ReturStatusChanged) EntityIDs(kind IDKind) []string {
	switch kind {
	case IDRetur:
		if e.ReturID != "" {
			return []string{e.ReturID}
		}
	case IDOrder:
		if e.OrderID != "" {
			return []string{e.OrderID}
		}
	}
	return nil
}

type CODSettlementUpdated struct {
	DriverID string   `json:"driver_id"`
	OrderIDs []string `json:"order_ids"`
}

func (e CODSettlementUpdated) Domain() Domain { return DomainCODSettlement }

func (e CODSettlementUpdated) EntityIDs(kind IDKind) []string {
	switch kind {
	case IDDriver:
		if e.DriverID != "" {
			return []string{e.DriverID}
		}
	case IDOrder:
		return e.OrderIDs
	}
	return nil
}

// BadgeRefresh is a pure invalidation signal.
type BadgeRefresh struct{}

func (BadgeRefresh) Domain() Domain              { return DomainBadgeRefresh }
func (BadgeRefresh) EntityIDs(_ IDKind) []string { return nil }

// Decode parses a push channel payload for the named event.
func Decode(name string, payload []byte) (DomainEvent, error) {
	switch name {
	case EventOrderStatusChanged:
		var e OrderStatusChanged
		if err := json.Unmarshal(payload, &e); err != nil || e.OrderID == "" {
			return nil, ErrInvalidPayload
		}
		return e, nil
	case EventReturStatusChanged:
		var e ReturStatusChanged
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, ErrInvalidPayload
		}
		return e, nil
	case EventCODSettlementUpdated:
		var e CODSettlementUpdated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, ErrInvalidPayload
		}
		return e, nil
	case EventRefreshBadges:
		return BadgeRefresh{}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

// Encode returns the event name and JSON payload for publishing.
func Encode(event DomainEvent) (string, []byte, error) {
	name := EventName(event.Domain())
	if name == "" {
		return "", nil, ErrUnknownEvent
	}
	if _, ok := event.(BadgeRefresh); ok {
		return name, []byte("{}"), nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return "", nil, err
	}
	return name, payload, nil
}

// Order statuses as reported by the stats aggregate.
const (
	StatusPending                  = "pending"
	StatusWaitingPayment           = "waiting_payment"
	StatusWaitingInvoice           = "waiting_invoice"
	StatusWaitingAdminVerification = "waiting_admin_verification"
	StatusReadyToShip              = "ready_to_ship"
	StatusAllocated                = "allocated"
	StatusPartiallyFulfilled       = "partially_fulfilled"
	StatusShipped                  = "shipped"
	StatusDelivered                = "delivered"
	StatusDebtPending              = "debt_pending"
	StatusHold                     = "hold"
	StatusCompleted                = "completed"
	StatusCanceled                 = "canceled"
)

// OrderStats is the count of orders per status.
type OrderStats map[string]int

func (s OrderStats) Count(status string) int {
	if s == nil {
		return 0
	}
	if n := s[status]; n > 0 {
		return n
	}
	return 0
}
