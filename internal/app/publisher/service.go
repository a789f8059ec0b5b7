package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nuid"

	"github.com/retailops/notifier/internal/contracts"
)

var ErrInvalidCommandPayload = errors.New("invalid command payload")

// ErrUnsupportedCommandAction rejects unknown command actions.
var ErrUnsupportedCommandAction = errors.New("unsupported command action")

type PublishFunc func(ctx context.Context, event string, payload []byte) error

// Command is the envelope accepted by the admin API and the simulator.
type Command struct {
	Action        string           `json:"action"`
	OrderID       string           `json:"order_id,omitempty"`
	OrderNumber   string           `json:"order_number,omitempty"`
	ReturID       string           `json:"retur_id,omitempty"`
	DriverID      string           `json:"driver_id,omitempty"`
	OrderIDs      []string         `json:"order_ids,omitempty"`
	FromStatus    string           `json:"from_status,omitempty"`
	ToStatus      string           `json:"to_status,omitempty"`
	TargetRoles   []contracts.Role `json:"target_roles,omitempty"`
	TargetUserIDs []string         `json:"target_user_ids,omitempty"`
}

const (
	ActionOrderStatus   = "order-status"
	ActionReturStatus   = "retur-status"
	ActionCODSettlement = "cod-settlement"
	ActionRefreshBadges = "refresh-badges"
)

type Service struct {
	Publish PublishFunc
	Now     func() time.Time
	NewID   func() string
}

func NewService(publish PublishFunc) *Service {
	return &Service{
		Publish: publish,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

// HandlePayload decodes a JSON command and publishes the matching event.
func (s *Service) HandlePayload(ctx context.Context, payload []byte) (contracts.DomainEvent, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, ErrInvalidCommandPayload
	}
	return s.Handle(ctx, cmd)
}

func (s *Service) Handle(ctx context.Context, cmd Command) (contracts.DomainEvent, error) {
	event, err := s.toEvent(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.Emit(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Emit publishes an already built event.
func (s *Service) Emit(ctx context.Context, event contracts.DomainEvent) error {
	name, payload, err := contracts.Encode(event)
	if err != nil {
		return err
	}
	return s.Publish(ctx, name, payload)
}

func (s *Service) RefreshBadges(ctx context.Context) error {
	return s.Emit(ctx, contracts.BadgeRefresh{})
}

func (s *Service) toEvent(cmd Command) (contracts.DomainEvent, error) {
	switch strings.TrimSpace(strings.ToLower(cmd.Action)) {
	case ActionOrderStatus:
		if strings.TrimSpace(cmd.OrderID) == "" || strings.TrimSpace(cmd.ToStatus) == "" {
			return nil, ErrInvalidCommandPayload
		}
		return contracts.OrderStatusChanged{
			EventID:       s.NewID(),
			OrderID:       cmd.OrderID,
			OrderNumber:   cmd.OrderNumber,
			FromStatus:    cmd.FromStatus,
			ToStatus:      cmd.ToStatus,
			TriggeredAt:   s.Now(),
			TargetRoles:   cmd.TargetRoles,
			TargetUserIDs: cmd.TargetUserIDs,
		}, nil
	case ActionReturStatus:
		if strings.TrimSpace(cmd.ReturID) == "" {
			return nil, ErrInvalidCommandPayload
		}
		return contracts.ReturStatusChanged{
			EventID:     s.NewID(),
			ReturID:     cmd.ReturID,
			OrderID:     cmd.OrderID,
			ToStatus:    cmd.ToStatus,
			TriggeredAt: s.Now(),
		}, nil
	case ActionCODSettlement:
		if strings.TrimSpace(cmd.DriverID) == "" {
			return nil, ErrInvalidCommandPayload
		}
		return contracts.CODSettlementUpdated{DriverID: cmd.DriverID, OrderIDs: cmd.OrderIDs}, nil
	case ActionRefreshBadges:
		return contracts.BadgeRefresh{}, nil
	default:
		return nil, ErrUnsupportedCommandAction
	}
}
