package main

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/retailops/notifier/internal/app/publisher"
	"github.com/retailops/notifier/internal/contracts"
)

// nextStatus is the happy path of an order. Hold and canceled are side exits
// picked at random in advance.
var nextStatus = map[string]string{
	contracts.StatusPending:                  contracts.StatusWaitingPayment,
	contracts.StatusWaitingPayment:           contracts.StatusWaitingAdminVerification,
	contracts.StatusWaitingAdminVerification: contracts.StatusReadyToShip,
	contracts.StatusReadyToShip:              contracts.StatusAllocated,
	contracts.StatusAllocated:                contracts.StatusShipped,
	contracts.StatusHold:                     contracts.StatusReadyToShip,
	contracts.StatusShipped:                  contracts.StatusDelivered,
	contracts.StatusDelivered:                contracts.StatusCompleted,
}

type simOrder struct {
	id       string
	number   string
	status   string
	driverID string
}

func (o *simOrder) done() bool {
	return o.status == contracts.StatusCompleted || o.status == contracts.StatusCanceled
}

// fleet holds the simulated orders. Finished orders are replaced with fresh
// ones so the stream never dries up.
type fleet struct {
	mu      sync.Mutex
	orders  []*simOrder
	drivers []string
	serial  int
	returs  int
}

func newFleet(size int, drivers []string) *fleet {
	f := &fleet{drivers: drivers}
	for i := 0; i < size; i++ {
		f.orders = append(f.orders, f.newOrder())
	}
	return f
}

func (f *fleet) newOrder() *simOrder {
	f.serial++
	return &simOrder{
		id:     fmt.Sprintf("sim-%06d", f.serial),
		number: fmt.Sprintf("INV-%06d", f.serial),
		status: contracts.StatusPending,
	}
}

// next picks the command for one simulated backend change.
func (f *fleet) next(rng *rand.Rand) publisher.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	roll := rng.Float64()
	switch {
	case roll < 0.05:
		return publisher.Command{Action: publisher.ActionRefreshBadges}
	case roll < 0.10 && len(f.drivers) > 0:
		driver := f.drivers[rng.Intn(len(f.drivers))]
		var ids []string
		for _, o := range f.orders {
			if o.driverID == driver && o.status == contracts.StatusDelivered {
				ids = append(ids, o.id)
			}
		}
		return publisher.Command{Action: publisher.ActionCODSettlement, DriverID: driver, OrderIDs: ids}
	case roll < 0.15:
		o := f.orders[rng.Intn(len(f.orders))]
		f.returs++
		return publisher.Command{
			Action:   publisher.ActionReturStatus,
			ReturID:  fmt.Sprintf("ret-%05d", f.returs),
			OrderID:  o.id,
			ToStatus: "approved",
		}
	}

	idx := rng.Intn(len(f.orders))
	o := f.orders[idx]
	from := o.status
	to := nextStatus[from]
	switch {
	case from == contracts.StatusReadyToShip && rng.Float64() < 0.1:
		to = contracts.StatusHold
	case from == contracts.StatusPending && rng.Float64() < 0.05:
		to = contracts.StatusCanceled
	}
	o.status = to
	if to == contracts.StatusShipped && len(f.drivers) > 0 {
		o.driverID = f.drivers[rng.Intn(len(f.drivers))]
	}

	cmd := publisher.Command{
		Action:      publisher.ActionOrderStatus,
		OrderID:     o.id,
		OrderNumber: o.number,
		FromStatus:  from,
		ToStatus:    to,
	}
	if o.driverID != "" {
		cmd.TargetUserIDs = []string{o.driverID}
	}
	if o.done() {
		f.orders[idx] = f.newOrder()
	}
	return cmd
}
