package roleview

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"foodrun/internal/domain"
	"foodrun/internal/polling"
)

type DeliveryView struct {
	*base

	mu      sync.Mutex
	ready   []domain.Delivery
	current *domain.Delivery
}

func NewDeliveryView(cfg Config) (*DeliveryView, error) {
	b, err := newBase(cfg, domain.RoleDelivery, ViewDeliveryDashboard)
	if err != nil {
		return nil, err
	}
	return &DeliveryView{base: b}, nil
}

func deliveriesKey(ds []domain.Delivery) string {
	var sb strings.Builder
	for _, d := range ds {
		sb.WriteString(d.ID)
		sb.WriteByte('|')
		sb.WriteString(string(d.Status))
		sb.WriteByte('|')
		sb.WriteString(d.CourierID)
		sb.WriteByte(';')
	}
	return sb.String()
}

// WatchReady polls unclaimed deliveries.
func (v *DeliveryView) WatchReady(ctx context.Context, onUpdate func([]domain.Delivery)) *polling.Handle {
	query := func(ctx context.Context) ([]domain.Delivery, error) {
		if err := v.checkSession(); err != nil {
			return nil, err
		}
		return v.store.ListReadyDeliveries(ctx)
	}
	onChange := func(ds []domain.Delivery) {
		v.mu.Lock()
		v.ready = ds
		v.mu.Unlock()
		if onUpdate != nil {
			onUpdate(ds)
		}
	}
	return v.watch(polling.Start(ctx, query, v.interval, polling.ByKey(deliveriesKey), onChange, v.pollOpts("watch_ready_deliveries")...))
}

// WatchAssigned polls the courier's own deliveries. The view moves to the
// details view while one is assigned and back to the dashboard otherwise.
func (v *DeliveryView) WatchAssigned(ctx context.Context) *polling.Handle {
	query := func(ctx context.Context) ([]domain.Delivery, error) {
		if err := v.checkSession(); err != nil {
			return nil, err
		}
		return v.store.ListCourierDeliveries(ctx, v.sess.SubjectID)
	}
	onChange := func(ds []domain.Delivery) {
		if len(ds) == 0 {
			v.setCurrent(nil)
			v.router.goTo(ViewDeliveryDashboard)
			return
		}
		d := ds[0]
		v.setCurrent(&d)
		v.router.goTo(ViewDeliveryDetails)
	}
	return v.watch(polling.Start(ctx, query, v.interval, polling.ByKey(deliveriesKey), onChange, v.pollOpts("watch_assigned_delivery")...))
}

func (v *DeliveryView) setCurrent(d *domain.Delivery) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = d
}

func (v *DeliveryView) Ready() []domain.Delivery {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Delivery, len(v.ready))
	copy(out, v.ready)
	return out
}

// Current is the delivery assigned to this courier, if any.
func (v *DeliveryView) Current() (domain.Delivery, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return domain.Delivery{}, false
	}
	return *v.current, true
}

func (v *DeliveryView) mine(d domain.Delivery) bool {
	return d.CourierID == v.sess.SubjectID
}

// Actions lists what the courier may do with d. An unclaimed ready delivery
// can be claimed; an assigned one waits for the kitchen hand-off; one in
// transit can be marked delivered by its courier.
func (v *DeliveryView) Actions(d domain.Delivery) []domain.Transition {
	switch {
	case d.Status == domain.StatusReadyForDelivery && d.CourierID == "":
	case v.mine(d):
	default:
		return nil
	}
	return domain.VisibleActions(d.Status, domain.RoleDelivery)
}

// Claim assigns d to the signed-in courier. When another courier got there
// first the store answers with ErrStaleState.
func (v *DeliveryView) Claim(ctx context.Context, d domain.Delivery) (domain.Delivery, error) {
	if err := v.checkSession(); err != nil {
		v.notify.Error("session expired", err)
		return d, err
	}
	if d.Status != domain.StatusReadyForDelivery || d.CourierID != "" {
		err := fmt.Errorf("%w: delivery for order %s is %s", domain.ErrIllegalTransition, shortID(d.OrderID), d.Status)
		v.notify.Error("delivery cannot be claimed", err)
		return d, err
	}
	if err := domain.Authorize(d.Status, domain.StatusAssigned, domain.RoleDelivery); err != nil {
		return d, err
	}
	claimed, err := v.store.AssignDelivery(ctx, d.OrderID, v.sess.SubjectID)
	if err != nil {
		v.log.Warn("claim failed", "action", "claim", "order_id", d.OrderID, "error", err)
		v.notify.Error("could not claim delivery for order "+shortID(d.OrderID), err)
		v.handleErr(err)
		return d, err
	}
	v.setCurrent(&claimed)
	v.notify.Success("delivery for order " + shortID(d.OrderID) + " assigned to you")
	v.router.goTo(ViewDeliveryDetails)
	return claimed, nil
}

// Advance moves the courier's delivery forward and mirrors the confirmed
// order status onto it.
func (v *DeliveryView) Advance(ctx context.Context, d domain.Delivery, to domain.Status) (domain.Delivery, error) {
	o, err := v.advance(ctx, domain.RoleDelivery, d.OrderID, d.Status, to, v.mine(d))
	if err != nil {
		return d, err
	}
	d.Status = o.Status
	d.UpdatedAt = o.UpdatedAt
	d.Order = &o
	if d.Status.Terminal() {
		v.setCurrent(nil)
		v.router.goTo(ViewDeliveryDashboard)
	} else {
		v.setCurrent(&d)
	}
	return d, nil
}
