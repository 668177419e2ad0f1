package roleview

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"foodrun/internal/domain"
	"foodrun/internal/polling"
)

type KitchenView struct {
	*base

	mu    sync.Mutex
	queue []domain.Order
}

func NewKitchenView(cfg Config) (*KitchenView, error) {
	b, err := newBase(cfg, domain.RoleKitchen, ViewKitchenDashboard)
	if err != nil {
		return nil, err
	}
	return &KitchenView{base: b}, nil
}

func queueKey(orders []domain.Order) string {
	var sb strings.Builder
	for _, o := range orders {
		sb.WriteString(o.ID)
		sb.WriteByte('|')
		sb.WriteString(string(o.Status))
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatBool(o.Priority))
		sb.WriteByte(';')
	}
	return sb.String()
}

// WatchQueue polls the restaurant's orders, oldest first, and hands every
// changed queue to onUpdate.
func (v *KitchenView) WatchQueue(ctx context.Context, onUpdate func([]domain.Order)) *polling.Handle {
	query := func(ctx context.Context) ([]domain.Order, error) {
		if err := v.checkSession(); err != nil {
			return nil, err
		}
		orders, err := v.store.ListRestaurantOrders(ctx, v.sess.SubjectID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
		return orders, nil
	}
	onChange := func(orders []domain.Order) {
		v.mu.Lock()
		v.queue = orders
		v.mu.Unlock()
		if onUpdate != nil {
			onUpdate(orders)
		}
	}
	return v.watch(polling.Start(ctx, query, v.interval, polling.ByKey(queueKey), onChange, v.pollOpts("watch_kitchen_queue")...))
}

func (v *KitchenView) Queue() []domain.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Order, len(v.queue))
	copy(out, v.queue)
	return out
}

func (v *KitchenView) owns(o domain.Order) bool {
	return o.RestaurantID == v.sess.SubjectID
}

// Actions lists the transitions the kitchen may trigger on o.
func (v *KitchenView) Actions(o domain.Order) []domain.Transition {
	if !v.owns(o) {
		return nil
	}
	return domain.VisibleActions(o.Status, domain.RoleKitchen)
}

func (v *KitchenView) Advance(ctx context.Context, o domain.Order, to domain.Status) (domain.Order, error) {
	updated, err := v.advance(ctx, domain.RoleKitchen, o.ID, o.Status, to, v.owns(o))
	if err != nil {
		return o, err
	}
	v.replace(updated)
	return updated, nil
}

func (v *KitchenView) TogglePriority(ctx context.Context, o domain.Order) (domain.Order, error) {
	if err := v.checkSession(); err != nil {
		return o, err
	}
	updated, err := v.store.SetPriority(ctx, o.ID, !o.Priority)
	if err != nil {
		v.notify.Error("could not change priority of order "+shortID(o.ID), err)
		v.handleErr(err)
		return o, err
	}
	if updated.Priority {
		v.notify.Success("order " + shortID(o.ID) + " marked as priority")
	} else {
		v.notify.Success("order " + shortID(o.ID) + " priority removed")
	}
	v.replace(updated)
	return updated, nil
}

func (v *KitchenView) replace(o domain.Order) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.queue {
		if v.queue[i].ID == o.ID {
			v.queue[i] = o
			return
		}
	}
}
