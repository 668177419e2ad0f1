package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"foodrun/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in maps behind one lock, which makes every
// compare-and-swap atomic.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[string]*domain.Order
	deliveries map[string]*domain.Delivery
	users      map[string]*domain.User
	dishes     map[string]*domain.Dish
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[string]*domain.Order),
		deliveries: make(map[string]*domain.Delivery),
		users:      make(map[string]*domain.User),
		dishes:     make(map[string]*domain.Dish),
	}
}

func (r *MemoryStore) CreateOrder(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryStore) ListOrdersByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filterOrders(func(o *domain.Order) bool { return o.CustomerID == customerID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryStore) ListOrdersByRestaurant(_ context.Context, restaurantID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filterOrders(func(o *domain.Order) bool { return o.RestaurantID == restaurantID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryStore) filterOrders(keep func(*domain.Order) bool) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	return out
}

func (r *MemoryStore) TransitionOrder(_ context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	switch {
	case to == domain.StatusReadyForDelivery:
		if _, exists := r.deliveries[id]; !exists {
			r.deliveries[id] = &domain.Delivery{
				ID:        uuid.NewString(),
				OrderID:   id,
				Address:   o.Address,
				Status:    to,
				CreatedAt: at,
				UpdatedAt: at,
			}
		}
	case domain.StatusReadyForDelivery.Before(to):
		if d, exists := r.deliveries[id]; exists {
			d.Status = to
			d.UpdatedAt = at
		}
	}
	return true, nil
}

func (r *MemoryStore) SetPriority(_ context.Context, id string, priority bool, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	o.Priority = priority
	o.UpdatedAt = at
	return true, nil
}

func (r *MemoryStore) AssignDelivery(_ context.Context, orderID, courierID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	d, dok := r.deliveries[orderID]
	if !ok || !dok || o.Status != domain.StatusReadyForDelivery || d.CourierID != "" {
		return false, nil
	}
	o.Status = domain.StatusAssigned
	o.UpdatedAt = at
	d.CourierID = courierID
	d.Status = domain.StatusAssigned
	d.UpdatedAt = at
	return true, nil
}

func (r *MemoryStore) GetDeliveryByOrder(_ context.Context, orderID string) (*domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, orderID)
	}
	return r.withOrder(d), nil
}

func (r *MemoryStore) ListReadyDeliveries(_ context.Context) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterDeliveries(func(d *domain.Delivery) bool {
		return d.CourierID == "" && d.Status == domain.StatusReadyForDelivery
	}), nil
}

func (r *MemoryStore) ListDeliveriesByCourier(_ context.Context, courierID string) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterDeliveries(func(d *domain.Delivery) bool {
		return d.CourierID == courierID && !d.Status.Terminal()
	}), nil
}

func (r *MemoryStore) filterDeliveries(keep func(*domain.Delivery) bool) []domain.Delivery {
	out := make([]domain.Delivery, 0)
	for _, d := range r.deliveries {
		if keep(d) {
			out = append(out, *r.withOrder(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryStore) withOrder(d *domain.Delivery) *domain.Delivery {
	cp := *d
	if o, ok := r.orders[d.OrderID]; ok {
		oc := *o
		cp.Order = &oc
	}
	return &cp
}

// PutUser inserts or replaces a user. Emails are unique across users.
func (r *MemoryStore) PutUser(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.users {
		if other.ID != u.ID && other.Email == u.Email {
			return fmt.Errorf("%w: email %s already registered", domain.ErrConflict, u.Email)
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, email)
}

func (r *MemoryStore) ListUsersByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.User, 0)
	for _, u := range r.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryStore) PutDish(_ context.Context, d *domain.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.dishes[d.ID] = &cp
	return nil
}

func (r *MemoryStore) GetDish(_ context.Context, id string) (*domain.Dish, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dishes[id]
	if !ok {
		return nil, fmt.Errorf("%w: dish %s", domain.ErrNotFound, id)
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryStore) ListDishes(_ context.Context, restaurantID string) ([]domain.Dish, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Dish, 0)
	for _, d := range r.dishes {
		if d.RestaurantID == restaurantID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryStore) DeleteDish(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dishes, id)
	return nil
}

func (r *MemoryStore) Close() error { return nil }
