package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"foodrun/internal/domain"

	"github.com/google/uuid"
)

type OrderRepo interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	ListOrdersByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error)
	TransitionOrder(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error)
	SetPriority(ctx context.Context, id string, priority bool, at time.Time) (bool, error)
	AssignDelivery(ctx context.Context, orderID, courierID string, at time.Time) (bool, error)
	GetDeliveryByOrder(ctx context.Context, orderID string) (*domain.Delivery, error)
	ListReadyDeliveries(ctx context.Context) ([]domain.Delivery, error)
	ListDeliveriesByCourier(ctx context.Context, courierID string) ([]domain.Delivery, error)
}

// Catalog resolves the restaurants and dishes an order refers to.
type Catalog interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetDish(ctx context.Context, id string) (*domain.Dish, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.StatusEvent) error
}

// Actor is the authenticated caller of a service method.
type Actor struct {
	ID   string
	Role domain.Role
}

type OrderService struct {
	Repo    OrderRepo
	Catalog Catalog
	Events  EventPublisher
	Log     *slog.Logger
	Now     func() time.Time

	createMu sync.Mutex
}

type CreateOrderInput struct {
	CustomerID   string             `json:"customerId"`
	RestaurantID string             `json:"restaurantId"`
	Items        []domain.OrderItem `json:"items"`
	TotalAmount  domain.Money       `json:"totalAmount"`
	Address      string             `json:"address"`
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// Create places an order for a customer who has no other order in flight.
func (s *OrderService) Create(ctx context.Context, actor Actor, in CreateOrderInput) (*domain.Order, error) {
	if actor.Role != domain.RoleCustomer {
		return nil, ErrForbidden("only customers can place orders")
	}
	if in.CustomerID == "" {
		in.CustomerID = actor.ID
	}
	if in.CustomerID != actor.ID {
		return nil, ErrForbidden("cannot order for another customer")
	}
	if in.RestaurantID == "" {
		return nil, ErrBadRequest("restaurantId is required")
	}
	if len(in.Items) == 0 {
		return nil, ErrBadRequest("order has no items")
	}
	items, err := s.priceItems(ctx, in.RestaurantID, in.Items)
	if err != nil {
		return nil, err
	}
	total := domain.SumItems(items)
	if in.TotalAmount != 0 && in.TotalAmount != total {
		return nil, ErrBadRequest(fmt.Sprintf("total %s does not match menu prices %s", in.TotalAmount, total))
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()
	existing, err := s.Repo.ListOrdersByCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	for _, o := range existing {
		if !o.Status.Terminal() {
			return nil, fmt.Errorf("%w: order %s is %s", domain.ErrActiveOrder, o.ID, o.Status)
		}
	}
	now := s.now()
	o := &domain.Order{
		ID:           uuid.NewString(),
		CustomerID:   in.CustomerID,
		RestaurantID: in.RestaurantID,
		Items:        items,
		TotalAmount:  total,
		Status:       domain.StatusCreated,
		Address:      in.Address,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "order created", "action", "order_created", "order_id", o.ID, "customer_id", o.CustomerID, "total", o.TotalAmount.String())
	return o, nil
}

// priceItems rebuilds the order lines from the restaurant's menu. Client
// supplied names and prices are ignored.
func (s *OrderService) priceItems(ctx context.Context, restaurantID string, in []domain.OrderItem) ([]domain.OrderItem, error) {
	if s.Catalog == nil {
		return nil, fmt.Errorf("order service has no catalog")
	}
	r, err := s.Catalog.GetUser(ctx, restaurantID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil || r.Role != domain.RoleKitchen {
		return nil, ErrBadRequest("unknown restaurant " + restaurantID)
	}
	out := make([]domain.OrderItem, 0, len(in))
	for _, it := range in {
		if it.Quantity <= 0 {
			return nil, ErrBadRequest("invalid quantity for dish " + it.DishID)
		}
		d, err := s.Catalog.GetDish(ctx, it.DishID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if err != nil || d.RestaurantID != restaurantID {
			return nil, ErrBadRequest("dish " + it.DishID + " is not on this restaurant's menu")
		}
		if !d.IsAvailable {
			return nil, ErrBadRequest("dish " + d.Name + " is not available")
		}
		out = append(out, domain.OrderItem{DishID: d.ID, Name: d.Name, Quantity: it.Quantity, UnitPrice: d.Price})
	}
	return out, nil
}

func (s *OrderService) ListByClient(ctx context.Context, actor Actor, customerID string) ([]domain.Order, error) {
	if actor.Role != domain.RoleCustomer || actor.ID != customerID {
		return nil, ErrForbidden("cannot list another customer's orders")
	}
	return s.Repo.ListOrdersByCustomer(ctx, customerID)
}

func (s *OrderService) ListByRestaurant(ctx context.Context, actor Actor, restaurantID string) ([]domain.Order, error) {
	if actor.Role != domain.RoleKitchen || actor.ID != restaurantID {
		return nil, ErrForbidden("cannot list another restaurant's orders")
	}
	return s.Repo.ListOrdersByRestaurant(ctx, restaurantID)
}

// Advance moves an order one step forward. When expected is set the order
// must still be at that status, otherwise the caller gets ErrStaleState.
func (s *OrderService) Advance(ctx context.Context, actor Actor, orderID string, to domain.Status, expected *domain.Status) (*domain.Order, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, missing(err, "order")
	}
	from := o.Status
	if expected != nil && *expected != from {
		return nil, fmt.Errorf("%w: order %s is %s, not %s", domain.ErrStaleState, orderID, from, *expected)
	}
	if to == domain.StatusAssigned {
		return nil, fmt.Errorf("%w: deliveries are claimed through assignment", domain.ErrIllegalTransition)
	}
	if err := domain.Authorize(from, to, actor.Role); err != nil {
		return nil, err
	}
	var deliveryID string
	switch actor.Role {
	case domain.RoleKitchen:
		if o.RestaurantID != actor.ID {
			return nil, ErrForbidden("order belongs to another restaurant")
		}
	case domain.RoleDelivery:
		d, err := s.Repo.GetDeliveryByOrder(ctx, orderID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if err != nil || d.CourierID != actor.ID {
			return nil, ErrForbidden("delivery is assigned to another courier")
		}
		deliveryID = d.ID
	}
	moved, err := s.Repo.TransitionOrder(ctx, orderID, from, to, s.now())
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: order %s changed concurrently", domain.ErrStaleState, orderID)
	}
	updated, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, missing(err, "order")
	}
	if deliveryID == "" {
		if d, err := s.Repo.GetDeliveryByOrder(ctx, orderID); err == nil {
			deliveryID = d.ID
		}
	}
	s.publish(ctx, domain.StatusEvent{
		OrderID:    orderID,
		DeliveryID: deliveryID,
		From:       from,
		To:         to,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		At:         updated.UpdatedAt,
	})
	return updated, nil
}

// Assign lets a courier claim a ready delivery. Of several racing claims
// exactly one succeeds, the rest get ErrStaleState.
func (s *OrderService) Assign(ctx context.Context, actor Actor, orderID, courierID string) (*domain.Delivery, error) {
	if actor.Role != domain.RoleDelivery {
		return nil, ErrForbidden("only couriers can claim deliveries")
	}
	if courierID == "" {
		courierID = actor.ID
	}
	if courierID != actor.ID {
		return nil, ErrForbidden("couriers can only assign themselves")
	}
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, missing(err, "order")
	}
	if o.Status != domain.StatusReadyForDelivery {
		if domain.StatusReadyForDelivery.Before(o.Status) {
			return nil, fmt.Errorf("%w: order %s already %s", domain.ErrStaleState, orderID, o.Status)
		}
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrIllegalTransition, orderID, o.Status)
	}
	claimed, err := s.Repo.AssignDelivery(ctx, orderID, courierID, s.now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: delivery for order %s was claimed by another courier", domain.ErrStaleState, orderID)
	}
	d, err := s.Repo.GetDeliveryByOrder(ctx, orderID)
	if err != nil {
		return nil, missing(err, "delivery")
	}
	s.publish(ctx, domain.StatusEvent{
		OrderID:    orderID,
		DeliveryID: d.ID,
		From:       domain.StatusReadyForDelivery,
		To:         domain.StatusAssigned,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		At:         d.UpdatedAt,
	})
	return d, nil
}

func (s *OrderService) ListReady(ctx context.Context, actor Actor) ([]domain.Delivery, error) {
	if actor.Role != domain.RoleDelivery {
		return nil, ErrForbidden("only couriers can list deliveries")
	}
	return s.Repo.ListReadyDeliveries(ctx)
}

func (s *OrderService) ListByCourier(ctx context.Context, actor Actor, courierID string) ([]domain.Delivery, error) {
	if actor.Role != domain.RoleDelivery || actor.ID != courierID {
		return nil, ErrForbidden("cannot list another courier's deliveries")
	}
	return s.Repo.ListDeliveriesByCourier(ctx, courierID)
}

func (s *OrderService) SetPriority(ctx context.Context, actor Actor, orderID string, priority bool) (*domain.Order, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, missing(err, "order")
	}
	if actor.Role != domain.RoleKitchen || o.RestaurantID != actor.ID {
		return nil, ErrForbidden("only the restaurant can prioritise its orders")
	}
	if o.Status.Terminal() {
		return nil, ErrConflict("order already delivered")
	}
	if _, err := s.Repo.SetPriority(ctx, orderID, priority, s.now()); err != nil {
		return nil, err
	}
	updated, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, missing(err, "order")
	}
	return updated, nil
}

func (s *OrderService) publish(ctx context.Context, ev domain.StatusEvent) {
	s.logger().InfoContext(ctx, "order advanced", "action", "order_advanced", "order_id", ev.OrderID, "from", string(ev.From), "to", string(ev.To), "actor_id", ev.ActorID)
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.logger().WarnContext(ctx, "publish status event failed", "action", "publish_event", "order_id", ev.OrderID, "error", err)
	}
}
