package roleview

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"foodrun/internal/cart"
	"foodrun/internal/domain"
	"foodrun/internal/infrastructure/storeapi"
	"foodrun/internal/polling"
)

type CustomerView struct {
	*base
	cart    *cart.Cart
	catalog Catalog

	submitting atomic.Bool

	mu     sync.Mutex
	active *domain.Order
}

func NewCustomerView(cfg Config, c *cart.Cart, catalog Catalog) (*CustomerView, error) {
	b, err := newBase(cfg, domain.RoleCustomer, ViewBrowse)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = cart.New()
	}
	return &CustomerView{base: b, cart: c, catalog: catalog}, nil
}

func (v *CustomerView) Cart() *cart.Cart { return v.cart }

func (v *CustomerView) Restaurants(ctx context.Context) ([]domain.User, error) {
	return v.catalog.ListRestaurants(ctx)
}

func (v *CustomerView) Menu(ctx context.Context, restaurantID string) ([]domain.Dish, error) {
	return v.catalog.ListDishes(ctx, restaurantID)
}

// AddToCart puts qty of an available dish into the cart.
func (v *CustomerView) AddToCart(d domain.Dish, qty int) error {
	if !d.IsAvailable {
		return fmt.Errorf("%s is not available", d.Name)
	}
	err := v.cart.Add(cart.Item{ID: d.ID, Name: d.Name, UnitPrice: d.Price, Quantity: qty, RestaurantID: d.RestaurantID})
	if err != nil {
		v.notify.Error("could not add "+d.Name, err)
		return err
	}
	v.notify.Success(d.Name + " added to cart")
	return nil
}

// Checkout submits the whole cart as one order. The submitted lines leave
// the cart only after the store accepted the order.
func (v *CustomerView) Checkout(ctx context.Context, address string) (domain.Order, error) {
	snap := v.cart.Snapshot()
	if len(snap.Items) == 0 {
		v.notify.Error("your cart is empty", domain.ErrEmptyCart)
		return domain.Order{}, domain.ErrEmptyCart
	}
	if err := v.checkSession(); err != nil {
		v.notify.Error("session expired", err)
		return domain.Order{}, err
	}
	if !v.submitting.CompareAndSwap(false, true) {
		return domain.Order{}, ErrCheckoutInProgress
	}
	defer v.submitting.Store(false)

	req := storeapi.CreateOrderRequest{
		CustomerID:   v.sess.SubjectID,
		RestaurantID: snap.RestaurantID,
		Items:        snap.OrderItems(),
		TotalAmount:  snap.Total,
		Address:      address,
	}
	o, err := v.store.CreateOrder(ctx, req)
	if err != nil {
		v.log.Warn("checkout failed", "action", "checkout", "customer_id", v.sess.SubjectID, "error", err)
		v.notify.Error("could not place your order", err)
		v.handleErr(err)
		return domain.Order{}, err
	}
	v.cart.Deduct(snap.Items)
	v.setActive(&o)
	v.notify.Success("order placed")
	v.router.goTo(ViewTracking)
	return o, nil
}

func (v *CustomerView) setActive(o *domain.Order) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = o
}

// ActiveOrder is the customer's most recent order, if any.
func (v *CustomerView) ActiveOrder() (domain.Order, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return domain.Order{}, false
	}
	return *v.active, true
}

type latestOrder struct {
	order   domain.Order
	present bool
}

func latestKey(l latestOrder) string {
	if !l.present {
		return ""
	}
	return l.order.ID + "|" + string(l.order.Status) + "|" + l.order.UpdatedAt.String()
}

// WatchActiveOrder polls the customer's newest order. The view moves to
// tracking when an order exists and back to browse when none does.
func (v *CustomerView) WatchActiveOrder(ctx context.Context) *polling.Handle {
	query := func(ctx context.Context) (latestOrder, error) {
		if err := v.checkSession(); err != nil {
			return latestOrder{}, err
		}
		orders, err := v.store.ListClientOrders(ctx, v.sess.SubjectID)
		if err != nil {
			return latestOrder{}, err
		}
		if len(orders) == 0 {
			return latestOrder{}, nil
		}
		return latestOrder{order: orders[0], present: true}, nil
	}
	onChange := func(l latestOrder) {
		if !l.present {
			v.setActive(nil)
			v.router.goTo(ViewBrowse)
			return
		}
		o := l.order
		v.setActive(&o)
		v.router.goTo(ViewTracking)
	}
	return v.watch(polling.Start(ctx, query, v.interval, polling.ByKey(latestKey), onChange, v.pollOpts("watch_active_order")...))
}
