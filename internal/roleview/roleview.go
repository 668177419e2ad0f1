// Package roleview holds the customer, kitchen and delivery views of the
// order lifecycle. Views poll the order store, decide which transitions the
// signed-in role may trigger, and report outcomes through a Navigator and a
// Notifier supplied by the embedding UI.
package roleview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"foodrun/internal/domain"
	"foodrun/internal/infrastructure/storeapi"
	"foodrun/internal/polling"
	"foodrun/internal/session"
)

type View string

const (
	ViewLogin             View = "login"
	ViewBrowse            View = "browse"
	ViewTracking          View = "tracking"
	ViewKitchenDashboard  View = "kitchen-dashboard"
	ViewDeliveryDashboard View = "delivery-dashboard"
	ViewDeliveryDetails   View = "delivery-details"
)

type Navigator interface {
	Navigate(v View)
}

type Notifier interface {
	Success(msg string)
	Error(msg string, err error)
}

// OrderStore is the part of the store API the views call.
type OrderStore interface {
	CreateOrder(ctx context.Context, req storeapi.CreateOrderRequest) (domain.Order, error)
	ListClientOrders(ctx context.Context, customerID string) ([]domain.Order, error)
	ListRestaurantOrders(ctx context.Context, restaurantID string) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.Status) (domain.Order, error)
	SetPriority(ctx context.Context, orderID string, priority bool) (domain.Order, error)
	ListReadyDeliveries(ctx context.Context) ([]domain.Delivery, error)
	AssignDelivery(ctx context.Context, orderID, courierID string) (domain.Delivery, error)
	ListCourierDeliveries(ctx context.Context, courierID string) ([]domain.Delivery, error)
}

type Catalog interface {
	ListRestaurants(ctx context.Context) ([]domain.User, error)
	ListDishes(ctx context.Context, restaurantID string) ([]domain.Dish, error)
}

var ErrCheckoutInProgress = errors.New("checkout already in progress")

type Config struct {
	Store     OrderStore
	Session   *session.Session
	Navigator Navigator
	Notifier  Notifier
	Log       *slog.Logger
	Interval  time.Duration
	Now       func() time.Time
}

// router forwards a navigation only when it changes the current view.
type router struct {
	mu      sync.Mutex
	nav     Navigator
	current View
}

func (r *router) goTo(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == v {
		return
	}
	r.current = v
	if r.nav != nil {
		r.nav.Navigate(v)
	}
}

func (r *router) view() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

type base struct {
	store    OrderStore
	sess     *session.Session
	router   *router
	notify   Notifier
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time

	hmu     sync.Mutex
	handles []*polling.Handle
}

func newBase(cfg Config, role domain.Role, start View) (*base, error) {
	if cfg.Session == nil {
		return nil, domain.ErrAuthExpired
	}
	if err := cfg.Session.RequireRole(role); err != nil {
		return nil, err
	}
	b := &base{
		store:    cfg.Store,
		sess:     cfg.Session,
		router:   &router{nav: cfg.Navigator, current: start},
		notify:   cfg.Notifier,
		log:      cfg.Log,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
	if b.notify == nil {
		b.notify = nopNotifier{}
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.interval <= 0 {
		b.interval = 5 * time.Second
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

func (b *base) CurrentView() View { return b.router.view() }

func (b *base) checkSession() error {
	if b.sess.Expired(b.now()) {
		b.router.goTo(ViewLogin)
		return domain.ErrAuthExpired
	}
	return nil
}

// handleErr routes expired sessions to the login view and asks the
// watchers to refetch after a lost race.
func (b *base) handleErr(err error) {
	switch {
	case errors.Is(err, domain.ErrAuthExpired):
		b.router.goTo(ViewLogin)
	case errors.Is(err, domain.ErrStaleState):
		b.refresh()
	}
}

func (b *base) watch(h *polling.Handle) *polling.Handle {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	b.handles = append(b.handles, h)
	return h
}

func (b *base) refresh() {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	for _, h := range b.handles {
		h.Poke()
	}
}

// Close stops every watcher the view started.
func (b *base) Close() {
	b.hmu.Lock()
	hs := b.handles
	b.handles = nil
	b.hmu.Unlock()
	for _, h := range hs {
		h.Stop()
	}
}

func (b *base) pollOpts(name string) []polling.Option {
	return []polling.Option{
		polling.WithLogger(b.log),
		polling.WithName(name),
		polling.WithOnError(b.handleErr),
	}
}

// advance validates locally, then asks the store to move the order and
// reports the outcome. Local state is only touched by the caller after the
// store has confirmed.
func (b *base) advance(ctx context.Context, role domain.Role, orderID string, from, to domain.Status, owned bool) (domain.Order, error) {
	if err := b.checkSession(); err != nil {
		b.notify.Error("session expired", err)
		return domain.Order{}, err
	}
	if !owned {
		err := fmt.Errorf("%w: order %s is not yours", domain.ErrIllegalTransition, shortID(orderID))
		b.notify.Error("action not allowed", err)
		return domain.Order{}, err
	}
	if err := domain.Authorize(from, to, role); err != nil {
		b.notify.Error("action not allowed", err)
		return domain.Order{}, err
	}
	o, err := b.store.UpdateOrderStatus(ctx, orderID, from, to)
	if err != nil {
		b.log.Warn("status update failed", "action", "advance", "order_id", orderID, "from", string(from), "to", string(to), "error", err)
		b.notify.Error("could not update order "+shortID(orderID), err)
		b.handleErr(err)
		return domain.Order{}, err
	}
	b.notify.Success(fmt.Sprintf("order %s is now %s", shortID(orderID), humanStatus(to)))
	return o, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanStatus(s domain.Status) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c == '_':
			out[i] = ' '
		case c >= 'A' && c <= 'Z':
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}

type nopNotifier struct{}

func (nopNotifier) Success(string)      {}
func (nopNotifier) Error(string, error) {}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Success(msg string) {
	n.Log.Info(msg, "action", "notify")
}

func (n LogNotifier) Error(msg string, err error) {
	n.Log.Error(msg, "action", "notify", "error", err)
}

// LogNavigator records navigations in the log.
type LogNavigator struct {
	Log *slog.Logger
}

func (n LogNavigator) Navigate(v View) {
	n.Log.Info("navigate", "action", "navigate", "view", string(v))
}
