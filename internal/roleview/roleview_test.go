package roleview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"foodrun/internal/cart"
	"foodrun/internal/domain"
	"foodrun/internal/infrastructure/storeapi"
	"foodrun/internal/logger"
	"foodrun/internal/session"
)

type fakeStore struct {
	mu sync.Mutex

	clientOrders [][]domain.Order
	clientCalls  int

	courierDeliveries [][]domain.Delivery
	courierCalls      int

	createErr   error
	createCalls int
	created     []storeapi.CreateOrderRequest
	onCreate    func()

	updateErr   error
	updateCalls int

	assignErr   error
	assignCalls int
}

func (f *fakeStore) CreateOrder(ctx context.Context, req storeapi.CreateOrderRequest) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.created = append(f.created, req)
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.createErr != nil {
		return domain.Order{}, f.createErr
	}
	return domain.Order{ID: "order-1", CustomerID: req.CustomerID, RestaurantID: req.RestaurantID, Items: req.Items, TotalAmount: req.TotalAmount, Status: domain.StatusCreated}, nil
}

func (f *fakeStore) ListClientOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.clientCalls
	f.clientCalls++
	if i >= len(f.clientOrders) {
		i = len(f.clientOrders) - 1
	}
	return f.clientOrders[i], nil
}

func (f *fakeStore) ListRestaurantOrders(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	return []domain.Order{
		{ID: "b", RestaurantID: restaurantID, Status: domain.StatusCreated, CreatedAt: time.Unix(200, 0)},
		{ID: "a", RestaurantID: restaurantID, Status: domain.StatusInKitchen, CreatedAt: time.Unix(100, 0)},
	}, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.Status) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return domain.Order{}, f.updateErr
	}
	return domain.Order{ID: orderID, RestaurantID: "rest-1", Status: to}, nil
}

func (f *fakeStore) SetPriority(ctx context.Context, orderID string, priority bool) (domain.Order, error) {
	return domain.Order{ID: orderID, RestaurantID: "rest-1", Priority: priority}, nil
}

func (f *fakeStore) ListReadyDeliveries(ctx context.Context) ([]domain.Delivery, error) {
	return nil, nil
}

func (f *fakeStore) AssignDelivery(ctx context.Context, orderID, courierID string) (domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	if f.assignErr != nil {
		return domain.Delivery{}, f.assignErr
	}
	return domain.Delivery{ID: "del-1", OrderID: orderID, CourierID: courierID, Status: domain.StatusAssigned}, nil
}

func (f *fakeStore) ListCourierDeliveries(ctx context.Context, courierID string) ([]domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.courierCalls
	f.courierCalls++
	if i >= len(f.courierDeliveries) {
		i = len(f.courierDeliveries) - 1
	}
	return f.courierDeliveries[i], nil
}

func (f *fakeStore) calls() (client, create, update, assign int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clientCalls, f.createCalls, f.updateCalls, f.assignCalls
}

type recordingNav struct {
	mu    sync.Mutex
	views []View
}

func (n *recordingNav) Navigate(v View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, v)
}

func (n *recordingNav) got() []View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]View(nil), n.views...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes int
	errs      []error
}

func (n *recordingNotifier) Success(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes++
}

func (n *recordingNotifier) Error(_ string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func testSession(id string, role domain.Role) *session.Session {
	return &session.Session{SubjectID: id, Role: role, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
}

func testConfig(store OrderStore, sess *session.Session, nav Navigator, notify Notifier) Config {
	return Config{Store: store, Session: sess, Navigator: nav, Notifier: notify, Log: logger.Discard(), Interval: time.Millisecond}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCustomerNavigatesToTrackingOnce(t *testing.T) {
	order := func(s domain.Status) []domain.Order {
		return []domain.Order{{ID: "o1", CustomerID: "cust-1", Status: s}}
	}
	store := &fakeStore{clientOrders: [][]domain.Order{
		nil,
		order(domain.StatusCreated),
		order(domain.StatusInKitchen),
		order(domain.StatusReadyForDelivery),
		order(domain.StatusAssigned),
		order(domain.StatusInTransit),
		order(domain.StatusDelivered),
	}}
	nav := &recordingNav{}
	v, err := NewCustomerView(testConfig(store, testSession("cust-1", domain.RoleCustomer), nav, nil), nil, nil)
	if err != nil {
		t.Fatalf("new view: %v", err)
	}
	v.WatchActiveOrder(context.Background())
	waitFor(t, func() bool { c, _, _, _ := store.calls(); return c > len(store.clientOrders)+2 })
	v.Close()

	views := nav.got()
	if len(views) != 1 || views[0] != ViewTracking {
		t.Fatalf("expected a single navigation to tracking, got %v", views)
	}
	if o, ok := v.ActiveOrder(); !ok || o.Status != domain.StatusDelivered {
		t.Fatalf("active order: %+v %v", o, ok)
	}
	if v.CurrentView() != ViewTracking {
		t.Fatalf("delivered order should stay on tracking, at %s", v.CurrentView())
	}
}

func TestCheckoutEmptyCartMakesNoRequest(t *testing.T) {
	store := &fakeStore{}
	notify := &recordingNotifier{}
	v, _ := NewCustomerView(testConfig(store, testSession("cust-1", domain.RoleCustomer), nil, notify), cart.New(), nil)
	if _, err := v.Checkout(context.Background(), "1 Main St"); !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if _, create, _, _ := store.calls(); create != 0 {
		t.Fatalf("create called %d times for empty cart", create)
	}
	if len(notify.errs) != 1 {
		t.Fatalf("expected one error notification")
	}
}

func TestCheckoutSubmitsOnceAndClearsCart(t *testing.T) {
	store := &fakeStore{}
	nav := &recordingNav{}
	c := cart.New()
	v, _ := NewCustomerView(testConfig(store, testSession("cust-1", domain.RoleCustomer), nav, nil), c, nil)
	_ = v.AddToCart(domain.Dish{ID: "d1", RestaurantID: "rest-1", Name: "Pho", Price: 1300, IsAvailable: true}, 2)
	_ = v.AddToCart(domain.Dish{ID: "d2", RestaurantID: "rest-1", Name: "Rolls", Price: 600, IsAvailable: true}, 1)

	o, err := v.Checkout(context.Background(), "9 Bay St")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, create, _, _ := store.calls(); create != 1 {
		t.Fatalf("expected exactly one create request, got %d", create)
	}
	req := store.created[0]
	if req.CustomerID != "cust-1" || req.RestaurantID != "rest-1" || len(req.Items) != 2 || req.TotalAmount != 3200 || req.Address != "9 Bay St" {
		t.Fatalf("unexpected request %+v", req)
	}
	if c.Len() != 0 {
		t.Fatalf("cart not cleared after success")
	}
	if o.ID != "order-1" || nav.got()[0] != ViewTracking {
		t.Fatalf("expected navigation to tracking, got %v", nav.got())
	}
}

func TestCheckoutKeepsLinesAddedInFlight(t *testing.T) {
	store := &fakeStore{}
	c := cart.New()
	v, _ := NewCustomerView(testConfig(store, testSession("cust-1", domain.RoleCustomer), nil, nil), c, nil)
	pho := domain.Dish{ID: "d1", RestaurantID: "rest-1", Name: "Pho", Price: 1300, IsAvailable: true}
	rolls := domain.Dish{ID: "d2", RestaurantID: "rest-1", Name: "Rolls", Price: 600, IsAvailable: true}
	_ = v.AddToCart(pho, 1)
	store.onCreate = func() {
		_ = v.AddToCart(rolls, 2)
		_ = v.AddToCart(pho, 1)
	}

	if _, err := v.Checkout(context.Background(), "9 Bay St"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	req := store.created[0]
	if len(req.Items) != 1 || req.Items[0].Quantity != 1 || req.TotalAmount != 1300 {
		t.Fatalf("request should hold only the lines present at checkout: %+v", req)
	}
	items := c.Items()
	if len(items) != 2 || items[0].ID != "d1" || items[0].Quantity != 1 || items[1].ID != "d2" || items[1].Quantity != 2 {
		t.Fatalf("lines added during checkout were lost: %+v", items)
	}
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	store := &fakeStore{createErr: &domain.NetworkError{Op: "POST /orders", Err: errors.New("connection reset")}}
	nav := &recordingNav{}
	notify := &recordingNotifier{}
	c := cart.New()
	v, _ := NewCustomerView(testConfig(store, testSession("cust-1", domain.RoleCustomer), nav, notify), c, nil)
	_ = v.AddToCart(domain.Dish{ID: "d1", RestaurantID: "rest-1", Name: "Pho", Price: 1300, IsAvailable: true}, 1)
	if _, err := v.Checkout(context.Background(), "9 Bay St"); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("cart cleared after failed checkout")
	}
	if len(nav.got()) != 0 {
		t.Fatalf("navigated after failed checkout: %v", nav.got())
	}
	if len(notify.errs) != 1 {
		t.Fatalf("expected an error notification")
	}
}

func TestKitchenRejectsIllegalTransitionLocally(t *testing.T) {
	store := &fakeStore{}
	v, _ := NewKitchenView(testConfig(store, testSession("rest-1", domain.RoleKitchen), nil, nil))
	ctx := context.Background()
	o := domain.Order{ID: "o1", RestaurantID: "rest-1", Status: domain.StatusCreated}
	if _, err := v.Advance(ctx, o, domain.StatusReadyForDelivery); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	foreign := domain.Order{ID: "o2", RestaurantID: "rest-2", Status: domain.StatusCreated}
	if _, err := v.Advance(ctx, foreign, domain.StatusInKitchen); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition for another restaurant, got %v", err)
	}
	if len(v.Actions(foreign)) != 0 {
		t.Fatalf("foreign order should expose no actions")
	}
	if _, _, update, _ := store.calls(); update != 0 {
		t.Fatalf("network called %d times for illegal transitions", update)
	}

	got, err := v.Advance(ctx, o, domain.StatusInKitchen)
	if err != nil || got.Status != domain.StatusInKitchen {
		t.Fatalf("advance: %+v %v", got, err)
	}
}

func TestKitchenQueueSortedOldestFirst(t *testing.T) {
	store := &fakeStore{}
	v, _ := NewKitchenView(testConfig(store, testSession("rest-1", domain.RoleKitchen), nil, nil))
	updates := make(chan []domain.Order, 1)
	h := v.WatchQueue(context.Background(), func(os []domain.Order) {
		select {
		case updates <- os:
		default:
		}
	})
	defer h.Stop()
	got := <-updates
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("queue not sorted by createdAt: %+v", got)
	}
	if acts := v.Actions(got[0]); len(acts) != 1 || acts[0].To != domain.StatusReadyForDelivery {
		t.Fatalf("unexpected actions %v", acts)
	}
}

func TestDeliveryClaimAndStaleClaim(t *testing.T) {
	store := &fakeStore{}
	nav := &recordingNav{}
	v, _ := NewDeliveryView(testConfig(store, testSession("courier-1", domain.RoleDelivery), nav, nil))
	ctx := context.Background()
	ready := domain.Delivery{ID: "del-1", OrderID: "o1", Status: domain.StatusReadyForDelivery}
	if acts := v.Actions(ready); len(acts) != 1 || acts[0].To != domain.StatusAssigned {
		t.Fatalf("unclaimed delivery should offer claim, got %v", acts)
	}
	d, err := v.Claim(ctx, ready)
	if err != nil || d.CourierID != "courier-1" {
		t.Fatalf("claim: %+v %v", d, err)
	}
	if views := nav.got(); len(views) != 1 || views[0] != ViewDeliveryDetails {
		t.Fatalf("expected navigation to details, got %v", views)
	}
	if acts := v.Actions(d); len(acts) != 0 {
		t.Fatalf("assigned delivery waits for hand-off, got %v", acts)
	}

	stale := &fakeStore{assignErr: domain.ErrStaleState}
	nav2 := &recordingNav{}
	v2, _ := NewDeliveryView(testConfig(stale, testSession("courier-2", domain.RoleDelivery), nav2, nil))
	if _, err := v2.Claim(ctx, ready); !errors.Is(err, domain.ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}
	if len(nav2.got()) != 0 {
		t.Fatalf("losing claim navigated: %v", nav2.got())
	}
}

func TestDeliveryAdvanceOnlyOwnInTransit(t *testing.T) {
	store := &fakeStore{}
	v, _ := NewDeliveryView(testConfig(store, testSession("courier-1", domain.RoleDelivery), nil, nil))
	ctx := context.Background()
	assigned := domain.Delivery{ID: "del-1", OrderID: "o1", CourierID: "courier-1", Status: domain.StatusAssigned}
	if _, err := v.Advance(ctx, assigned, domain.StatusInTransit); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("courier should not confirm hand-off, got %v", err)
	}
	other := domain.Delivery{ID: "del-2", OrderID: "o2", CourierID: "courier-9", Status: domain.StatusInTransit}
	if _, err := v.Advance(ctx, other, domain.StatusDelivered); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("courier should not deliver another courier's order, got %v", err)
	}
	if _, _, update, _ := store.calls(); update != 0 {
		t.Fatalf("network called for rejected transitions")
	}
	mine := domain.Delivery{ID: "del-1", OrderID: "o1", CourierID: "courier-1", Status: domain.StatusInTransit}
	got, err := v.Advance(ctx, mine, domain.StatusDelivered)
	if err != nil || got.Status != domain.StatusDelivered {
		t.Fatalf("deliver: %+v %v", got, err)
	}
}

func TestWatchAssignedNavigatesToDetails(t *testing.T) {
	assigned := []domain.Delivery{{ID: "del-1", OrderID: "o1", CourierID: "courier-1", Status: domain.StatusAssigned}}
	store := &fakeStore{courierDeliveries: [][]domain.Delivery{nil, nil, assigned, assigned}}
	nav := &recordingNav{}
	v, _ := NewDeliveryView(testConfig(store, testSession("courier-1", domain.RoleDelivery), nav, nil))
	v.WatchAssigned(context.Background())
	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.courierCalls > 6
	})
	v.Close()
	if views := nav.got(); len(views) != 1 || views[0] != ViewDeliveryDetails {
		t.Fatalf("expected one navigation to details, got %v", views)
	}
	if d, ok := v.Current(); !ok || d.ID != "del-1" {
		t.Fatalf("current delivery: %+v %v", d, ok)
	}
}

func TestExpiredSessionRoutesToLogin(t *testing.T) {
	store := &fakeStore{}
	nav := &recordingNav{}
	sess := &session.Session{SubjectID: "rest-1", Role: domain.RoleKitchen, ExpiresAt: time.Now().Add(-time.Second)}
	v, _ := NewKitchenView(testConfig(store, sess, nav, nil))
	o := domain.Order{ID: "o1", RestaurantID: "rest-1", Status: domain.StatusCreated}
	if _, err := v.Advance(context.Background(), o, domain.StatusInKitchen); !errors.Is(err, domain.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if views := nav.got(); len(views) != 1 || views[0] != ViewLogin {
		t.Fatalf("expected navigation to login, got %v", views)
	}
	if _, _, update, _ := store.calls(); update != 0 {
		t.Fatalf("network called with expired session")
	}
}

func TestViewRequiresMatchingRole(t *testing.T) {
	if _, err := NewKitchenView(testConfig(&fakeStore{}, testSession("c", domain.RoleCustomer), nil, nil)); !errors.Is(err, domain.ErrForbiddenRole) {
		t.Fatalf("expected forbidden role, got %v", err)
	}
	if _, err := NewDeliveryView(testConfig(&fakeStore{}, nil, nil, nil)); !errors.Is(err, domain.ErrAuthExpired) {
		t.Fatalf("expected auth expired without session, got %v", err)
	}
}
