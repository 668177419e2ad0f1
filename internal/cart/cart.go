package cart

import (
	"sync"

	"foodrun/internal/domain"
)

type Item struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	UnitPrice    domain.Money `json:"price"`
	Quantity     int          `json:"quantity"`
	RestaurantID string       `json:"restaurantId"`
}

// Cart is local to one client and safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	items []Item
}

func New() *Cart {
	return &Cart{}
}

// Add merges quantity into an existing line with the same id.
func (c *Cart) Add(it Item) error {
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) > 0 && c.items[0].RestaurantID != it.RestaurantID {
		return domain.ErrMixedRestaurants
	}
	for i := range c.items {
		if c.items[i].ID == it.ID {
			c.items[i].Quantity += it.Quantity
			return nil
		}
	}
	c.items = append(c.items, it)
	return nil
}

func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.items[:0]
	for _, it := range c.items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	c.items = out
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (c *Cart) UpdateQuantity(id string, qty int) {
	if qty <= 0 {
		c.Remove(id)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = qty
			return
		}
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) Total() domain.Money {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total domain.Money
	for _, it := range c.items {
		total += it.UnitPrice * domain.Money(it.Quantity)
	}
	return total
}

// RestaurantID is empty while the cart is empty.
func (c *Cart) RestaurantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return ""
	}
	return c.items[0].RestaurantID
}

// Snapshot is a consistent copy of the cart taken under one lock.
type Snapshot struct {
	RestaurantID string
	Items        []Item
	Total        domain.Money
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{Items: make([]Item, len(c.items))}
	copy(snap.Items, c.items)
	for _, it := range c.items {
		snap.Total += it.UnitPrice * domain.Money(it.Quantity)
	}
	if len(c.items) > 0 {
		snap.RestaurantID = c.items[0].RestaurantID
	}
	return snap
}

// OrderItems converts the snapshot lines to order lines.
func (s Snapshot) OrderItems() []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, domain.OrderItem{DishID: it.ID, Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

func (c *Cart) OrderItems() []domain.OrderItem {
	return c.Snapshot().OrderItems()
}

// Deduct takes the given lines out of the cart, quantity by quantity.
// Anything added after those lines were read stays in the cart.
func (c *Cart) Deduct(lines []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		for i := range c.items {
			if c.items[i].ID == l.ID {
				c.items[i].Quantity -= l.Quantity
				break
			}
		}
	}
	out := c.items[:0]
	for _, it := range c.items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	c.items = out
}
