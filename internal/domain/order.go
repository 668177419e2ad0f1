package domain

import (
	"fmt"
	"time"
)

// Money is an amount in cents.
type Money int64

func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(m)/100, int64(m)%100)
}

type OrderItem struct {
	DishID    string `json:"dishId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unitPrice"`
}

func (i OrderItem) Subtotal() Money { return i.UnitPrice * Money(i.Quantity) }

type Order struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customerId"`
	RestaurantID string      `json:"restaurantId"`
	Items        []OrderItem `json:"items"`
	TotalAmount  Money       `json:"totalAmount"`
	Status       Status      `json:"status"`
	Priority     bool        `json:"priority"`
	Address      string      `json:"address"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func SumItems(items []OrderItem) Money {
	var total Money
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

type Delivery struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	CourierID string    `json:"deliveryPersonId,omitempty"`
	Address   string    `json:"address"`
	Status    Status    `json:"status"`
	Order     *Order    `json:"order,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusEvent records one committed transition.
type StatusEvent struct {
	OrderID    string    `json:"orderId"`
	DeliveryID string    `json:"deliveryId,omitempty"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	ActorID    string    `json:"actorId"`
	ActorRole  Role      `json:"actorRole"`
	At         time.Time `json:"at"`
}
