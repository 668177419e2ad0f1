package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"foodrun/internal/domain"
	"foodrun/internal/session"
)

// Client talks to the order store over REST.
type Client struct {
	BaseURL string
	Tokens  session.TokenSource
	HTTP    *http.Client
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

type AuthResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

type RegisterRequest struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Name        string      `json:"name"`
	Role        domain.Role `json:"role"`
	Address     string      `json:"address,omitempty"`
	Description string      `json:"description,omitempty"`
	OpeningTime string      `json:"openingTime,omitempty"`
	ClosingTime string      `json:"closingTime,omitempty"`
}

type CreateOrderRequest struct {
	CustomerID   string             `json:"customerId"`
	RestaurantID string             `json:"restaurantId"`
	Items        []domain.OrderItem `json:"items"`
	TotalAmount  domain.Money       `json:"totalAmount"`
	Address      string             `json:"address"`
}

type UpdateOrderRequest struct {
	Status         *domain.Status `json:"status,omitempty"`
	ExpectedStatus *domain.Status `json:"expectedStatus,omitempty"`
	Priority       *bool          `json:"priority,omitempty"`
}

type AssignRequest struct {
	DeliveryPersonID string `json:"deliveryPersonId"`
}

type DishInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       domain.Money `json:"price"`
	IsAvailable *bool        `json:"isAvailable,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", req, &out, false)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	in := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", in, &out, false)
	return out, err
}

func (c *Client) ListRestaurants(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := c.do(ctx, http.MethodGet, "/restaurants", nil, &out, false)
	return out, err
}

func (c *Client) ListDishes(ctx context.Context, restaurantID string) ([]domain.Dish, error) {
	var out []domain.Dish
	err := c.do(ctx, http.MethodGet, "/kitchen/dishes/restaurant/"+url.PathEscape(restaurantID), nil, &out, false)
	return out, err
}

func (c *Client) CreateDish(ctx context.Context, in DishInput) (domain.Dish, error) {
	var out domain.Dish
	err := c.do(ctx, http.MethodPost, "/kitchen/dishes", in, &out, true)
	return out, err
}

func (c *Client) UpdateDish(ctx context.Context, id string, in DishInput) (domain.Dish, error) {
	var out domain.Dish
	err := c.do(ctx, http.MethodPatch, "/kitchen/dishes/"+url.PathEscape(id), in, &out, true)
	return out, err
}

func (c *Client) DeleteDish(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/kitchen/dishes/"+url.PathEscape(id), nil, nil, true)
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	var out domain.Order
	err := c.do(ctx, http.MethodPost, "/orders", req, &out, true)
	return out, err
}

// ListClientOrders returns the customer's orders, newest first.
func (c *Client) ListClientOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	var out []domain.Order
	err := c.do(ctx, http.MethodGet, "/orders/ByIdClient/"+url.PathEscape(customerID), nil, &out, true)
	return out, err
}

func (c *Client) ListRestaurantOrders(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	var out []domain.Order
	err := c.do(ctx, http.MethodGet, "/orders/restaurant/"+url.PathEscape(restaurantID), nil, &out, true)
	return out, err
}

// UpdateOrderStatus asks the store to move an order from one status to the
// next. The store rejects the change when the order is no longer at from.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.Status) (domain.Order, error) {
	var out domain.Order
	in := UpdateOrderRequest{Status: &to, ExpectedStatus: &from}
	err := c.do(ctx, http.MethodPatch, "/orders/byId/"+url.PathEscape(orderID), in, &out, true)
	return out, err
}

func (c *Client) SetPriority(ctx context.Context, orderID string, priority bool) (domain.Order, error) {
	var out domain.Order
	in := UpdateOrderRequest{Priority: &priority}
	err := c.do(ctx, http.MethodPatch, "/orders/byId/"+url.PathEscape(orderID), in, &out, true)
	return out, err
}

func (c *Client) ListReadyDeliveries(ctx context.Context) ([]domain.Delivery, error) {
	var out []domain.Delivery
	err := c.do(ctx, http.MethodGet, "/delivery", nil, &out, true)
	return out, err
}

func (c *Client) AssignDelivery(ctx context.Context, orderID, courierID string) (domain.Delivery, error) {
	var out domain.Delivery
	err := c.do(ctx, http.MethodPost, "/delivery/assign/"+url.PathEscape(orderID), AssignRequest{DeliveryPersonID: courierID}, &out, true)
	return out, err
}

func (c *Client) ListCourierDeliveries(ctx context.Context, courierID string) ([]domain.Delivery, error) {
	var out []domain.Delivery
	err := c.do(ctx, http.MethodGet, "/delivery/deliveryPerson/"+url.PathEscape(courierID), nil, &out, true)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = "http://localhost:3000"
	}
	u := strings.TrimRight(base, "/") + path
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	var token string
	if auth {
		if c.Tokens == nil {
			return domain.ErrAuthExpired
		}
		t, err := c.Tokens.Token()
		if err != nil {
			return err
		}
		token = t
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	op := method + " " + path
	resp, err := hc.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= 400 {
		return responseError(op, resp.StatusCode, env, raw, decodeErr)
	}
	if decodeErr != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func responseError(op string, status int, env envelope, raw []byte, decodeErr error) error {
	msg := env.Error
	if decodeErr != nil || msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if sentinel := domain.ErrorForCode(env.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrAuthExpired, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrForbiddenRole, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrIllegalTransition, msg)
	}
	return &domain.NetworkError{Op: op, StatusCode: status, Err: errors.New(msg)}
}
