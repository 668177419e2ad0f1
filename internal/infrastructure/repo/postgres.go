package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foodrun/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) init() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT,
		role TEXT NOT NULL,
		address TEXT,
		description TEXT,
		opening_time TEXT,
		closing_time TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS dishes (
		id TEXT PRIMARY KEY,
		restaurant_id TEXT NOT NULL,
		name TEXT,
		description TEXT,
		price BIGINT,
		is_available BOOLEAN,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		restaurant_id TEXT NOT NULL,
		items TEXT,
		total_amount BIGINT,
		status TEXT NOT NULL,
		priority BOOLEAN DEFAULT FALSE,
		address TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		order_id TEXT UNIQUE NOT NULL REFERENCES orders(id),
		courier_id TEXT NOT NULL DEFAULT '',
		address TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);`)
	return err
}

const orderColumns = `id,customer_id,restaurant_id,items,total_amount,status,priority,address,created_at,updated_at`

// rowErr maps a missing row to domain.ErrNotFound and passes other
// failures through.
func rowErr(err error, kind, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, key)
	}
	return fmt.Errorf("load %s %s: %w", kind, key, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (domain.Order, error) {
	var o domain.Order
	var items string
	err := s.Scan(&o.ID, &o.CustomerID, &o.RestaurantID, &items, (*int64)(&o.TotalAmount), (*string)(&o.Status), &o.Priority, &o.Address, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	_ = json.Unmarshal([]byte(items), &o.Items)
	return o, nil
}

func (r *PostgresRepo) CreateOrder(ctx context.Context, o *domain.Order) error {
	items, _ := json.Marshal(o.Items)
	_, err := r.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.CustomerID, o.RestaurantID, string(items), int64(o.TotalAmount), string(o.Status), o.Priority, o.Address, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, rowErr(err, "order", id)
	}
	return &o, nil
}

func (r *PostgresRepo) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
}

func (r *PostgresRepo) ListOrdersByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE restaurant_id=$1 ORDER BY created_at ASC`, restaurantID)
}

func (r *PostgresRepo) queryOrders(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// TransitionOrder moves the order only while it is still at from. Reaching
// READY_FOR_DELIVERY opens the delivery row in the same transaction, and
// later statuses are mirrored onto it.
func (r *PostgresRepo) TransitionOrder(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`, string(to), at, id, string(from))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	switch {
	case to == domain.StatusReadyForDelivery:
		_, err = tx.ExecContext(ctx, `INSERT INTO deliveries (id,order_id,courier_id,address,status,created_at,updated_at)
			SELECT $1, id, '', address, $2, $3, $3 FROM orders WHERE id=$4
			ON CONFLICT (order_id) DO NOTHING`, uuid.NewString(), string(to), at, id)
	case domain.StatusReadyForDelivery.Before(to):
		_, err = tx.ExecContext(ctx, `UPDATE deliveries SET status=$1, updated_at=$2 WHERE order_id=$3`, string(to), at, id)
	}
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *PostgresRepo) SetPriority(ctx context.Context, id string, priority bool, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET priority=$1, updated_at=$2 WHERE id=$3`, priority, at, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AssignDelivery claims an unassigned delivery. Only one of several racing
// couriers sees true.
func (r *PostgresRepo) AssignDelivery(ctx context.Context, orderID, courierID string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE deliveries SET courier_id=$1, status=$2, updated_at=$3
		WHERE order_id=$4 AND courier_id='' AND status=$5`,
		courierID, string(domain.StatusAssigned), at, orderID, string(domain.StatusReadyForDelivery))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	res, err = tx.ExecContext(ctx, `UPDATE orders SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(domain.StatusAssigned), at, orderID, string(domain.StatusReadyForDelivery))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	return true, tx.Commit()
}

const deliveryColumns = `d.id,d.order_id,d.courier_id,d.address,d.status,d.created_at,d.updated_at,
	o.id,o.customer_id,o.restaurant_id,o.items,o.total_amount,o.status,o.priority,o.address,o.created_at,o.updated_at`

func scanDelivery(s rowScanner) (domain.Delivery, error) {
	var d domain.Delivery
	var o domain.Order
	var items string
	err := s.Scan(&d.ID, &d.OrderID, &d.CourierID, &d.Address, (*string)(&d.Status), &d.CreatedAt, &d.UpdatedAt,
		&o.ID, &o.CustomerID, &o.RestaurantID, &items, (*int64)(&o.TotalAmount), (*string)(&o.Status), &o.Priority, &o.Address, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return d, err
	}
	_ = json.Unmarshal([]byte(items), &o.Items)
	d.Order = &o
	return d, nil
}

func (r *PostgresRepo) GetDeliveryByOrder(ctx context.Context, orderID string) (*domain.Delivery, error) {
	d, err := scanDelivery(r.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+`
		FROM deliveries d JOIN orders o ON o.id = d.order_id WHERE d.order_id=$1`, orderID))
	if err != nil {
		return nil, rowErr(err, "delivery", orderID)
	}
	return &d, nil
}

func (r *PostgresRepo) ListReadyDeliveries(ctx context.Context) ([]domain.Delivery, error) {
	return r.queryDeliveries(ctx, `SELECT `+deliveryColumns+`
		FROM deliveries d JOIN orders o ON o.id = d.order_id
		WHERE d.courier_id='' AND d.status=$1 ORDER BY d.created_at ASC`, string(domain.StatusReadyForDelivery))
}

func (r *PostgresRepo) ListDeliveriesByCourier(ctx context.Context, courierID string) ([]domain.Delivery, error) {
	return r.queryDeliveries(ctx, `SELECT `+deliveryColumns+`
		FROM deliveries d JOIN orders o ON o.id = d.order_id
		WHERE d.courier_id=$1 AND d.status<>$2 ORDER BY d.created_at ASC`, courierID, string(domain.StatusDelivered))
}

func (r *PostgresRepo) queryDeliveries(ctx context.Context, q string, args ...any) ([]domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Delivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const userColumns = `id,email,password_hash,name,role,address,description,opening_time,closing_time,created_at,updated_at`

func scanUser(s rowScanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, (*string)(&u.Role), &u.Address, &u.Description, &u.OpeningTime, &u.ClosingTime, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *PostgresRepo) PutUser(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET email=$2,password_hash=$3,name=$4,role=$5,address=$6,description=$7,opening_time=$8,closing_time=$9,updated_at=$11`,
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.Address, u.Description, u.OpeningTime, u.ClosingTime, u.CreatedAt, u.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: email %s already registered", domain.ErrConflict, u.Email)
	}
	return err
}

func (r *PostgresRepo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return nil, rowErr(err, "user", id)
	}
	return &u, nil
}

func (r *PostgresRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return nil, rowErr(err, "user", email)
	}
	return &u, nil
}

func (r *PostgresRepo) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role=$1 ORDER BY name`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const dishColumns = `id,restaurant_id,name,description,price,is_available,created_at,updated_at`

func scanDish(s rowScanner) (domain.Dish, error) {
	var d domain.Dish
	err := s.Scan(&d.ID, &d.RestaurantID, &d.Name, &d.Description, (*int64)(&d.Price), &d.IsAvailable, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *PostgresRepo) PutDish(ctx context.Context, d *domain.Dish) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO dishes (`+dishColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET name=$3,description=$4,price=$5,is_available=$6,updated_at=$8`,
		d.ID, d.RestaurantID, d.Name, d.Description, int64(d.Price), d.IsAvailable, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetDish(ctx context.Context, id string) (*domain.Dish, error) {
	d, err := scanDish(r.db.QueryRowContext(ctx, `SELECT `+dishColumns+` FROM dishes WHERE id=$1`, id))
	if err != nil {
		return nil, rowErr(err, "dish", id)
	}
	return &d, nil
}

func (r *PostgresRepo) ListDishes(ctx context.Context, restaurantID string) ([]domain.Dish, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+dishColumns+` FROM dishes WHERE restaurant_id=$1 ORDER BY name`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Dish, 0)
	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteDish(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dishes WHERE id=$1`, id)
	return err
}

func (r *PostgresRepo) Close() error { return r.db.Close() }
