package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foodrun/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type orderRow struct {
	ID           string `gorm:"primaryKey"`
	CustomerID   string `gorm:"index"`
	RestaurantID string `gorm:"index"`
	Items        string
	TotalAmount  int64
	Status       string `gorm:"index"`
	Priority     bool
	Address      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (orderRow) TableName() string { return "orders" }

type deliveryRow struct {
	ID        string `gorm:"primaryKey"`
	OrderID   string `gorm:"uniqueIndex"`
	CourierID string `gorm:"index"`
	Address   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (deliveryRow) TableName() string { return "deliveries" }

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	Name         string
	Role         string `gorm:"index"`
	Address      string
	Description  string
	OpeningTime  string
	ClosingTime  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type dishRow struct {
	ID           string `gorm:"primaryKey"`
	RestaurantID string `gorm:"index"`
	Name         string
	Description  string
	Price        int64
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (dishRow) TableName() string { return "dishes" }

// SQLiteRepo is the embedded store used for local development.
type SQLiteRepo struct {
	db *gorm.DB
}

func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&orderRow{}, &deliveryRow{}, &userRow{}, &dishRow{}); err != nil {
		return nil, err
	}
	return &SQLiteRepo{db: db}, nil
}

func toOrderRow(o *domain.Order) orderRow {
	items, _ := json.Marshal(o.Items)
	return orderRow{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		Items:        string(items),
		TotalAmount:  int64(o.TotalAmount),
		Status:       string(o.Status),
		Priority:     o.Priority,
		Address:      o.Address,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func (row orderRow) toDomain() domain.Order {
	o := domain.Order{
		ID:           row.ID,
		CustomerID:   row.CustomerID,
		RestaurantID: row.RestaurantID,
		TotalAmount:  domain.Money(row.TotalAmount),
		Status:       domain.Status(row.Status),
		Priority:     row.Priority,
		Address:      row.Address,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(row.Items), &o.Items)
	return o
}

func (r *SQLiteRepo) CreateOrder(ctx context.Context, o *domain.Order) error {
	row := toOrderRow(o)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *SQLiteRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, gormErr(err, "order", id)
	}
	o := row.toDomain()
	return &o, nil
}

func (r *SQLiteRepo) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.listOrders(ctx, "created_at DESC", "customer_id = ?", customerID)
}

func (r *SQLiteRepo) ListOrdersByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	return r.listOrders(ctx, "created_at ASC", "restaurant_id = ?", restaurantID)
}

func (r *SQLiteRepo) listOrders(ctx context.Context, order string, where string, args ...any) ([]domain.Order, error) {
	var rows []orderRow
	if err := r.db.WithContext(ctx).Where(where, args...).Order(order).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *SQLiteRepo) TransitionOrder(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	moved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&orderRow{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(map[string]any{"status": string(to), "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		switch {
		case to == domain.StatusReadyForDelivery:
			var o orderRow
			if err := tx.Where("id = ?", id).First(&o).Error; err != nil {
				return err
			}
			var n int64
			if err := tx.Model(&deliveryRow{}).Where("order_id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				d := deliveryRow{ID: uuid.NewString(), OrderID: id, Address: o.Address, Status: string(to), CreatedAt: at, UpdatedAt: at}
				if err := tx.Create(&d).Error; err != nil {
					return err
				}
			}
		case domain.StatusReadyForDelivery.Before(to):
			if err := tx.Model(&deliveryRow{}).Where("order_id = ?", id).
				Updates(map[string]any{"status": string(to), "updated_at": at}).Error; err != nil {
				return err
			}
		}
		moved = true
		return nil
	})
	return moved, err
}

func (r *SQLiteRepo) SetPriority(ctx context.Context, id string, priority bool, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", id).
		Updates(map[string]any{"priority": priority, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

var errLostClaim = errors.New("delivery already claimed")

func (r *SQLiteRepo) AssignDelivery(ctx context.Context, orderID, courierID string, at time.Time) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&deliveryRow{}).
			Where("order_id = ? AND courier_id = '' AND status = ?", orderID, string(domain.StatusReadyForDelivery)).
			Updates(map[string]any{"courier_id": courierID, "status": string(domain.StatusAssigned), "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLostClaim
		}
		res = tx.Model(&orderRow{}).
			Where("id = ? AND status = ?", orderID, string(domain.StatusReadyForDelivery)).
			Updates(map[string]any{"status": string(domain.StatusAssigned), "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLostClaim
		}
		return nil
	})
	if errors.Is(err, errLostClaim) {
		return false, nil
	}
	return err == nil, err
}

func (r *SQLiteRepo) GetDeliveryByOrder(ctx context.Context, orderID string) (*domain.Delivery, error) {
	var row deliveryRow
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error; err != nil {
		return nil, gormErr(err, "delivery", orderID)
	}
	out, err := r.attachOrders(ctx, []deliveryRow{row})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, orderID)
	}
	return &out[0], nil
}

func gormErr(err error, kind, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, key)
	}
	return fmt.Errorf("load %s %s: %w", kind, key, err)
}

func (r *SQLiteRepo) ListReadyDeliveries(ctx context.Context) ([]domain.Delivery, error) {
	var rows []deliveryRow
	err := r.db.WithContext(ctx).
		Where("courier_id = '' AND status = ?", string(domain.StatusReadyForDelivery)).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.attachOrders(ctx, rows)
}

func (r *SQLiteRepo) ListDeliveriesByCourier(ctx context.Context, courierID string) ([]domain.Delivery, error) {
	var rows []deliveryRow
	err := r.db.WithContext(ctx).
		Where("courier_id = ? AND status <> ?", courierID, string(domain.StatusDelivered)).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.attachOrders(ctx, rows)
}

func (r *SQLiteRepo) attachOrders(ctx context.Context, rows []deliveryRow) ([]domain.Delivery, error) {
	out := make([]domain.Delivery, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.OrderID)
	}
	var orders []orderRow
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o.toDomain()
	}
	for _, row := range rows {
		d := domain.Delivery{
			ID:        row.ID,
			OrderID:   row.OrderID,
			CourierID: row.CourierID,
			Address:   row.Address,
			Status:    domain.Status(row.Status),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if o, ok := byID[row.OrderID]; ok {
			d.Order = &o
		}
		out = append(out, d)
	}
	return out, nil
}

func (row userRow) toDomain() domain.User {
	return domain.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Name:         row.Name,
		Role:         domain.Role(row.Role),
		Address:      row.Address,
		Description:  row.Description,
		OpeningTime:  row.OpeningTime,
		ClosingTime:  row.ClosingTime,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func (r *SQLiteRepo) PutUser(ctx context.Context, u *domain.User) error {
	row := userRow{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		Address:      u.Address,
		Description:  u.Description,
		OpeningTime:  u.OpeningTime,
		ClosingTime:  u.ClosingTime,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&userRow{}).Where("email = ? AND id <> ?", u.Email, u.ID).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: email %s already registered", domain.ErrConflict, u.Email)
		}
		return tx.Save(&row).Error
	})
}

func (r *SQLiteRepo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, gormErr(err, "user", id)
	}
	u := row.toDomain()
	return &u, nil
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return nil, gormErr(err, "user", email)
	}
	u := row.toDomain()
	return &u, nil
}

func (r *SQLiteRepo) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	var rows []userRow
	if err := r.db.WithContext(ctx).Where("role = ?", string(role)).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (row dishRow) toDomain() domain.Dish {
	return domain.Dish{
		ID:           row.ID,
		RestaurantID: row.RestaurantID,
		Name:         row.Name,
		Description:  row.Description,
		Price:        domain.Money(row.Price),
		IsAvailable:  row.IsAvailable,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func (r *SQLiteRepo) PutDish(ctx context.Context, d *domain.Dish) error {
	row := dishRow{
		ID:           d.ID,
		RestaurantID: d.RestaurantID,
		Name:         d.Name,
		Description:  d.Description,
		Price:        int64(d.Price),
		IsAvailable:  d.IsAvailable,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *SQLiteRepo) GetDish(ctx context.Context, id string) (*domain.Dish, error) {
	var row dishRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, gormErr(err, "dish", id)
	}
	d := row.toDomain()
	return &d, nil
}

func (r *SQLiteRepo) ListDishes(ctx context.Context, restaurantID string) ([]domain.Dish, error) {
	var rows []dishRow
	if err := r.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Dish, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *SQLiteRepo) DeleteDish(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&dishRow{}).Error
}

func (r *SQLiteRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
