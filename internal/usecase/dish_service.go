package usecase

import (
	"context"
	"strings"
	"time"

	"foodrun/internal/domain"

	"github.com/google/uuid"
)

type DishRepo interface {
	PutDish(ctx context.Context, d *domain.Dish) error
	GetDish(ctx context.Context, id string) (*domain.Dish, error)
	ListDishes(ctx context.Context, restaurantID string) ([]domain.Dish, error)
	DeleteDish(ctx context.Context, id string) error
}

type DishService struct {
	Repo DishRepo
}

type DishInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       domain.Money `json:"price"`
	IsAvailable *bool        `json:"isAvailable"`
}

func (s *DishService) List(ctx context.Context, restaurantID string) ([]domain.Dish, error) {
	return s.Repo.ListDishes(ctx, restaurantID)
}

func (s *DishService) Create(ctx context.Context, actor Actor, in DishInput) (*domain.Dish, error) {
	if actor.Role != domain.RoleKitchen {
		return nil, ErrForbidden("only restaurants can add dishes")
	}
	if strings.TrimSpace(in.Name) == "" || in.Price < 0 {
		return nil, ErrBadRequest("dish needs a name and a non-negative price")
	}
	now := time.Now().UTC()
	d := &domain.Dish{
		ID:           uuid.NewString(),
		RestaurantID: actor.ID,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Price:        in.Price,
		IsAvailable:  in.IsAvailable == nil || *in.IsAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.PutDish(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DishService) Update(ctx context.Context, actor Actor, id string, in DishInput) (*domain.Dish, error) {
	d, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		d.Name = name
	}
	if in.Description != "" {
		d.Description = in.Description
	}
	if in.Price > 0 {
		d.Price = in.Price
	}
	if in.IsAvailable != nil {
		d.IsAvailable = *in.IsAvailable
	}
	d.UpdatedAt = time.Now().UTC()
	if err := s.Repo.PutDish(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DishService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.Repo.DeleteDish(ctx, id)
}

func (s *DishService) owned(ctx context.Context, actor Actor, id string) (*domain.Dish, error) {
	d, err := s.Repo.GetDish(ctx, id)
	if err != nil {
		return nil, missing(err, "dish")
	}
	if actor.Role != domain.RoleKitchen || d.RestaurantID != actor.ID {
		return nil, ErrForbidden("dish belongs to another restaurant")
	}
	return d, nil
}
