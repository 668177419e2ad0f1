package server

import (
	"foodrun/internal/domain"
	"foodrun/internal/usecase"

	"github.com/gin-gonic/gin"
)

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var in usecase.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	u, sess, err := s.auth.Register(c.Request.Context(), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	created(c, authResponse{User: u, Token: sess.Token})
}

func (s *Server) handleLogin(c *gin.Context) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	u, sess, err := s.auth.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, authResponse{User: u, Token: sess.Token})
}

func (s *Server) handleListRestaurants(c *gin.Context) {
	out, err := s.auth.ListRestaurants(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, out)
}

func (s *Server) handleListDishes(c *gin.Context) {
	out, err := s.dishes.List(c.Request.Context(), c.Param("restaurantId"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, out)
}

func (s *Server) handleCreateDish(c *gin.Context) {
	var in usecase.DishInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	d, err := s.dishes.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	created(c, d)
}

func (s *Server) handleUpdateDish(c *gin.Context) {
	var in usecase.DishInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	d, err := s.dishes.Update(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, d)
}

func (s *Server) handleDeleteDish(c *gin.Context) {
	if err := s.dishes.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	ok(c, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var in usecase.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	o, err := s.orders.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	created(c, o)
}

func (s *Server) handleListClientOrders(c *gin.Context) {
	out, err := s.orders.ListByClient(c.Request.Context(), actorFrom(c), c.Param("customerId"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, out)
}

func (s *Server) handleListRestaurantOrders(c *gin.Context) {
	out, err := s.orders.ListByRestaurant(c.Request.Context(), actorFrom(c), c.Param("restaurantId"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, out)
}

type updateOrderBody struct {
	Status         *string `json:"status"`
	ExpectedStatus *string `json:"expectedStatus"`
	Priority       *bool   `json:"priority"`
}

func (s *Server) handleUpdateOrder(c *gin.Context) {
	var in updateOrderBody
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	if in.Status == nil && in.Priority == nil {
		writeErr(c, usecase.ErrBadRequest("nothing to update"))
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)
	id := c.Param("orderId")
	var (
		o   *domain.Order
		err error
	)
	if in.Status != nil {
		to, perr := domain.ParseStatus(*in.Status)
		if perr != nil {
			writeErr(c, usecase.ErrBadRequest(perr.Error()))
			return
		}
		var expected *domain.Status
		if in.ExpectedStatus != nil {
			st, perr := domain.ParseStatus(*in.ExpectedStatus)
			if perr != nil {
				writeErr(c, usecase.ErrBadRequest(perr.Error()))
				return
			}
			expected = &st
		}
		if o, err = s.orders.Advance(ctx, actor, id, to, expected); err != nil {
			writeErr(c, err)
			return
		}
	}
	if in.Priority != nil {
		if o, err = s.orders.SetPriority(ctx, actor, id, *in.Priority); err != nil {
			writeErr(c, err)
			return
		}
	}
	ok(c, o)
}

func (s *Server) handleListReadyDeliveries(c *gin.Context) {
	out, err := s.orders.ListReady(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, out)
}

func (s *Server) handleAssignDelivery(c *gin.Context) {
	var in struct {
		DeliveryPersonID string `json:"deliveryPersonId"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeErr(c, usecase.ErrBadRequest("invalid body"))
		return
	}
	d, err := s.orders.Assign(c.Request.Context(), actorFrom(c), c.Param("orderId"), in.DeliveryPersonID)
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, d)
}

func (s *Server) handleListCourierDeliveries(c *gin.Context) {
	out, err := s.orders.ListByCourier(c.Request.Context(), actorFrom(c), c.Param("courierId"))
	if err != nil {
		writeErr(c, err)
		return
	}
	ok(c, out)
}
