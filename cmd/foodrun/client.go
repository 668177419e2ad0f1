package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"foodrun/internal/cart"
	"foodrun/internal/config"
	"foodrun/internal/domain"
	"foodrun/internal/infrastructure/storeapi"
	"foodrun/internal/polling"
	"foodrun/internal/roleview"
	"foodrun/internal/session"
)

const sessionName = "default"

func runClient(ctx context.Context, cfg config.Config, args cliArgs, log *slog.Logger) error {
	sessions := session.NewStore()
	api := &storeapi.Client{BaseURL: cfg.APIBaseURL, Tokens: sessions.Source(sessionName)}

	if args.email == "" || args.password == "" {
		return fmt.Errorf("-email and -password are required")
	}
	res, err := api.Login(ctx, args.email, args.password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	sess, err := session.Decode(res.Token, time.Now())
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	sessions.Put(sessionName, sess)
	log.Info("signed in", "action", "login", "user_id", sess.SubjectID, "role", string(sess.Role), "expires_at", sess.ExpiresAt)

	vcfg := roleview.Config{
		Store:     api,
		Session:   sess,
		Navigator: roleview.LogNavigator{Log: log},
		Notifier:  roleview.LogNotifier{Log: log},
		Log:       log,
		Interval:  cfg.PollInterval,
	}

	switch sess.Role {
	case domain.RoleCustomer:
		vcfg.Interval = cfg.TrackInterval
		v, err := roleview.NewCustomerView(vcfg, cart.New(), api)
		if err != nil {
			return err
		}
		defer v.Close()
		return runCustomer(ctx, v, args, log)
	case domain.RoleKitchen:
		v, err := roleview.NewKitchenView(vcfg)
		if err != nil {
			return err
		}
		defer v.Close()
		return runKitchen(ctx, v, api, sess, args, log)
	case domain.RoleDelivery:
		v, err := roleview.NewDeliveryView(vcfg)
		if err != nil {
			return err
		}
		defer v.Close()
		return runDelivery(ctx, v, api, sess, args, log)
	}
	return fmt.Errorf("unsupported role %q", sess.Role)
}

// waitAll blocks until every watcher has exited.
func waitAll(hs ...*polling.Handle) {
	for _, h := range hs {
		<-h.Done()
	}
}

func runCustomer(ctx context.Context, v *roleview.CustomerView, args cliArgs, log *slog.Logger) error {
	switch args.mode {
	case "watch":
		waitAll(v.WatchActiveOrder(ctx))
		return nil
	case "order":
		if args.restaurant == "" || args.dishes == "" {
			return fmt.Errorf("-restaurant and -dishes are required")
		}
		menu, err := v.Menu(ctx, args.restaurant)
		if err != nil {
			return err
		}
		picks, err := parsePicks(args.dishes)
		if err != nil {
			return err
		}
		for _, d := range menu {
			if qty, ok := picks[d.ID]; ok {
				if err := v.AddToCart(d, qty); err != nil {
					return err
				}
				delete(picks, d.ID)
			}
		}
		for id := range picks {
			return fmt.Errorf("dish %s is not on the menu", id)
		}
		o, err := v.Checkout(ctx, args.address)
		if err != nil {
			return err
		}
		log.Info("order placed", "action", "checkout", "order_id", o.ID, "total", o.TotalAmount.String())
		waitAll(v.WatchActiveOrder(ctx))
		return nil
	}
	return fmt.Errorf("mode %s is not available to customers", args.mode)
}

func runKitchen(ctx context.Context, v *roleview.KitchenView, api *storeapi.Client, sess *session.Session, args cliArgs, log *slog.Logger) error {
	switch args.mode {
	case "watch":
		h := v.WatchQueue(ctx, func(orders []domain.Order) {
			for _, o := range orders {
				log.Info("queue", "action", "kitchen_queue", "order_id", o.ID, "status", string(o.Status), "priority", o.Priority, "actions", len(v.Actions(o)))
			}
		})
		waitAll(h)
		return nil
	case "advance":
		to, err := domain.ParseStatus(args.to)
		if err != nil {
			return err
		}
		orders, err := api.ListRestaurantOrders(ctx, sess.SubjectID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.ID == args.orderID {
				_, err := v.Advance(ctx, o, to)
				return err
			}
		}
		return fmt.Errorf("order %s not found", args.orderID)
	}
	return fmt.Errorf("mode %s is not available to kitchens", args.mode)
}

func runDelivery(ctx context.Context, v *roleview.DeliveryView, api *storeapi.Client, sess *session.Session, args cliArgs, log *slog.Logger) error {
	switch args.mode {
	case "watch":
		ready := v.WatchReady(ctx, func(ds []domain.Delivery) {
			log.Info("ready deliveries", "action", "delivery_ready", "count", len(ds))
		})
		waitAll(ready, v.WatchAssigned(ctx))
		return nil
	case "claim":
		ds, err := api.ListReadyDeliveries(ctx)
		if err != nil {
			return err
		}
		for _, d := range ds {
			if d.OrderID == args.orderID {
				_, err := v.Claim(ctx, d)
				return err
			}
		}
		return fmt.Errorf("no ready delivery for order %s", args.orderID)
	case "advance":
		to, err := domain.ParseStatus(args.to)
		if err != nil {
			return err
		}
		ds, err := api.ListCourierDeliveries(ctx, sess.SubjectID)
		if err != nil {
			return err
		}
		for _, d := range ds {
			if d.OrderID == args.orderID {
				_, err := v.Advance(ctx, d, to)
				return err
			}
		}
		return fmt.Errorf("order %s is not assigned to you", args.orderID)
	}
	return fmt.Errorf("mode %s is not available to couriers", args.mode)
}

func parsePicks(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, part := range config.SplitList(s) {
		id, qtyStr, found := strings.Cut(part, ":")
		qty := 1
		if found {
			n, err := strconv.Atoi(qtyStr)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bad quantity in %q", part)
			}
			qty = n
		}
		out[strings.TrimSpace(id)] += qty
	}
	return out, nil
}
