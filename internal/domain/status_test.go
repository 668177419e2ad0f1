package domain

import (
	"errors"
	"testing"
)

func TestLegalTransitionsFollowLifecycle(t *testing.T) {
	for i, s := range Statuses {
		next := LegalTransitions(s)
		if s.Terminal() {
			if len(next) != 0 {
				t.Fatalf("terminal %s has successors %v", s, next)
			}
			continue
		}
		if len(next) != 1 || next[0] != Statuses[i+1] {
			t.Fatalf("%s: expected [%s], got %v", s, Statuses[i+1], next)
		}
	}
	if got := LegalTransitions(Status("COOKING")); len(got) != 0 {
		t.Fatalf("unknown status should have no successors, got %v", got)
	}
}

func TestAuthorizeEveryPair(t *testing.T) {
	owner := map[Transition]Role{
		{StatusCreated, StatusInKitchen}:          RoleKitchen,
		{StatusInKitchen, StatusReadyForDelivery}: RoleKitchen,
		{StatusReadyForDelivery, StatusAssigned}:  RoleDelivery,
		{StatusAssigned, StatusInTransit}:         RoleKitchen,
		{StatusInTransit, StatusDelivered}:        RoleDelivery,
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			for _, role := range Roles {
				err := Authorize(from, to, role)
				want, legal := owner[Transition{from, to}]
				if legal && want == role {
					if err != nil {
						t.Fatalf("%s->%s as %s: unexpected error %v", from, to, role, err)
					}
					continue
				}
				if !errors.Is(err, ErrIllegalTransition) {
					t.Fatalf("%s->%s as %s: expected illegal transition, got %v", from, to, role, err)
				}
			}
		}
	}
}

func TestVisibleActions(t *testing.T) {
	cases := []struct {
		status Status
		role   Role
		want   int
	}{
		{StatusCreated, RoleKitchen, 1},
		{StatusCreated, RoleCustomer, 0},
		{StatusCreated, RoleDelivery, 0},
		{StatusReadyForDelivery, RoleDelivery, 1},
		{StatusReadyForDelivery, RoleKitchen, 0},
		{StatusAssigned, RoleDelivery, 0},
		{StatusAssigned, RoleKitchen, 1},
		{StatusInTransit, RoleDelivery, 1},
		{StatusDelivered, RoleDelivery, 0},
	}
	for _, c := range cases {
		got := VisibleActions(c.status, c.role)
		if len(got) != c.want {
			t.Fatalf("%s/%s: expected %d actions, got %v", c.status, c.role, c.want, got)
		}
		for _, tr := range got {
			if err := Authorize(tr.From, tr.To, c.role); err != nil {
				t.Fatalf("visible action %s not authorized: %v", tr, err)
			}
		}
	}
}

func TestParse(t *testing.T) {
	if s, err := ParseStatus("IN_TRANSIT"); err != nil || s != StatusInTransit {
		t.Fatalf("parse status: %v %v", s, err)
	}
	if _, err := ParseStatus("in_transit"); err == nil {
		t.Fatalf("expected error for lowercase status")
	}
	if r, err := ParseRole("chef"); err != nil || r != RoleKitchen {
		t.Fatalf("parse role: %v %v", r, err)
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if !StatusCreated.Before(StatusDelivered) || StatusDelivered.Before(StatusCreated) {
		t.Fatalf("ordering broken")
	}
}

func TestNetworkErrorIs(t *testing.T) {
	err := error(&NetworkError{Op: "GET /delivery", StatusCode: 502, Err: errors.New("bad gateway")})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork")
	}
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.StatusCode != 502 {
		t.Fatalf("expected NetworkError with status 502, got %v", err)
	}
	if Money(1234).String() != "12.34" {
		t.Fatalf("money format: %s", Money(1234))
	}
}
