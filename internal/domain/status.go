package domain

import "fmt"

type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusInKitchen        Status = "IN_KITCHEN"
	StatusReadyForDelivery Status = "READY_FOR_DELIVERY"
	StatusAssigned         Status = "ASSIGNED"
	StatusInTransit        Status = "IN_TRANSIT"
	StatusDelivered        Status = "DELIVERED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusCreated,
	StatusInKitchen,
	StatusReadyForDelivery,
	StatusAssigned,
	StatusInTransit,
	StatusDelivered,
}

type Role string

const (
	RoleCustomer Role = "client"
	RoleKitchen  Role = "chef"
	RoleDelivery Role = "delivery"
)

var Roles = []Role{RoleCustomer, RoleKitchen, RoleDelivery}

type Transition struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (t Transition) String() string { return string(t.From) + "->" + string(t.To) }

var owners = map[Transition]Role{
	{StatusCreated, StatusInKitchen}:          RoleKitchen,
	{StatusInKitchen, StatusReadyForDelivery}: RoleKitchen,
	{StatusReadyForDelivery, StatusAssigned}:  RoleDelivery,
	{StatusAssigned, StatusInTransit}:         RoleKitchen,
	{StatusInTransit, StatusDelivered}:        RoleDelivery,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

// Rank is the position of s in the lifecycle, or -1 when s is unknown.
func (s Status) Rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Terminal() bool { return s == StatusDelivered }

// Before reports whether s comes strictly earlier in the lifecycle than o.
func (s Status) Before(o Status) bool {
	return s.Valid() && o.Valid() && s.Rank() < o.Rank()
}

// LegalTransitions returns the statuses reachable from s in one step.
func LegalTransitions(s Status) []Status {
	var out []Status
	for _, next := range Statuses {
		if _, ok := owners[Transition{s, next}]; ok {
			out = append(out, next)
		}
	}
	return out
}

func AllowedRoleFor(t Transition) (Role, error) {
	r, ok := owners[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrIllegalTransition, t)
	}
	return r, nil
}

// Authorize fails with ErrIllegalTransition unless role owns from->to.
func Authorize(from, to Status, role Role) error {
	t := Transition{from, to}
	owner, err := AllowedRoleFor(t)
	if err != nil {
		return err
	}
	if owner != role {
		return fmt.Errorf("%w: %s is not allowed for role %s", ErrIllegalTransition, t, role)
	}
	return nil
}

// VisibleActions is the subset of legal transitions from s that role owns.
func VisibleActions(s Status, role Role) []Transition {
	var out []Transition
	for _, next := range LegalTransitions(s) {
		t := Transition{s, next}
		if owners[t] == role {
			out = append(out, t)
		}
	}
	return out
}
