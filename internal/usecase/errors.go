package usecase

import (
	"errors"

	"foodrun/internal/domain"
)

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

func (e ErrConflict) Is(target error) bool { return target == domain.ErrConflict }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }

type ErrForbidden string

func (e ErrForbidden) Error() string { return string(e) }

func (e ErrForbidden) Is(target error) bool { return target == domain.ErrForbiddenRole }

type ErrUnauthorized string

func (e ErrUnauthorized) Error() string { return string(e) }

// missing turns a record the store could not find into ErrNotFound and
// passes other store failures through.
func missing(err error, kind string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ErrNotFound(kind)
	}
	return err
}
