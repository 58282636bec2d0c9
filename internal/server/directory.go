package server

import (
	"context"

	"github.com/inkwell-labs/inkwell/internal/notes"
	"github.com/inkwell-labs/inkwell/internal/users"
)

type userDirectory struct {
	service *users.Service
}

// NewUserDirectory adapts the users service to the notes service's
// share-by-email lookup.
func NewUserDirectory(service *users.Service) notes.UserDirectory {
	return &userDirectory{service: service}
}

func (d *userDirectory) LookupByEmail(ctx context.Context, email string) (notes.UserRef, error) {
	user, err := d.service.GetByEmail(ctx, email)
	if err != nil {
		return notes.UserRef{}, err
	}
	return notes.UserRef{
		ID:          user.ID,
		DisplayName: user.Username,
		Email:       user.Email,
	}, nil
}
