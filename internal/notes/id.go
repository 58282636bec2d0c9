package notes

import "github.com/google/uuid"

// NewUUIDProvider returns an IDProvider backed by time-ordered UUIDv7
// values, shared by the notes and users services.
func NewUUIDProvider() IDProvider {
	return uuidProvider{}
}

type uuidProvider struct{}

func (uuidProvider) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
