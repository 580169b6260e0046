package tenant

import (
	"errors"
	"fmt"

	"github.com/storekit-cloud/storekit/internal/models"
)

// Resolution errors surfaced at the request boundary.
var (
	// ErrNoRoutingKey indicates no tenant candidate was supplied.
	ErrNoRoutingKey = errors.New("tenant: no routing key supplied")
	// ErrNotFound indicates no registry row matches the slug.
	ErrNotFound = errors.New("tenant: not found")
	// ErrAlreadyBound indicates a second SetTenant call within one request.
	ErrAlreadyBound = errors.New("tenant: request already bound to a tenant")
)

// NotReadyError reports a tenant that exists but is not in the serving state.
// It carries the current status for operator and UI feedback.
type NotReadyError struct {
	Slug   string
	Status models.TenantStatus
}

func (e *NotReadyError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("tenant: %s not ready (status=%s)", e.Slug, e.Status)
}

// IsNotReady extracts a NotReadyError from an error chain.
func IsNotReady(err error) (*NotReadyError, bool) {
	var notReady *NotReadyError
	if errors.As(err, &notReady) {
		return notReady, true
	}
	return nil, false
}
