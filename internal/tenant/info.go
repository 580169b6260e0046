// Package tenant implements per-request tenant resolution and binding: the
// resolver maps an inbound routing key to a registry row, the accessor holds
// the resolved tenant for exactly one request, and the factory opens handles
// against that tenant's isolated database.
package tenant

// Info is the request-scoped view of a resolved tenant. It carries the
// decrypted connection string and must never be persisted or logged.
type Info struct {
	ID           string
	Slug         string
	DatabaseName string
	PlanID       *uint64

	// DSN is the plaintext connection string for the tenant's database.
	DSN string
}
