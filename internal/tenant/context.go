package tenant

import "sync"

// Accessor is the request-scoped, write-once holder of the resolved tenant.
// A second SetTenant call fails with ErrAlreadyBound: two resolution passes
// disagreeing is a programming error, and a silent overwrite would be a
// tenant-confusion security bug.
type Accessor struct {
	mu   sync.Mutex
	info *Info
}

// NewAccessor constructs an empty per-request accessor.
func NewAccessor() *Accessor {
	return &Accessor{}
}

// SetTenant binds the request to a tenant. It succeeds exactly once.
func (a *Accessor) SetTenant(info *Info) error {
	if a == nil || info == nil {
		return ErrAlreadyBound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.info != nil {
		return ErrAlreadyBound
	}
	a.info = info
	return nil
}

// HasTenant reports whether the request is bound to a tenant.
func (a *Accessor) HasTenant() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info != nil
}

// TenantInfo returns the bound tenant, or nil when unbound.
func (a *Accessor) TenantInfo() *Info {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info
}
