package auth

import "time"

// Tenant represents a strict isolation boundary. Vendors, evidence, and
// workflow runs all hang off a tenant; feed items are shared globally.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"` // ACTIVE, SUSPENDED
}

// Principal is the interface for any entity invoking a core operation.
// Authentication happens upstream; the core trusts the resolved identity.
type Principal interface {
	GetID() string
	GetTenantID() string
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID       string
	TenantID string
}

func (b *BasePrincipal) GetID() string {
	return b.ID
}

func (b *BasePrincipal) GetTenantID() string {
	return b.TenantID
}

// RequestContext carries the request-level facts the core needs for audit
// capture. Transport concerns (headers, sessions) stay outside the core.
type RequestContext struct {
	TenantID      string
	ActorID       string
	SourceAddress string
}
