package tenant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/availability"
)

// Provider adapts a Source to the lookups the services and transport need.
type Provider struct {
	source Source
	logger *slog.Logger

	mu        sync.RWMutex
	locations map[string]*time.Location
}

// NewProvider builds a Provider over source.
func NewProvider(source Source, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		source:    source,
		logger:    logger.With("component", "tenant_provider"),
		locations: make(map[string]*time.Location),
	}
}

// Tenant returns the full record of a tenant.
func (p *Provider) Tenant(ctx context.Context, tenantID string) (Record, error) {
	return p.source.Tenant(ctx, tenantID)
}

// TenantIDs lists every configured tenant.
func (p *Provider) TenantIDs(ctx context.Context) ([]string, error) {
	return p.source.TenantIDs(ctx)
}

// OperatingHours implements application.HoursProvider.
func (p *Provider) OperatingHours(ctx context.Context, tenantID, employeeID string) (availability.Config, error) {
	r, err := p.source.Tenant(ctx, tenantID)
	if err != nil {
		return availability.Config{}, err
	}
	return r.AvailabilityConfig(employeeID)
}

// Services implements application.ServiceCatalog.
func (p *Provider) Services(ctx context.Context, tenantID string, ids []string) ([]appointment.Service, error) {
	r, err := p.source.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]appointment.Service, 0, len(ids))
	for _, id := range ids {
		svc, err := r.Service(id)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// Employee returns the employee as an appointment relation record.
func (p *Provider) Employee(ctx context.Context, tenantID, employeeID string) (appointment.Employee, error) {
	r, err := p.source.Tenant(ctx, tenantID)
	if err != nil {
		return appointment.Employee{}, err
	}
	e, err := r.Employee(employeeID)
	if err != nil {
		return appointment.Employee{}, err
	}
	return appointment.Employee{ID: e.ID, Name: e.Name, TelegramChatID: e.TelegramChatID}, nil
}

// Client returns the client record.
func (p *Provider) Client(ctx context.Context, tenantID, clientID string) (appointment.Client, error) {
	r, err := p.source.Tenant(ctx, tenantID)
	if err != nil {
		return appointment.Client{}, err
	}
	return r.Client(clientID)
}

// User returns the API user record.
func (p *Provider) User(ctx context.Context, tenantID, userID string) (UserRecord, error) {
	r, err := p.source.Tenant(ctx, tenantID)
	if err != nil {
		return UserRecord{}, err
	}
	return r.User(userID)
}

// Location implements civiltime.ZoneResolver. Unknown tenants resolve to UTC.
func (p *Provider) Location(tenantID string) *time.Location {
	p.mu.RLock()
	loc, ok := p.locations[tenantID]
	p.mu.RUnlock()
	if ok {
		return loc
	}

	r, err := p.source.Tenant(context.Background(), tenantID)
	if err == nil {
		loc, err = r.Location()
	}
	if err != nil {
		p.logger.Warn("falling back to UTC", "tenant_id", tenantID, "error", err)
		return time.UTC
	}

	p.mu.Lock()
	p.locations[tenantID] = loc
	p.mu.Unlock()
	return loc
}
