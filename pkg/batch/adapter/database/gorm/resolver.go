package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver dispatches a connection name to the provider for its type and
// checks the connection is alive before handing it out.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider
	cfg         *config.Config
}

// ResolverParams collects every provider in the db_providers group.
type ResolverParams struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}

// NewGormDBConnectionResolver indexes the providers by type.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	providers := make(map[string]database.DBProvider, len(p.DBProviders))
	for _, provider := range p.DBProviders {
		providers[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{dbProviders: providers, cfg: p.Cfg}
}

// ResolveDBConnection implements database.DBConnectionResolver. A connection that fails its
// ping is re-established once.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	cfg, err := dbconfig.Load(r.cfg.Database, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.dbProviders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no database provider registered for type '%s' (connection '%s')", cfg.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get DB connection '%s': %w", name, err)
	}
	if err := conn.RefreshConnection(ctx); err != nil {
		logger.Warnf("DB connection '%s' failed its health check, reconnecting: %v", name, err)
		conn, err = provider.ForceReconnect(name)
		if err != nil {
			return nil, fmt.Errorf("failed to reconnect DB connection '%s': %w", name, err)
		}
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() {
	for t, provider := range r.dbProviders {
		if err := provider.CloseAll(); err != nil {
			logger.Warnf("Failed to close %s connections: %v", t, err)
		}
	}
}

var _ database.DBConnectionResolver = (*GormDBConnectionResolver)(nil)
