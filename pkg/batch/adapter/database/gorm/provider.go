package gorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// DialectorFactory builds the gorm.Dialector for a connection.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

type dialects struct {
	sync.RWMutex
	byType map[string]DialectorFactory
}

var registered = &dialects{byType: map[string]DialectorFactory{}}

// RegisterDialector makes dbType available to Open. Dialect packages call it from init.
func RegisterDialector(dbType string, factory DialectorFactory) {
	registered.Lock()
	defer registered.Unlock()
	if _, dup := registered.byType[dbType]; dup {
		logger.Warnf("Dialect '%s' registered twice; keeping the last one.", dbType)
	}
	registered.byType[dbType] = factory
}

// GetDialectorFactory returns the factory registered for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	registered.RLock()
	defer registered.RUnlock()
	if factory, ok := registered.byType[dbType]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("database type '%s' is not supported (is its driver module loaded?)", dbType)
}

// Open connects to the database described by cfg and applies the pool settings.
func Open(cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	factory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("database '%s': %w", name, err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(cfg.LogLevel)})
	if err != nil {
		return nil, fmt.Errorf("database '%s': connect: %w", name, err)
	}
	adapter, err := NewGormDBAdapter(db, cfg, name)
	if err != nil {
		return nil, err
	}
	adapter.applyPool(cfg.Pool)
	return adapter, nil
}

// applyPool leaves zero-valued settings at the driver defaults.
func (a *GormDBAdapter) applyPool(pool dbconfig.PoolConfig) {
	if n := pool.MaxOpenConns; n > 0 {
		a.sqlDB.SetMaxOpenConns(n)
	}
	if n := pool.MaxIdleConns; n > 0 {
		a.sqlDB.SetMaxIdleConns(n)
	}
	if m := pool.ConnMaxLifetimeMinutes; m > 0 {
		a.sqlDB.SetConnMaxLifetime(time.Duration(m) * time.Minute)
	}
}

// BaseProvider implements database.DBProvider for one database type and keeps one connection
// per name. The dialect packages embed it.
type BaseProvider struct {
	cfg    *config.Config
	dbType string

	mu   sync.Mutex
	open map[string]database.DBConnection
}

var _ database.DBProvider = (*BaseProvider)(nil)

// NewBaseProvider returns a provider for dbType reading its sections from cfg.Database.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return &BaseProvider{cfg: cfg, dbType: dbType, open: map[string]database.DBConnection{}}
}

// Type implements database.DBProvider.
func (p *BaseProvider) Type() string { return p.dbType }

// GetConnection implements database.DBProvider. Connections are dialed on first use and cached
// by name.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn := p.open[name]; conn != nil {
		return conn, nil
	}
	return p.dial(name)
}

// ForceReconnect drops the cached connection for name and dials again. The resolver calls it
// when a cached pool was closed underneath it.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.open[name]; old != nil {
		delete(p.open, name)
		if err := old.Close(); err != nil {
			logger.Warnf("Closing stale connection '%s': %v", name, err)
		}
	}
	return p.dial(name)
}

// dial must be called with p.mu held.
func (p *BaseProvider) dial(name string) (database.DBConnection, error) {
	cfg, err := dbconfig.Load(p.cfg.Database, name)
	if err != nil {
		return nil, err
	}
	if cfg.Type != p.dbType {
		return nil, fmt.Errorf("database '%s' has type '%s', provider handles '%s' (type mismatch)", name, cfg.Type, p.dbType)
	}
	conn, err := Open(cfg, name)
	if err != nil {
		return nil, err
	}
	p.open[name] = conn
	logger.Infof("Connected to database '%s' (%s).", name, p.dbType)
	return conn, nil
}

// CloseAll implements database.DBProvider. Every cached connection is closed even when one of
// them fails; the failures are returned together.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs *multierror.Error
	for name, conn := range p.open {
		if err := conn.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("database '%s': %w", name, err))
		}
	}
	p.open = map[string]database.DBConnection{}
	return errs.ErrorOrNil()
}
