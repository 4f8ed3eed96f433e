package joblock

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/infrastructure/config"
)

// Factory creates lockers based on configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory lock when Redis is unavailable
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a Redis locker when Redis is enabled and reachable, otherwise an in-memory one
func (f *Factory) Create() (Locker, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory job lock")
		return NewMemoryLocker(), nil
	}

	locker, err := NewRedisLocker(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("Using Redis job lock", zap.String("addr", f.redisConfig.Addr()))
		return locker, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for the job lock but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory job lock. "+
		"Jobs started by other processes are not excluded.",
		zap.Error(err),
	)
	return NewMemoryLocker(), nil
}
