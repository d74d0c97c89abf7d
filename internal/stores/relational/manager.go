package relational

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/envutil"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/secrets"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Config holds the Postgres connection settings. The password is absent on
// purpose; it is resolved at Initialize time through the secret resolver and
// never read from a config file.
type Config struct {
	Host    string
	Port    string
	User    string
	DBName  string
	SSLMode string
}

func ResolveConfigFromEnv() Config {
	return Config{
		Host:    envutil.Str("POSTGRES_HOST", "localhost"),
		Port:    envutil.Str("POSTGRES_PORT", "5432"),
		User:    envutil.Str("POSTGRES_USER", "postgres"),
		DBName:  envutil.Str("POSTGRES_NAME", "team_assistant"),
		SSLMode: envutil.Str("POSTGRES_SSLMODE", "disable"),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &stores.ConfigurationError{Store: "relational", Message: "POSTGRES_HOST is required"}
	}
	if strings.TrimSpace(c.User) == "" {
		return &stores.ConfigurationError{Store: "relational", Message: "POSTGRES_USER is required"}
	}
	if strings.TrimSpace(c.DBName) == "" {
		return &stores.ConfigurationError{Store: "relational", Message: "POSTGRES_NAME is required"}
	}
	return nil
}

// Manager owns the gorm connection and hands out the relational ingestor and
// retriever built on it.
type Manager struct {
	log      *logger.Logger
	cfg      Config
	resolver *secrets.Resolver
	policy   stores.BatchPolicy
	lc       stores.Lifecycle
	db       *gorm.DB

	ingestor  *Ingestor
	retriever *Retriever
}

func NewManager(log *logger.Logger, cfg Config, resolver *secrets.Resolver, policy stores.BatchPolicy) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		log:      log.With("service", "RelationalStoreManager"),
		cfg:      cfg,
		resolver: resolver,
		policy:   policy,
	}
	m.ingestor = &Ingestor{m: m}
	m.retriever = &Retriever{m: m}
	return m, nil
}

func (m *Manager) Ingestor() *Ingestor   { return m.ingestor }
func (m *Manager) Retriever() *Retriever { return m.retriever }

// Initialize resolves the password, opens the connection, pings it and runs
// the schema migration. Any failure leaves the manager in Failed.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.lc.BeginInit(); err != nil {
		return err
	}

	password, err := m.resolver.Resolve(ctx, "postgres-password", "POSTGRES_PASSWORD", "")
	if err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "relational", Message: "postgres password unresolved", Cause: err}
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		m.cfg.User, password, m.cfg.Host, m.cfg.Port, m.cfg.DBName, m.cfg.SSLMode,
	)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "relational", Message: "connect to postgres", Cause: err}
	}

	if err := db.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "relational", Message: "enable uuid-ossp extension", Cause: err}
	}
	if err := db.WithContext(ctx).AutoMigrate(&ChunkRow{}); err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "relational", Message: "migrate document_chunk", Cause: err}
	}

	m.db = db
	m.lc.MarkReady()
	m.log.Info("relational store ready",
		"host", m.cfg.Host,
		"database", m.cfg.DBName,
	)
	return nil
}

func (m *Manager) Close(_ context.Context) error {
	m.lc.MarkClosed()
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m *Manager) Health(ctx context.Context) stores.Health {
	start := time.Now()
	if m.db == nil {
		return stores.Health{OK: false, Detail: "not initialized"}
	}
	sqlDB, err := m.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return stores.Health{OK: false, LatencyMS: latency, Detail: err.Error()}
	}
	return stores.Health{OK: true, LatencyMS: latency, Detail: "state=" + m.lc.State().String()}
}

func (m *Manager) Stats(ctx context.Context) (stores.Stats, error) {
	if err := m.lc.RequireReady(); err != nil {
		return nil, err
	}
	var total int64
	if err := m.db.WithContext(ctx).Model(&ChunkRow{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("relational: count chunks: %w", err)
	}
	type sourceCount struct {
		SourceType string
		Count      int64
	}
	var perSource []sourceCount
	if err := m.db.WithContext(ctx).Model(&ChunkRow{}).
		Select("source_type, count(*) as count").
		Group("source_type").
		Scan(&perSource).Error; err != nil {
		return nil, fmt.Errorf("relational: count per source: %w", err)
	}
	bySource := make(map[string]int64, len(perSource))
	for _, sc := range perSource {
		bySource[sc.SourceType] = sc.Count
	}
	return stores.Stats{
		"chunk_count":    total,
		"by_source_type": bySource,
		"state":          m.lc.State().String(),
	}, nil
}
