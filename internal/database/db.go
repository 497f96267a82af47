package database

import (
	"fmt"
	"time"

	"go-pos-billing/internal/config"
	"go-pos-billing/internal/logger"
	"go-pos-billing/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dialector picks the GORM driver for the configured database
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Connect opens the database (retrying while it comes up), applies pool limits and migrates the schema.
func Connect(cfg config.DatabaseConfig, gormLog *logger.GormLogger, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var db *gorm.DB
	for i := 0; i < retries; i++ {
		db, err = Open(dialector, gormLog)
		if err == nil {
			break
		}
		log.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1), zap.Int("max", retries), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", retries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	log.Info("Connected to database", zap.String("driver", cfg.Driver))

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	log.Info("Database schema synced")
	return db, nil
}

// Open opens a GORM handle that stores every timestamp in UTC and translates driver errors.
func Open(dialector gorm.Dialector, gormLogger *logger.GormLogger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	}
	if gormLogger != nil {
		cfg.Logger = gormLogger
	}
	return gorm.Open(dialector, cfg)
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Tenant{},
		&models.Product{},
		&models.Sale{},
		&models.SaleItem{},
	)
}

// OpenMemory opens a private, migrated in-memory SQLite database. A single pooled
// connection keeps every caller on the same database; it backs local demos and tests.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := Open(sqlite.Open(dsn), logger.NewGormLogger(zap.NewNop(), gormlogger.Silent, 0))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
