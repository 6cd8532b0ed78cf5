// Package database 提供数据库连接和管理功能.
package database

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Tsukikage7/payment-saga/logger"
)

// 支持的驱动类型.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config 数据库配置.
type Config struct {
	// Driver 数据库驱动类型：mysql, postgres, sqlite
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN 数据库连接字符串
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// AutoMigrate 是否自动迁移表结构
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" mapstructure:"auto_migrate"`

	// Pool 连接池配置
	Pool PoolConfig `json:"pool" yaml:"pool" mapstructure:"pool"`

	// SlowThreshold 慢查询阈值
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold" mapstructure:"slow_threshold"`

	// LogLevel 日志级别: silent, error, warn, info
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// PoolConfig 连接池配置.
type PoolConfig struct {
	// MaxOpen 最大打开连接数
	MaxOpen int `json:"max_open" yaml:"max_open" mapstructure:"max_open"`

	// MaxIdle 最大空闲连接数
	MaxIdle int `json:"max_idle" yaml:"max_idle" mapstructure:"max_idle"`

	// MaxLifetime 连接最大生命周期
	MaxLifetime time.Duration `json:"max_lifetime" yaml:"max_lifetime" mapstructure:"max_lifetime"`

	// MaxIdleTime 空闲连接最大存活时间
	MaxIdleTime time.Duration `json:"max_idle_time" yaml:"max_idle_time" mapstructure:"max_idle_time"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	return &Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      "warn",
		Pool: PoolConfig{
			MaxOpen:     50,
			MaxIdle:     10,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
		},
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Driver == "" {
		return ErrEmptyDriver
	}
	if c.DSN == "" {
		return ErrEmptyDSN
	}
	return nil
}

// applyDefaults 应用默认值.
func (c *Config) applyDefaults() {
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Pool.MaxOpen == 0 {
		c.Pool.MaxOpen = 50
	}
	if c.Pool.MaxIdle == 0 {
		c.Pool.MaxIdle = 10
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = time.Hour
	}
	if c.Pool.MaxIdleTime == 0 {
		c.Pool.MaxIdleTime = 10 * time.Minute
	}
}

// Database 数据库连接.
type Database struct {
	db     *gorm.DB
	config *Config
	logger logger.Logger
}

// NewDatabase 创建数据库连接.
func NewDatabase(config *Config, log logger.Logger) (*Database, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialector, err := getDialector(config.Driver, config.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGORMLoggerAdapter(log, config.SlowThreshold, config.LogLevel),
		// 把驱动的唯一约束冲突翻译为 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(config.Pool.MaxOpen)
	sqlDB.SetMaxIdleConns(config.Pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(config.Pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.Pool.MaxIdleTime)

	return &Database{db: db, config: config, logger: log}, nil
}

// MustNewDatabase 创建数据库连接，失败时 panic.
func MustNewDatabase(config *Config, log logger.Logger) *Database {
	db, err := NewDatabase(config, log)
	if err != nil {
		panic(err)
	}
	return db
}

// getDialector 根据驱动类型返回对应的 Dialector.
func getDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres, "postgresql":
		return postgres.Open(dsn), nil
	case DriverSQLite, "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, ErrUnsupportedDriver
	}
}

// GORM 获取底层 GORM 实例.
func (d *Database) GORM() *gorm.DB {
	return d.db
}

// AutoMigrate 自动迁移表结构.
func (d *Database) AutoMigrate(models ...any) error {
	if !d.config.AutoMigrate {
		d.logger.Debug("[Database] 自动迁移已禁用，跳过表结构创建")
		return nil
	}

	if err := d.db.AutoMigrate(models...); err != nil {
		d.logger.Error("[Database] 自动迁移失败", "error", err)
		return err
	}
	d.logger.Debug("[Database] 表结构迁移完成")
	return nil
}

// Close 关闭数据库连接.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
