package logger

// Config 日志配置.
type Config struct {
	// ServiceName 服务名称，作为固定字段附加到每条日志
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`

	// Level 日志级别：debug, info, warn, error
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format 输出格式：json, console
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// EnableCaller 是否记录调用者信息
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	switch c.Level {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return ErrInvalidLevel
	}

	switch c.Format {
	case "", FormatJSON, FormatConsole:
	default:
		return ErrInvalidFormat
	}

	return nil
}
