package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/link"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

const (
	TransportBlueZ  = "bluez"
	TransportSerial = "serial"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DatabaseConfig PostgreSQL 连接配置，DSN 为空时不启用命令审计
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	Migrations      string        `mapstructure:"migrations"`
}

// RedisConfig Redis 连接配置，Addr 为空时不镜像快照
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	KeyPrefix    string        `mapstructure:"keyPrefix"`
	Channel      string        `mapstructure:"channel"`
}

// AuthConfig API 鉴权
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIConfig 设备 API 配置
type APIConfig struct {
	Auth AuthConfig `mapstructure:"auth"`
	// CommandRate 每台设备每秒允许的命令数
	CommandRate     float64       `mapstructure:"commandRate"`
	CommandBurst    int           `mapstructure:"commandBurst"`
	CommandDeadline time.Duration `mapstructure:"commandDeadline"`
}

// SessionConfig 设备在线判定
type SessionConfig struct {
	// ServerID 网关实例ID，为空时自动生成
	ServerID        string        `mapstructure:"serverID"`
	ActivityTimeout time.Duration `mapstructure:"activityTimeout"`
	WeightedEnabled bool          `mapstructure:"weightedEnabled"`
	LinkDownWindow  time.Duration `mapstructure:"linkDownWindow"`
	TimeoutWindow   time.Duration `mapstructure:"timeoutWindow"`
	LinkDownPenalty float64       `mapstructure:"linkDownPenalty"`
	TimeoutPenalty  float64       `mapstructure:"timeoutPenalty"`
	Threshold       float64       `mapstructure:"threshold"`
}

// BLEConfig BlueZ 适配器配置
type BLEConfig struct {
	Adapter        string        `mapstructure:"adapter"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	ResolveTimeout time.Duration `mapstructure:"resolveTimeout"`
}

// DriverConfig 所有设备共用的驱动时序
type DriverConfig struct {
	CommandTimeout         time.Duration `mapstructure:"commandTimeout"`
	IdleDisconnect         time.Duration `mapstructure:"idleDisconnect"`
	ReconnectBase          time.Duration `mapstructure:"reconnectBase"`
	ReconnectMax           time.Duration `mapstructure:"reconnectMax"`
	RetryCount             int           `mapstructure:"retryCount"`
	Cooldown               time.Duration `mapstructure:"cooldown"`
	ConnectInterval        time.Duration `mapstructure:"connectInterval"`
	CommandRetries         int           `mapstructure:"commandRetries"`
	MaxConsecutiveTimeouts int           `mapstructure:"maxConsecutiveTimeouts"`
	AvailabilityGrace      time.Duration `mapstructure:"availabilityGrace"`
}

// ProtocolOverrides 协议参数覆盖，空值沿用型号默认
type ProtocolOverrides struct {
	AckRule        string `mapstructure:"ackRule"`
	WordOrder      string `mapstructure:"wordOrder"`
	FlagOrder      string `mapstructure:"flagOrder"`
	UplinkChecksum *bool  `mapstructure:"uplinkChecksum"`
}

// SerialConfig 串口链路参数
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// DeviceConfig 单台雷达
type DeviceConfig struct {
	Address        string            `mapstructure:"address"`
	Name           string            `mapstructure:"name"`
	Model          string            `mapstructure:"model"`
	Transport      string            `mapstructure:"transport"`
	Serial         SerialConfig      `mapstructure:"serial"`
	Password       string            `mapstructure:"password"`
	AutoReconnect  *bool             `mapstructure:"autoReconnect"`
	IdleDisconnect time.Duration     `mapstructure:"idleDisconnect"`
	Overrides      ProtocolOverrides `mapstructure:"overrides"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	API      APIConfig      `mapstructure:"api"`
	Session  SessionConfig  `mapstructure:"session"`
	BLE      BLEConfig      `mapstructure:"ble"`
	Driver   DriverConfig   `mapstructure:"driver"`
	Devices  []DeviceConfig `mapstructure:"devices"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 RADAR_CONFIG 读取；否则回退到 configs/radard.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 RADAR_，并将点号替换为下划线
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("radard")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "radard")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	// 设备命令可能等待多次应答
	v.SetDefault("http.writeTimeout", "60s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/radard.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.connMaxLifetime", "1h")
	v.SetDefault("database.migrations", "db/migrations")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.keyPrefix", "radar:")
	v.SetDefault("redis.channel", "radar:snapshots")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.commandRate", 2)
	v.SetDefault("api.commandBurst", 4)
	v.SetDefault("api.commandDeadline", "45s")

	v.SetDefault("session.activityTimeout", "90s")
	v.SetDefault("session.weightedEnabled", false)
	v.SetDefault("session.linkDownWindow", "60s")
	v.SetDefault("session.timeoutWindow", "60s")
	v.SetDefault("session.linkDownPenalty", 0.5)
	v.SetDefault("session.timeoutPenalty", 0.5)
	v.SetDefault("session.threshold", 0.5)

	v.SetDefault("ble.adapter", "hci0")
	v.SetDefault("ble.connectTimeout", "20s")
	v.SetDefault("ble.resolveTimeout", "10s")

	v.SetDefault("driver.commandTimeout", "5s")
	v.SetDefault("driver.idleDisconnect", "8500ms")
	v.SetDefault("driver.reconnectBase", "1s")
	v.SetDefault("driver.reconnectMax", "10s")
	v.SetDefault("driver.retryCount", 3)
	v.SetDefault("driver.cooldown", "30s")
	v.SetDefault("driver.connectInterval", "30s")
	v.SetDefault("driver.commandRetries", 1)
	v.SetDefault("driver.maxConsecutiveTimeouts", 3)
	v.SetDefault("driver.availabilityGrace", "60s")
}

func (c *Config) normalize() {
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Address = link.NormalizeAddress(d.Address)
		d.Model = strings.ToLower(strings.TrimSpace(d.Model))
		d.Transport = strings.ToLower(strings.TrimSpace(d.Transport))
		if d.Transport == "" {
			d.Transport = TransportBlueZ
		}
		if d.Transport == TransportSerial && d.Serial.Baud == 0 {
			d.Serial.Baud = 256000
		}
	}
}

// Validate 校验设备列表
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if err := link.ValidateAddress(d.Address); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if _, dup := seen[d.Address]; dup {
			return fmt.Errorf("devices[%d]: duplicate address %s", i, d.Address)
		}
		seen[d.Address] = struct{}{}

		if _, err := d.Profile(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		switch d.Transport {
		case TransportBlueZ:
		case TransportSerial:
			if d.Serial.Port == "" {
				return fmt.Errorf("devices[%d]: serial transport requires serial.port", i)
			}
		default:
			return fmt.Errorf("devices[%d]: unknown transport %q", i, d.Transport)
		}
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.enabled requires at least one api key")
	}
	return nil
}

// Profile 型号协议参数，应用覆盖
func (d DeviceConfig) Profile() (*hlk.Profile, error) {
	p, err := hlk.ProfileFor(d.Model)
	if err != nil {
		return nil, err
	}
	return p.Apply(hlk.Overrides{
		AckRule:        d.Overrides.AckRule,
		WordOrder:      d.Overrides.WordOrder,
		FlagOrder:      d.Overrides.FlagOrder,
		UplinkChecksum: d.Overrides.UplinkChecksum,
	})
}

// DriverConfig 合成驱动参数；BLE 链路未配置密码时使用型号默认密码
func (d DeviceConfig) DriverConfig(common DriverConfig, p *hlk.Profile) driver.Config {
	password := d.Password
	if password == "" && d.Transport == TransportBlueZ && p.Auth {
		password = p.DefaultPassword
	}
	idle := common.IdleDisconnect
	if d.IdleDisconnect != 0 {
		idle = d.IdleDisconnect
	}
	// 串口链路不需要空闲断开
	if d.Transport == TransportSerial && d.IdleDisconnect == 0 {
		idle = -1
	}
	return driver.Config{
		Address:                d.Address,
		Name:                   d.Name,
		Password:               password,
		AutoReconnect:          d.AutoReconnect,
		CommandTimeout:         common.CommandTimeout,
		IdleDisconnect:         idle,
		ReconnectBase:          common.ReconnectBase,
		ReconnectMax:           common.ReconnectMax,
		RetryCount:             common.RetryCount,
		Cooldown:               common.Cooldown,
		ConnectInterval:        common.ConnectInterval,
		CommandRetries:         common.CommandRetries,
		MaxConsecutiveTimeouts: common.MaxConsecutiveTimeouts,
		AvailabilityGrace:      common.AvailabilityGrace,
	}
}
