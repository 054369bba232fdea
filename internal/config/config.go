package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wfunc/echechess/internal/errors"
)

// Mode 部署模式
type Mode string

const (
	// ModeIndependent 单节点模式：内存仓储，进程内直接执行
	ModeIndependent Mode = "independent"
	// ModeDependent 集群模式：共享存储，经消息总线执行
	ModeDependent Mode = "dependent"
)

// 消息总线驱动
const (
	BusDriverAMQP   = "amqp"
	BusDriverMemory = "memory"
)

// Config 全局配置结构体
type Config struct {
	Mode      Mode            `mapstructure:"mode"`
	Node      NodeConfig      `mapstructure:"node"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Bus       BusConfig       `mapstructure:"bus"`
	Session   SessionConfig   `mapstructure:"session"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Action    ActionConfig    `mapstructure:"action"`
	Log       LogConfig       `mapstructure:"log"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	ID string `mapstructure:"id"`
}

// Endpoint 服务端点，启动后不再变化
type Endpoint struct {
	Host string
	Port int
}

// Addr 返回 host:port
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// IsZero 端点是否未配置
func (e Endpoint) IsZero() bool {
	return e.Host == "" || e.Port <= 0
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 共享存储配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// Endpoint 存储端点
func (c DatabaseConfig) Endpoint() Endpoint {
	return Endpoint{Host: c.Host, Port: c.Port}
}

// BuildDSN 生成连接串，显式配置的dsn优先
func (c DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Driver {
	case "postgres", "postgresql":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Endpoint().Addr(), c.Name)
	default:
		return c.Name
	}
}

// BusConfig 消息总线配置
type BusConfig struct {
	Driver            string        `mapstructure:"driver"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	VHost             string        `mapstructure:"vhost"`
	Partitions        int           `mapstructure:"partitions"`
	Prefetch          int           `mapstructure:"prefetch"`
	ActionExchange    string        `mapstructure:"action_exchange"`
	EventExchange     string        `mapstructure:"event_exchange"`
	QueuePrefix       string        `mapstructure:"queue_prefix"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

// Endpoint 总线端点
func (c BusConfig) Endpoint() Endpoint {
	return Endpoint{Host: c.Host, Port: c.Port}
}

// URL 生成AMQP连接地址
func (c BusConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Endpoint().Addr(),
		Path:   "/" + strings.TrimPrefix(c.VHost, "/"),
	}
	return u.String()
}

// SessionConfig 会话配置
type SessionConfig struct {
	Secret        string        `mapstructure:"secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	UiTTL         time.Duration `mapstructure:"ui_ttl"`
	UiCapacity    int           `mapstructure:"ui_capacity"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	DedupSize       int           `mapstructure:"dedup_size"`
}

// ActionConfig 动作执行配置
type ActionConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// IsCluster 是否集群模式
func (c *Config) IsCluster() bool {
	return c.Mode == ModeDependent
}

// Validate 校验启动配置，集群模式缺少存储或总线端点时返回启动配置错误
func (c *Config) Validate() error {
	var missing []string

	switch c.Mode {
	case ModeIndependent:
	case ModeDependent:
		if c.Database.DSN == "" && c.Database.Endpoint().IsZero() {
			missing = append(missing, "database.host/database.port")
		}
		switch c.Bus.Driver {
		case BusDriverAMQP:
			if c.Bus.Endpoint().IsZero() {
				missing = append(missing, "bus.host/bus.port")
			}
			if c.Bus.User == "" || c.Bus.Password == "" {
				missing = append(missing, "bus.user/bus.password")
			}
		case BusDriverMemory:
		default:
			return errors.Newf(errors.ErrStartupConfiguration, "不支持的总线驱动: %s", c.Bus.Driver)
		}
		if c.Bus.Partitions <= 0 {
			missing = append(missing, "bus.partitions")
		}
	default:
		return errors.Newf(errors.ErrStartupConfiguration, "未知的部署模式: %s", c.Mode)
	}

	if c.Session.Secret == "" {
		missing = append(missing, "session.secret")
	}
	if c.Session.UiTTL <= 0 {
		missing = append(missing, "session.ui_ttl")
	}

	if len(missing) > 0 {
		return errors.New(errors.ErrStartupConfiguration, "缺少配置项: "+strings.Join(missing, ", "))
	}
	return nil
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		loaded, v, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取一份独立的配置（不影响全局实例）
func Load(configPath string) (*Config, error) {
	c, _, err := load(configPath)
	return c, err
}

func load(configPath string) (*Config, *viper.Viper, error) {
	// .env 中的变量先进入进程环境
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.Wrap(err, errors.ErrConfigLoad, "读取.env失败")
	}

	vp := viper.New()
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("ECHECHESS")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, errors.Wrap(err, errors.ErrConfigLoad)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrConfigParse)
	}
	if c.Node.ID == "" {
		c.Node.ID = defaultNodeID()
	}
	return c, vp, nil
}

// defaultNodeID 主机名加随机后缀
func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeIndependent))
	v.SetDefault("node.id", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "./data/echechess.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("bus.driver", BusDriverAMQP)
	v.SetDefault("bus.host", "")
	v.SetDefault("bus.port", 5672)
	v.SetDefault("bus.user", "")
	v.SetDefault("bus.password", "")
	v.SetDefault("bus.vhost", "/")
	v.SetDefault("bus.partitions", 8)
	v.SetDefault("bus.prefetch", 1)
	v.SetDefault("bus.action_exchange", "echechess.actions")
	v.SetDefault("bus.event_exchange", "echechess.events")
	v.SetDefault("bus.queue_prefix", "echechess")
	v.SetDefault("bus.publish_timeout", "5s")
	v.SetDefault("bus.reconnect_interval", "3s")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.token_ttl", "24h")
	v.SetDefault("session.ui_ttl", "100s")
	v.SetDefault("session.ui_capacity", 1000)
	v.SetDefault("session.sweep_interval", "30s")

	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.dedup_size", 4096)

	v.SetDefault("action.timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "echechess.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		// 节点标识与端点启动后不可变
		newCfg.Node = cfg.Node
		newCfg.Mode = cfg.Mode
		newCfg.Database = cfg.Database
		newCfg.Bus = cfg.Bus
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
	v.WatchConfig()
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}
