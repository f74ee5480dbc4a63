package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Sweeper SweeperConfig `mapstructure:"sweeper"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	MetricsPort string `mapstructure:"metrics_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN 构造 gorm postgres 驱动使用的 key=value 连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

// URL 构造 golang-migrate 使用的 postgres:// 连接串
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NotifyConfig struct {
	Driver        string `mapstructure:"driver"` // "redis", "stream" or "kafka"
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// TokenConfig 币种对应的 ERC-20 合约
type TokenConfig struct {
	Contract string `mapstructure:"contract"`
	Decimals int32  `mapstructure:"decimals"`
}

type ChainConfig struct {
	RpcUrl string                 `mapstructure:"rpc_url"`
	Tokens map[string]TokenConfig `mapstructure:"tokens"` // key: 币种代码 (USDC, USDT)
}

type WalletConfig struct {
	Mnemonic      string `mapstructure:"mnemonic"`
	KeystorePath  string `mapstructure:"keystore_path"`
	Password      string `mapstructure:"password"` // keystore 密码, 通过 WALLET_PASSWORD 传入
	MasterAddress string `mapstructure:"master_address"`
}

type SweeperConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	BatchSize        int           `mapstructure:"batch_size"`
	RecordPause      time.Duration `mapstructure:"record_pause"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RpcTimeout       time.Duration `mapstructure:"rpc_timeout"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	GasMultiplier    int64         `mapstructure:"gas_multiplier"`
}

var Global Config

// Init 加载配置到 Global，任何必填项缺失直接退出
func Init() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Fatal error config: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 读取 .env / config.yaml / 环境变量，并做完整校验
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read 只读取不校验，供只需要数据库配置的工具 (migrate) 使用
func Read() (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindSecrets(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// setDefaults 只为运维参数设置默认值，安全相关字段 (RPC、助记词、主钱包) 没有默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.metrics_port", "9090")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "wallet_user")
	v.SetDefault("db.password", "wallet_password")
	v.SetDefault("db.name", "wallet_db")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "wallet_events_sweep")

	v.SetDefault("notify.driver", "redis")
	v.SetDefault("notify.channel_prefix", "user_deposits")

	v.SetDefault("sweeper.poll_interval", 30*time.Second)
	v.SetDefault("sweeper.health_interval", 60*time.Second)
	v.SetDefault("sweeper.max_retries", 3)
	v.SetDefault("sweeper.retry_base_delay", 60*time.Second)
	v.SetDefault("sweeper.batch_size", 10)
	v.SetDefault("sweeper.record_pause", time.Second)
	v.SetDefault("sweeper.failure_threshold", 5)
	v.SetDefault("sweeper.rpc_timeout", 15*time.Second)
	v.SetDefault("sweeper.confirm_timeout", 3*time.Minute)
	v.SetDefault("sweeper.gas_multiplier", 2)
}

// bindSecrets 没有默认值的 key 需要显式绑定，否则 Unmarshal 读不到环境变量
func bindSecrets(v *viper.Viper) {
	for _, key := range []string{
		"chain.rpc_url",
		"wallet.mnemonic",
		"wallet.keystore_path",
		"wallet.password",
		"wallet.master_address",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate 一次性返回所有缺失或非法的字段
func (c *Config) Validate() error {
	var problems []string

	if c.Chain.RpcUrl == "" {
		problems = append(problems, "chain.rpc_url 未配置")
	}
	if c.Wallet.Mnemonic == "" && (c.Wallet.KeystorePath == "" || c.Wallet.Password == "") {
		problems = append(problems, "wallet.mnemonic 或 wallet.keystore_path+wallet.password 必须配置其一")
	}
	if !common.IsHexAddress(c.Wallet.MasterAddress) {
		problems = append(problems, "wallet.master_address 未配置或格式错误")
	}
	if len(c.Chain.Tokens) == 0 {
		problems = append(problems, "chain.tokens 至少配置一个币种")
	}
	for symbol, token := range c.Chain.Tokens {
		if !common.IsHexAddress(token.Contract) {
			problems = append(problems, fmt.Sprintf("chain.tokens.%s.contract 格式错误", symbol))
		}
		if token.Decimals < 0 || token.Decimals > 36 {
			problems = append(problems, fmt.Sprintf("chain.tokens.%s.decimals 超出范围", symbol))
		}
	}

	s := c.Sweeper
	if s.PollInterval <= 0 {
		problems = append(problems, "sweeper.poll_interval 必须大于 0")
	}
	if s.HealthInterval <= 0 {
		problems = append(problems, "sweeper.health_interval 必须大于 0")
	}
	if s.MaxRetries <= 0 {
		problems = append(problems, "sweeper.max_retries 必须大于 0")
	}
	if s.RetryBaseDelay <= 0 {
		problems = append(problems, "sweeper.retry_base_delay 必须大于 0")
	}
	if s.BatchSize <= 0 {
		problems = append(problems, "sweeper.batch_size 必须大于 0")
	}
	if s.FailureThreshold <= 0 {
		problems = append(problems, "sweeper.failure_threshold 必须大于 0")
	}
	if s.RpcTimeout <= 0 || s.ConfirmTimeout <= 0 {
		problems = append(problems, "sweeper.rpc_timeout / sweeper.confirm_timeout 必须大于 0")
	}
	// 归集交易至少预留 2 倍估算手续费
	if s.GasMultiplier < 2 {
		problems = append(problems, "sweeper.gas_multiplier 不能小于 2")
	}

	switch c.Notify.Driver {
	case "redis", "stream", "kafka":
	default:
		problems = append(problems, fmt.Sprintf("notify.driver 不支持: %q", c.Notify.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errno.ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Token 按币种代码查找合约配置 (大小写不敏感)
func (c *ChainConfig) Token(currency string) (TokenConfig, bool) {
	if t, ok := c.Tokens[currency]; ok {
		return t, true
	}
	// viper 会把 map key 转成小写
	t, ok := c.Tokens[strings.ToLower(currency)]
	return t, ok
}
