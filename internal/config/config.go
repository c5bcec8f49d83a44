package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	BasePath string `mapstructure:"base_path"`
}

type TwilioConfig struct {
	AccountSID     string        `mapstructure:"account_sid"`
	AuthToken      string        `mapstructure:"auth_token"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	NumbersBaseURL string        `mapstructure:"numbers_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IsoCountry     string        `mapstructure:"iso_country"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
	DefaultAddress AddressConfig `mapstructure:"default_address"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

// AddressConfig is the emergency address created in subaccounts that have
// none when a number is transferred into them.
type AddressConfig struct {
	CustomerName string `mapstructure:"customer_name"`
	FriendlyName string `mapstructure:"friendly_name"`
	Street       string `mapstructure:"street"`
	City         string `mapstructure:"city"`
	Region       string `mapstructure:"region"`
	PostalCode   string `mapstructure:"postal_code"`
	IsoCountry   string `mapstructure:"iso_country"`
}

type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	SubaccountTTL time.Duration `mapstructure:"subaccount_ttl"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// Credentials maps operator usernames to bcrypt password hashes
	// (generate with `twilio-manager hashpass`).
	Credentials map[string]string `mapstructure:"credentials"`
}

type RateLimitConfig struct {
	LoginAttempts int           `mapstructure:"login_attempts"`
	Window        time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (TWIMGR_*). The legacy deployment variables
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and LOG_PATH are honored as well.
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (TWIMGR_*)
	v.SetEnvPrefix("TWIMGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// legacy variable names used by the container deployment
	_ = v.BindEnv("twilio.account_sid", "TWIMGR_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "TWIMGR_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("log.path", "TWIMGR_LOG_PATH", "LOG_PATH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
