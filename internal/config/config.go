package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL          string
	APIToken            string
	APIUsername         string
	APIPassword         string
	APIRatePerSecond    float64
	HostedCheckoutKeyID string
	CallbackAddr        string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	LookupCacheTTL      time.Duration
	StoreID             string
	TerminalID          string
	ManagerPIN          string
	LogLevel            string
	ScannerDevice       string
	PhoneRegion         string
	ShopName            string
	AutoSendEmail       bool

	// EnvFileErr is set when no readable .env was found. Process
	// environment values still apply.
	EnvFileErr error
}

func Load() Config {
	return load(".env")
}

func load(envFile string) Config {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	envErr := v.ReadInConfig()

	v.SetDefault("API_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("API_RATE_PER_SECOND", 10)
	v.SetDefault("CALLBACK_ADDR", "127.0.0.1:8089")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOOKUP_CACHE_TTL_SECONDS", 20)
	v.SetDefault("STORE_ID", "main-store")
	v.SetDefault("TERMINAL_ID", "terminal-1")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PHONE_REGION", "IN")
	v.SetDefault("SHOP_NAME", "POS Billing System")
	v.SetDefault("AUTO_SEND_INVOICE_EMAIL", false)

	rate := v.GetFloat64("API_RATE_PER_SECOND")
	if rate <= 0 {
		rate = 10
	}
	ttl := v.GetInt("LOOKUP_CACHE_TTL_SECONDS")
	if ttl < 1 {
		ttl = 20
	}

	return Config{
		APIBaseURL:          strings.TrimRight(strings.TrimSpace(v.GetString("API_BASE_URL")), "/"),
		APIToken:            strings.TrimSpace(v.GetString("API_TOKEN")),
		APIUsername:         strings.TrimSpace(v.GetString("API_USERNAME")),
		APIPassword:         v.GetString("API_PASSWORD"),
		APIRatePerSecond:    rate,
		HostedCheckoutKeyID: strings.TrimSpace(v.GetString("HOSTED_CHECKOUT_KEY_ID")),
		CallbackAddr:        v.GetString("CALLBACK_ADDR"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             v.GetInt("REDIS_DB"),
		LookupCacheTTL:      time.Duration(ttl) * time.Second,
		StoreID:             v.GetString("STORE_ID"),
		TerminalID:          v.GetString("TERMINAL_ID"),
		ManagerPIN:          strings.TrimSpace(v.GetString("MANAGER_PIN")),
		LogLevel:            v.GetString("LOG_LEVEL"),
		ScannerDevice:       strings.TrimSpace(v.GetString("SCANNER_DEVICE")),
		PhoneRegion:         strings.ToUpper(strings.TrimSpace(v.GetString("PHONE_REGION"))),
		ShopName:            strings.TrimSpace(v.GetString("SHOP_NAME")),
		AutoSendEmail:       v.GetBool("AUTO_SEND_INVOICE_EMAIL"),
		EnvFileErr:          envErr,
	}
}

// CallbackBaseURL is the URL the hosted widget reports back to.
func (c Config) CallbackBaseURL() string {
	addr := c.CallbackAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}
