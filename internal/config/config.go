package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Hub       HubConfig
	Chains    map[uint64]ChainConfig
	Routes    []RouteConfig
	Rebalance RebalanceConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// HubConfig holds the Everclear hub API settings and webhook auth.
type HubConfig struct {
	BaseURL        string
	WebhookSecret  string
	MinBlockNumber uint64
	RequestTimeout time.Duration
}

// AssetConfig describes one configured asset on one chain.
type AssetConfig struct {
	Symbol     string `json:"symbol"`
	Address    string `json:"address"`
	Decimals   uint8  `json:"decimals"`
	TickerHash string `json:"tickerHash"`
	IsNative   bool   `json:"isNative"`
	// Strategy marks the hub settlement strategy for this asset on this
	// chain; invoices served by XERC20 are skipped entirely.
	Strategy string `json:"strategy,omitempty"`
}

// ChainConfig describes one supported chain.
type ChainConfig struct {
	ChainID      uint64        `json:"chainId"`
	RPCURL       string        `json:"rpcUrl"`
	SignerURL    string        `json:"signerUrl"`
	OwnerAddress string        `json:"ownerAddress"`
	SafeAddress  string        `json:"safeAddress,omitempty"`
	ZodiacModule string        `json:"zodiacModule,omitempty"`
	Assets       []AssetConfig `json:"assets"`
}

// Recipient returns the address funds land on for this chain: the Safe
// when configured, the EOA otherwise.
func (c ChainConfig) Recipient() string {
	if c.SafeAddress != "" {
		return c.SafeAddress
	}
	return c.OwnerAddress
}

// AssetByTicker finds the configured asset for a ticker hash.
func (c ChainConfig) AssetByTicker(tickerHash string) (AssetConfig, bool) {
	for _, a := range c.Assets {
		if a.TickerHash == tickerHash {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// AssetByAddress finds the configured asset for a contract address.
func (c ChainConfig) AssetByAddress(address string) (AssetConfig, bool) {
	for _, a := range c.Assets {
		if strings.EqualFold(a.Address, address) {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// RouteConfig describes one on-demand rebalance route.
type RouteConfig struct {
	Origin           uint64   `json:"origin"`
	Destination      uint64   `json:"destination"`
	Asset            string   `json:"asset"`
	DestinationAsset string   `json:"destinationAsset,omitempty"` // set => swap route
	Preferences      []string `json:"preferences"`
	SlippagesDbps    []uint32 `json:"slippagesDbps"`
	ReserveRaw       string   `json:"reserve,omitempty"`       // 18-dec units
	MinSwapAmountRaw string   `json:"minSwapAmount,omitempty"` // native units

	reserve       *big.Int
	minSwapAmount *big.Int
}

// IsSwapRoute reports whether the asset symbol changes across the trip.
func (r RouteConfig) IsSwapRoute() bool {
	return r.DestinationAsset != ""
}

// Reserve returns the configured origin reserve in 18-dec units.
func (r RouteConfig) Reserve() *big.Int {
	if r.reserve == nil {
		return big.NewInt(0)
	}
	return r.reserve
}

// MinSwapAmount returns the configured swap floor in native units.
func (r RouteConfig) MinSwapAmount() *big.Int {
	if r.minSwapAmount == nil {
		return big.NewInt(0)
	}
	return r.minSwapAmount
}

// RebalanceConfig holds orchestration intervals and limits.
type RebalanceConfig struct {
	CallbackInterval time.Duration
	ExpiryInterval   time.Duration
	OperationTTL     time.Duration
	MaxInvoiceAge    time.Duration
	RetryAfterEvent  time.Duration
	RetryAfterDefer  time.Duration
	PurchaseCacheTTL time.Duration
	QueueWorkers     int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "mark"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Hub: HubConfig{
			BaseURL:        getEnv("EVERCLEAR_API_URL", "https://api.everclear.org"),
			WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
			MinBlockNumber: uint64(getEnvAsInt("WEBHOOK_MIN_BLOCK_NUMBER", 0)),
			RequestTimeout: getEnvAsDuration("HUB_REQUEST_TIMEOUT", 30*time.Second),
		},
		Rebalance: RebalanceConfig{
			CallbackInterval: getEnvAsDuration("CALLBACK_INTERVAL", 30*time.Second),
			ExpiryInterval:   getEnvAsDuration("EXPIRY_INTERVAL", 10*time.Minute),
			OperationTTL:     getEnvAsDuration("OPERATION_TTL", 24*time.Hour),
			MaxInvoiceAge:    getEnvAsDuration("MAX_INVOICE_AGE", 6*time.Hour),
			RetryAfterEvent:  getEnvAsDuration("RETRY_AFTER_EVENT", 60*time.Second),
			RetryAfterDefer:  getEnvAsDuration("RETRY_AFTER_DEFER", 10*time.Second),
			PurchaseCacheTTL: getEnvAsDuration("PURCHASE_CACHE_TTL", 12*time.Hour),
			QueueWorkers:     getEnvAsInt("QUEUE_WORKERS", 4),
		},
	}

	if raw := os.Getenv("CHAINS_CONFIG"); raw != "" {
		chains, err := ParseChains([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid CHAINS_CONFIG: %w", err)
		}
		cfg.Chains = chains
	}

	if raw := os.Getenv("ROUTES_CONFIG"); raw != "" {
		routes, err := ParseRoutes([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid ROUTES_CONFIG: %w", err)
		}
		cfg.Routes = routes
	}

	return cfg, nil
}

// ParseChains decodes the JSON chain table.
func ParseChains(raw []byte) (map[uint64]ChainConfig, error) {
	var list []ChainConfig
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	chains := make(map[uint64]ChainConfig, len(list))
	for _, c := range list {
		if c.ChainID == 0 {
			return nil, fmt.Errorf("chain entry missing chainId")
		}
		chains[c.ChainID] = c
	}
	return chains, nil
}

// ParseRoutes decodes the JSON route table and validates amounts.
func ParseRoutes(raw []byte) ([]RouteConfig, error) {
	var routes []RouteConfig
	if err := json.Unmarshal(raw, &routes); err != nil {
		return nil, err
	}
	for i := range routes {
		r := &routes[i]
		if len(r.Preferences) != len(r.SlippagesDbps) {
			return nil, fmt.Errorf("route %d→%d: preferences and slippages length mismatch", r.Origin, r.Destination)
		}
		var err error
		if r.reserve, err = parseAmount(r.ReserveRaw); err != nil {
			return nil, fmt.Errorf("route %d→%d: bad reserve: %w", r.Origin, r.Destination, err)
		}
		if r.minSwapAmount, err = parseAmount(r.MinSwapAmountRaw); err != nil {
			return nil, fmt.Errorf("route %d→%d: bad minSwapAmount: %w", r.Origin, r.Destination, err)
		}
	}
	return routes, nil
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("not a non-negative integer: %q", raw)
	}
	return v, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
