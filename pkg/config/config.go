package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/betbot/optionsdesk/pkg/secretstore"
)

// 默认值
const (
	DefaultBaseURL       = "https://api-testnet.bybit.com"
	DefaultWSURL         = "wss://stream-testnet.bybit.com/v5/public/spot"
	DefaultRecvWindow    = "5000"
	DefaultTimeout       = 10 * time.Second
	DefaultPriceInterval = 5 * time.Second
	DefaultChainInterval = 60 * time.Second
	DefaultPriceTTL      = 30 * time.Second
	DefaultMaxPages      = 10
	DefaultListen        = ":8080"
	DefaultLedgerPath    = "data"

	FailurePolicyClear  = "clear"
	FailurePolicyRetain = "retain"

	PriceSourceREST = "rest"
	PriceSourceWS   = "ws"

	LedgerBackendFile   = "file"
	LedgerBackendSQLite = "sqlite"
	LedgerBackendBadger = "badger"
	LedgerBackendMemory = "memory"
)

// ExchangeConfig 交易所连接配置
type ExchangeConfig struct {
	BaseURL    string
	WSURL      string
	RecvWindow string
	Timeout    time.Duration
	APIKey     string
	APISecret  string
}

// MarketConfig 期权行情轮询配置
type MarketConfig struct {
	Underlyings        []string      // 标的列表，例如 BTC, ETH, SOL
	BaseCoin           string        // 期权链使用的标的
	PriceInterval      time.Duration // 参考价格轮询间隔
	ChainInterval      time.Duration // 期权链轮询间隔
	PriceTTL           time.Duration // 价格看板缓存 TTL
	MaxInstrumentPages int           // 合约列表最多翻页数
	FailurePolicy      string        // clear | retain
	PriceSource        string        // rest | ws
}

// LedgerConfig 成交记录存储配置
type LedgerConfig struct {
	Backend string // file | sqlite | badger | memory
	Path    string
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Listen string
}

// SecretsConfig 加密密钥库配置（可选）
type SecretsConfig struct {
	Path string
	Key  string // 32 字节，hex 或 base64
}

// Config 运行配置
type Config struct {
	Exchange ExchangeConfig
	Market   MarketConfig
	Ledger   LedgerConfig
	Server   ServerConfig
	Secrets  SecretsConfig
	LogLevel string
	LogFile  string
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Exchange struct {
		BaseURL    string `yaml:"base_url" json:"base_url"`
		WSURL      string `yaml:"ws_url" json:"ws_url"`
		RecvWindow string `yaml:"recv_window" json:"recv_window"`
		TimeoutMs  int    `yaml:"timeout_ms" json:"timeout_ms"`
		APIKey     string `yaml:"api_key" json:"api_key"`
		APISecret  string `yaml:"api_secret" json:"api_secret"`
	} `yaml:"exchange" json:"exchange"`
	Market struct {
		Underlyings        []string `yaml:"underlyings" json:"underlyings"`
		BaseCoin           string   `yaml:"base_coin" json:"base_coin"`
		PriceIntervalSec   int      `yaml:"price_interval_sec" json:"price_interval_sec"`
		ChainIntervalSec   int      `yaml:"chain_interval_sec" json:"chain_interval_sec"`
		PriceTTLSec        int      `yaml:"price_ttl_sec" json:"price_ttl_sec"`
		MaxInstrumentPages int      `yaml:"max_instrument_pages" json:"max_instrument_pages"`
		FailurePolicy      string   `yaml:"failure_policy" json:"failure_policy"`
		PriceSource        string   `yaml:"price_source" json:"price_source"`
	} `yaml:"market" json:"market"`
	Ledger struct {
		Backend string `yaml:"backend" json:"backend"`
		Path    string `yaml:"path" json:"path"`
	} `yaml:"ledger" json:"ledger"`
	Server struct {
		Listen string `yaml:"listen" json:"listen"`
	} `yaml:"server" json:"server"`
	Secrets struct {
		Path string `yaml:"path" json:"path"`
		Key  string `yaml:"key" json:"key"`
	} `yaml:"secrets" json:"secrets"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
// filePath 为空时只使用环境变量与默认值
func Load(filePath string) (*Config, error) {
	configFile := &ConfigFile{}
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	cf := configFile
	cfg := &Config{
		Exchange: ExchangeConfig{
			BaseURL:    getEnv("BYBIT_BASE_URL", firstNonEmpty(cf.Exchange.BaseURL, DefaultBaseURL)),
			WSURL:      getEnv("BYBIT_WS_URL", firstNonEmpty(cf.Exchange.WSURL, DefaultWSURL)),
			RecvWindow: getEnv("BYBIT_RECV_WINDOW", firstNonEmpty(cf.Exchange.RecvWindow, DefaultRecvWindow)),
			Timeout:    time.Duration(parseIntEnv("BYBIT_TIMEOUT_MS", firstPositive(cf.Exchange.TimeoutMs, int(DefaultTimeout/time.Millisecond)))) * time.Millisecond,
			APIKey:     getEnv("BYBIT_API_KEY", cf.Exchange.APIKey),
			APISecret:  getEnv("BYBIT_API_SECRET", cf.Exchange.APISecret),
		},
		Market: MarketConfig{
			Underlyings:        parseList(getEnv("MARKET_UNDERLYINGS", strings.Join(cf.Market.Underlyings, ","))),
			BaseCoin:           strings.ToUpper(getEnv("MARKET_BASE_COIN", cf.Market.BaseCoin)),
			PriceInterval:      time.Duration(parseIntEnv("MARKET_PRICE_INTERVAL_SEC", cf.Market.PriceIntervalSec)) * time.Second,
			ChainInterval:      time.Duration(parseIntEnv("MARKET_CHAIN_INTERVAL_SEC", cf.Market.ChainIntervalSec)) * time.Second,
			PriceTTL:           time.Duration(parseIntEnv("MARKET_PRICE_TTL_SEC", cf.Market.PriceTTLSec)) * time.Second,
			MaxInstrumentPages: parseIntEnv("MARKET_MAX_INSTRUMENT_PAGES", cf.Market.MaxInstrumentPages),
			FailurePolicy:      strings.ToLower(getEnv("MARKET_FAILURE_POLICY", cf.Market.FailurePolicy)),
			PriceSource:        strings.ToLower(getEnv("MARKET_PRICE_SOURCE", cf.Market.PriceSource)),
		},
		Ledger: LedgerConfig{
			Backend: strings.ToLower(getEnv("LEDGER_BACKEND", cf.Ledger.Backend)),
			Path:    getEnv("LEDGER_PATH", cf.Ledger.Path),
		},
		Server: ServerConfig{
			Listen: getEnv("SERVER_LISTEN", cf.Server.Listen),
		},
		Secrets: SecretsConfig{
			Path: getEnv("SECRETS_PATH", cf.Secrets.Path),
			Key:  getEnv("SECRETS_KEY", cf.Secrets.Key),
		},
		LogLevel: getEnv("LOG_LEVEL", cf.LogLevel),
		LogFile:  getEnv("LOG_FILE", cf.LogFile),
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = DefaultBaseURL
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = DefaultWSURL
	}
	if c.Exchange.RecvWindow == "" {
		c.Exchange.RecvWindow = DefaultRecvWindow
	}
	if c.Exchange.Timeout <= 0 {
		c.Exchange.Timeout = DefaultTimeout
	}
	if len(c.Market.Underlyings) == 0 {
		c.Market.Underlyings = []string{"BTC", "ETH", "SOL"}
	}
	for i, u := range c.Market.Underlyings {
		c.Market.Underlyings[i] = strings.ToUpper(u)
	}
	if c.Market.BaseCoin == "" {
		c.Market.BaseCoin = c.Market.Underlyings[0]
	}
	if c.Market.PriceInterval <= 0 {
		c.Market.PriceInterval = DefaultPriceInterval
	}
	if c.Market.ChainInterval <= 0 {
		c.Market.ChainInterval = DefaultChainInterval
	}
	if c.Market.PriceTTL <= 0 {
		c.Market.PriceTTL = DefaultPriceTTL
	}
	if c.Market.MaxInstrumentPages <= 0 {
		c.Market.MaxInstrumentPages = DefaultMaxPages
	}
	if c.Market.FailurePolicy == "" {
		c.Market.FailurePolicy = FailurePolicyClear
	}
	if c.Market.PriceSource == "" {
		c.Market.PriceSource = PriceSourceREST
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerBackendFile
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = DefaultLedgerPath
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate 验证配置（不校验凭证，凭证缺失由 RequireCredentials 在创建客户端时报告）
func (c *Config) Validate() error {
	switch c.Market.FailurePolicy {
	case FailurePolicyClear, FailurePolicyRetain:
	default:
		return &ConfigError{Field: "market.failure_policy", Reason: fmt.Sprintf("未知的取值: %q (支持 clear, retain)", c.Market.FailurePolicy)}
	}
	switch c.Market.PriceSource {
	case PriceSourceREST, PriceSourceWS:
	default:
		return &ConfigError{Field: "market.price_source", Reason: fmt.Sprintf("未知的取值: %q (支持 rest, ws)", c.Market.PriceSource)}
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile, LedgerBackendSQLite, LedgerBackendBadger, LedgerBackendMemory:
	default:
		return &ConfigError{Field: "ledger.backend", Reason: fmt.Sprintf("未知的取值: %q (支持 file, sqlite, badger, memory)", c.Ledger.Backend)}
	}
	if !containsString(c.Market.Underlyings, c.Market.BaseCoin) {
		return &ConfigError{Field: "market.base_coin", Reason: fmt.Sprintf("%s 不在 underlyings 列表中", c.Market.BaseCoin)}
	}
	if _, err := strconv.Atoi(c.Exchange.RecvWindow); err != nil {
		return &ConfigError{Field: "exchange.recv_window", Reason: "必须是毫秒数", Err: err}
	}
	return nil
}

// ResolveCredentials 环境变量/配置文件未提供凭证时，尝试从加密密钥库读取
func (c *Config) ResolveCredentials() error {
	if c.Exchange.APIKey != "" && c.Exchange.APISecret != "" {
		return nil
	}
	if c.Secrets.Path == "" {
		return nil
	}
	key, err := secretstore.ParseKey(c.Secrets.Key)
	if err != nil {
		return &ConfigError{Field: "secrets.key", Reason: "密钥格式错误", Err: err}
	}
	store, err := secretstore.Open(secretstore.OpenOptions{Path: c.Secrets.Path, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("打开密钥库失败: %w", err)
	}
	defer store.Close()

	apiKey, apiSecret, err := store.Credentials()
	if err != nil {
		return fmt.Errorf("读取密钥库失败: %w", err)
	}
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = apiKey
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = apiSecret
	}
	return nil
}

// loadConfigFile 读取 YAML / JSON 配置文件
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseList 解析逗号分隔列表
func parseList(str string) []string {
	if str == "" {
		return nil
	}
	parts := strings.Split(str, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
