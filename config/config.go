package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Goals       GoalsConfig       `yaml:"goals"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap"`
	Scenarios   ScenariosConfig   `yaml:"scenarios"`
	Accounts    AccountsConfig    `yaml:"accounts"`
	Chain       ChainConfig       `yaml:"chain"`
	MerchantAPI MerchantAPIConfig `yaml:"merchant_api"`
	Identity    IdentityConfig    `yaml:"identity"`
	Storage     StorageConfig     `yaml:"storage"`
	API         APIConfig         `yaml:"api"`
	Log         LogConfig         `yaml:"log"`
}

// BotConfig controla el ritmo del scheduler y el circuit breaker.
type BotConfig struct {
	MinIntervalSeconds  int               `yaml:"min_interval_seconds"`
	MaxIntervalSeconds  int               `yaml:"max_interval_seconds"`
	ActiveHours         ActiveHoursConfig `yaml:"active_hours"`
	MaxFailures         int               `yaml:"max_consecutive_failures"`
	CooldownMinutes     int               `yaml:"cooldown_minutes"`
	SaveIntervalSeconds int               `yaml:"save_interval_seconds"`
	RemotePollSeconds   int               `yaml:"remote_poll_seconds"`
	DryRun              bool              `yaml:"dry_run"` // usa el ledger simulado en memoria
}

// ActiveHoursConfig es la ventana horaria (hora local) en la que se permiten ticks.
// Start > End significa que la ventana cruza medianoche.
type ActiveHoursConfig struct {
	Enabled bool `yaml:"enabled"`
	Start   int  `yaml:"start"`
	End     int  `yaml:"end"`
}

// GoalsConfig son los objetivos que persigue el GoalTracker.
type GoalsConfig struct {
	TVL       float64 `yaml:"tvl"`
	Merchants int     `yaml:"merchants"`
	Users     int     `yaml:"users"`
	DailyTx   int     `yaml:"daily_tx"`
}

// BootstrapConfig dimensiona el sembrado inicial. Los conteos en cero toman
// los objetivos de Goals.
type BootstrapConfig struct {
	MerchantCount   int     `yaml:"merchant_count"`
	UserCount       int     `yaml:"user_count"`
	LiquidatorCount int     `yaml:"liquidator_count"`
	InitialTVL      float64 `yaml:"initial_tvl"`
	USDCPerUser     float64 `yaml:"usdc_per_user"`
	BufferUSDC      float64 `yaml:"buffer_usdc"`
	DepositFraction float64 `yaml:"deposit_fraction"`
	TransferDelayMs int     `yaml:"transfer_delay_ms"`
}

// ScenariosConfig acota los importes aleatorios de cada escenario.
type ScenariosConfig struct {
	MinDeposit          float64 `yaml:"min_deposit"`
	MaxDeposit          float64 `yaml:"max_deposit"`
	MinWithdrawFraction float64 `yaml:"min_withdraw_fraction"`
	MaxWithdrawFraction float64 `yaml:"max_withdraw_fraction"`
	MinBill             float64 `yaml:"min_bill"`
	MaxBill             float64 `yaml:"max_bill"`
	MaxActiveBills      int     `yaml:"max_active_bills"`
}

// AccountsConfig define la convención de nombres de las identidades.
type AccountsConfig struct {
	AdminName        string `yaml:"admin_name"`
	MerchantPrefix   string `yaml:"merchant_prefix"`
	UserPrefix       string `yaml:"user_prefix"`
	LiquidatorPrefix string `yaml:"liquidator_prefix"`
}

// ChainConfig apunta al gateway RPC y a los contratos desplegados.
type ChainConfig struct {
	GatewayURL   string  `yaml:"gateway_url"`
	Network      string  `yaml:"network"`
	USDCContract string  `yaml:"usdc_contract"`
	LPContract   string  `yaml:"lp_contract"`
	BNPLContract string  `yaml:"bnpl_contract"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
}

// MerchantAPIConfig contiene el base URL de la API de merchants.
type MerchantAPIConfig struct {
	BaseURL string `yaml:"base_url"`
}

// IdentityConfig configura el CLI de identidades.
type IdentityConfig struct {
	Binary  string `yaml:"binary"`
	Network string `yaml:"network"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta SQLite, ":memory:" o postgres://...
}

// APIConfig controla el servidor HTTP de control y métricas.
type APIConfig struct {
	Listen string `yaml:"listen"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodifica YAML, aplica overrides de entorno y defaults, y valida.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza combinaciones que dejarían el scheduler en un estado imposible.
func (c *Config) Validate() error {
	if c.Bot.MinIntervalSeconds > c.Bot.MaxIntervalSeconds {
		return fmt.Errorf("bot.min_interval_seconds (%d) > bot.max_interval_seconds (%d)",
			c.Bot.MinIntervalSeconds, c.Bot.MaxIntervalSeconds)
	}
	ah := c.Bot.ActiveHours
	if ah.Start < 0 || ah.Start > 23 || ah.End < 0 || ah.End > 23 {
		return fmt.Errorf("bot.active_hours: start/end must be in [0,23], got %d-%d", ah.Start, ah.End)
	}
	if c.Scenarios.MinDeposit > c.Scenarios.MaxDeposit {
		return fmt.Errorf("scenarios: min_deposit > max_deposit")
	}
	if c.Scenarios.MinBill > c.Scenarios.MaxBill {
		return fmt.Errorf("scenarios: min_bill > max_bill")
	}
	if c.Bootstrap.DepositFraction > 1 {
		return fmt.Errorf("bootstrap.deposit_fraction must be <= 1")
	}
	if c.Bootstrap.MerchantCount < c.Goals.Merchants {
		return fmt.Errorf("bootstrap.merchant_count (%d) < goals.merchants (%d)",
			c.Bootstrap.MerchantCount, c.Goals.Merchants)
	}
	if c.Bootstrap.UserCount < c.Goals.Users {
		return fmt.Errorf("bootstrap.user_count (%d) < goals.users (%d)",
			c.Bootstrap.UserCount, c.Goals.Users)
	}
	return nil
}

// MinInterval devuelve el intervalo mínimo entre ticks.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Bot.MinIntervalSeconds) * time.Second
}

// MaxInterval devuelve el intervalo máximo entre ticks.
func (c *Config) MaxInterval() time.Duration {
	return time.Duration(c.Bot.MaxIntervalSeconds) * time.Second
}

// Cooldown devuelve la pausa del circuit breaker.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Bot.CooldownMinutes) * time.Minute
}

// SaveInterval devuelve cada cuánto se persiste el snapshot.
func (c *Config) SaveInterval() time.Duration {
	return time.Duration(c.Bot.SaveIntervalSeconds) * time.Second
}

// RemotePollInterval devuelve cada cuánto se consulta el flag remoto.
func (c *Config) RemotePollInterval() time.Duration {
	return time.Duration(c.Bot.RemotePollSeconds) * time.Second
}

// TransferDelay devuelve la pausa entre transferencias del bootstrap.
func (c *Config) TransferDelay() time.Duration {
	return time.Duration(c.Bootstrap.TransferDelayMs) * time.Millisecond
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("CHAIN_GATEWAY_URL"); v != "" {
		cfg.Chain.GatewayURL = v
	}
	if v := os.Getenv("MERCHANT_API_URL"); v != "" {
		cfg.MerchantAPI.BaseURL = v
	}
	if v := os.Getenv("API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("BOT_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Bot.DryRun = b
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.MinIntervalSeconds <= 0 {
		cfg.Bot.MinIntervalSeconds = 120
	}
	if cfg.Bot.MaxIntervalSeconds <= 0 {
		cfg.Bot.MaxIntervalSeconds = 600
	}
	if cfg.Bot.MaxFailures <= 0 {
		cfg.Bot.MaxFailures = 5
	}
	if cfg.Bot.CooldownMinutes <= 0 {
		cfg.Bot.CooldownMinutes = 5
	}
	if cfg.Bot.SaveIntervalSeconds <= 0 {
		cfg.Bot.SaveIntervalSeconds = 60
	}
	if cfg.Bot.RemotePollSeconds <= 0 {
		cfg.Bot.RemotePollSeconds = 30
	}

	if cfg.Goals.TVL <= 0 {
		cfg.Goals.TVL = 100_000
	}
	if cfg.Goals.Merchants <= 0 {
		cfg.Goals.Merchants = 10
	}
	if cfg.Goals.Users <= 0 {
		cfg.Goals.Users = 50
	}
	if cfg.Goals.DailyTx <= 0 {
		cfg.Goals.DailyTx = 100
	}

	if cfg.Bootstrap.MerchantCount <= 0 {
		cfg.Bootstrap.MerchantCount = cfg.Goals.Merchants
	}
	if cfg.Bootstrap.UserCount <= 0 {
		cfg.Bootstrap.UserCount = cfg.Goals.Users
	}
	if cfg.Bootstrap.LiquidatorCount <= 0 {
		cfg.Bootstrap.LiquidatorCount = 1
	}
	if cfg.Bootstrap.InitialTVL <= 0 {
		cfg.Bootstrap.InitialTVL = cfg.Goals.TVL
	}
	if cfg.Bootstrap.USDCPerUser <= 0 {
		cfg.Bootstrap.USDCPerUser = 1_000
	}
	if cfg.Bootstrap.BufferUSDC <= 0 {
		cfg.Bootstrap.BufferUSDC = 10_000
	}
	if cfg.Bootstrap.DepositFraction <= 0 {
		cfg.Bootstrap.DepositFraction = 0.8
	}
	if cfg.Bootstrap.TransferDelayMs <= 0 {
		cfg.Bootstrap.TransferDelayMs = 1_000
	}

	if cfg.Scenarios.MinDeposit <= 0 {
		cfg.Scenarios.MinDeposit = 10
	}
	if cfg.Scenarios.MaxDeposit <= 0 {
		cfg.Scenarios.MaxDeposit = 500
	}
	if cfg.Scenarios.MinWithdrawFraction <= 0 {
		cfg.Scenarios.MinWithdrawFraction = 0.1
	}
	if cfg.Scenarios.MaxWithdrawFraction <= 0 {
		cfg.Scenarios.MaxWithdrawFraction = 0.5
	}
	if cfg.Scenarios.MinBill <= 0 {
		cfg.Scenarios.MinBill = 5
	}
	if cfg.Scenarios.MaxBill <= 0 {
		cfg.Scenarios.MaxBill = 200
	}
	if cfg.Scenarios.MaxActiveBills <= 0 {
		cfg.Scenarios.MaxActiveBills = 3
	}

	if cfg.Accounts.AdminName == "" {
		cfg.Accounts.AdminName = "admin"
	}
	if cfg.Accounts.MerchantPrefix == "" {
		cfg.Accounts.MerchantPrefix = "merchant"
	}
	if cfg.Accounts.UserPrefix == "" {
		cfg.Accounts.UserPrefix = "user"
	}
	if cfg.Accounts.LiquidatorPrefix == "" {
		cfg.Accounts.LiquidatorPrefix = "liquidator"
	}

	if cfg.Chain.GatewayURL == "" {
		cfg.Chain.GatewayURL = "http://localhost:8787"
	}
	if cfg.Chain.Network == "" {
		cfg.Chain.Network = "testnet"
	}
	if cfg.Chain.RatePerSec <= 0 {
		cfg.Chain.RatePerSec = 5
	}
	if cfg.MerchantAPI.BaseURL == "" {
		cfg.MerchantAPI.BaseURL = "http://localhost:3000"
	}
	if cfg.Identity.Binary == "" {
		cfg.Identity.Binary = "stellar"
	}
	if cfg.Identity.Network == "" {
		cfg.Identity.Network = cfg.Chain.Network
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "bnplbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
