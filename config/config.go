package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Store    StoreConfig
	Advisory AdvisoryConfig
	Filter   FilterConfig
	Sources  SourceConfig
	Notify   NotifyConfig
	Output   OutputConfig
	Logging  LogConfig
	API      APIConfig

	MaxConcurrency int `envconfig:"MAX_CONCURRENCY" default:"3"`
	RateLimitMs    int `envconfig:"RATE_LIMIT_MS" default:"1000"`
	MaxRetries     int `envconfig:"MAX_RETRIES" default:"3"`
}

// StoreConfig selects the offer store backend. The default is a local
// SQLite file; "postgres" uses the Postgres* fields.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	Path   string `envconfig:"STORE_PATH" default:"./data/car_business.db"`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"scraper"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"scraper123"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"car_business"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// AdvisoryConfig configures the scoring oracle.
type AdvisoryConfig struct {
	URL         string        `envconfig:"ADVISORY_URL" default:"https://api.deepseek.com/v1/chat/completions"`
	APIKey      string        `envconfig:"ADVISORY_API_KEY"`
	Model       string        `envconfig:"ADVISORY_MODEL" default:"deepseek-chat"`
	Timeout     time.Duration `envconfig:"ADVISORY_TIMEOUT" default:"60s"`
	Retries     int           `envconfig:"ADVISORY_RETRIES" default:"1"` // total attempts per offer
	Temperature float64       `envconfig:"ADVISORY_TEMPERATURE" default:"0.1"`
	MaxTokens   int           `envconfig:"ADVISORY_MAX_TOKENS" default:"1000"`
	UsdToPln    float64       `envconfig:"USD_TO_PLN" default:"4.0"`
}

// FilterConfig holds the admission and hot-offer thresholds.
type FilterConfig struct {
	HotThreshold       float64  `envconfig:"HOT_MARGIN_THRESHOLD" default:"0.25"`
	QualifiedMinMargin float64  `envconfig:"QUALIFIED_MIN_MARGIN" default:"0.25"`
	MaxBid             float64  `envconfig:"FILTER_MAX_BID" default:"60000"`
	MinYear            int      `envconfig:"FILTER_MIN_YEAR" default:"2010"`
	ExcludedDamage     []string `envconfig:"FILTER_EXCLUDED_DAMAGE" default:"FLOOD,BURN,BIOHAZARD"`
	ExcludedTitles     []string `envconfig:"FILTER_EXCLUDED_TITLES" default:"PARTS ONLY,CERTIFICATE OF DESTRUCTION,JUNK"`
}

// SourceConfig configures the primary scraped source and the auxiliary feeds.
type SourceConfig struct {
	CopartSearchURL string        `envconfig:"COPART_SEARCH_URL" default:"https://www.copart.com/lotSearchResults/"`
	ModelFilter     string        `envconfig:"MODEL_FILTER"`
	ChromeBin       string        `envconfig:"CHROME_BIN"`
	PageTimeout     time.Duration `envconfig:"PAGE_TIMEOUT" default:"60s"`
	FeedURLs        []string      `envconfig:"AUX_FEED_URLS"`
	SourceTimeout   time.Duration `envconfig:"SOURCE_TIMEOUT" default:"90s"`
	DamageURL       string        `envconfig:"DAMAGE_DETECTOR_URL"`
}

// NotifyConfig configures the hot-offer webhook.
type NotifyConfig struct {
	WebhookURL string `envconfig:"NOTIFY_WEBHOOK_URL"`
	QueueSize  int    `envconfig:"NOTIFY_QUEUE_SIZE" default:"64"`
}

// OutputConfig holds the paths of the run artifacts.
type OutputConfig struct {
	CSVPath    string `envconfig:"CSV_OUTPUT_PATH" default:"./output/raw_listings.csv"`
	ReportPath string `envconfig:"REPORT_PATH" default:"./output/copart_ai_analysis.json"`
	XLSXPath   string `envconfig:"XLSX_PATH" default:"./output/best_offers.xlsx"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"true"`
}

// APIConfig configures serve mode.
type APIConfig struct {
	Addr         string        `envconfig:"API_ADDR" default:":8080"`
	RunInterval  time.Duration `envconfig:"RUN_INTERVAL" default:"4h"`
	AllowOrigins []string      `envconfig:"API_ALLOW_ORIGINS" default:"*"`
}

// Load reads the .env file and returns a populated Config struct.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// DSN returns the connection string for the configured store driver.
func (c *StoreConfig) DSN() string {
	if c.Driver == "postgres" {
		return "host=" + c.PostgresHost +
			" port=" + c.PostgresPort +
			" user=" + c.PostgresUser +
			" password=" + c.PostgresPassword +
			" dbname=" + c.PostgresDB +
			" sslmode=" + c.PostgresSSLMode
	}
	return c.Path
}
