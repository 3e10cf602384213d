package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultScanInterval    = 30 * time.Second
	defaultPollInterval    = 10 * time.Second
	defaultSnapshotTimeout = 10 * time.Second
	defaultWebAddr         = ":8080"
)

// Policy defaults. Confirmed canonical values for the close factor and
// liquidation bonus; both are configurable, never derived.
var (
	defaultCloseFactor      = decimal.NewFromFloat(0.5)
	defaultLiquidationBonus = decimal.NewFromFloat(0.05)
)

// Config carries the full monitor configuration.
type Config struct {
	Platform         string
	Symbols          []string
	StreamURL        string
	ScanInterval     time.Duration
	PollInterval     time.Duration
	SnapshotTimeout  time.Duration
	CloseFactor      decimal.Decimal
	LiquidationBonus decimal.Decimal
	WebAddr          string
	TLSDomains       []string
	WALDir           string
}

type configTmp struct {
	Platform         string        `yaml:"platform"`
	Symbols          []string      `yaml:"symbols"`
	StreamURL        string        `yaml:"stream_url,omitempty"`
	ScanInterval     time.Duration `yaml:"scan_interval,omitempty"`
	PollInterval     time.Duration `yaml:"poll_interval,omitempty"`
	SnapshotTimeout  time.Duration `yaml:"snapshot_timeout,omitempty"`
	CloseFactor      string        `yaml:"close_factor,omitempty"`
	LiquidationBonus string        `yaml:"liquidation_bonus,omitempty"`
	WebAddr          string        `yaml:"web_addr,omitempty"`
	TLSDomains       []string      `yaml:"tls_domains,omitempty"`
	WALDir           string        `yaml:"wal_dir,omitempty"`
}

// Get reads configuration from a yaml file when -config is provided,
// falling back to CLI flags otherwise.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", "binance", "poll fallback venue: binance, bybit or hyperliquid")
	symbols := flag.String("symbols", "ETH_BTC_USDC", "watch list, symbols separated by underscore")
	streamURL := flag.String("streamurl", "", "websocket url of the streaming price channel (poll-only when empty)")
	scanInterval := flag.Duration("scaninterval", defaultScanInterval, "scan cycle interval")
	pollInterval := flag.Duration("pollinterval", defaultPollInterval, "price poll fallback interval")
	webAddr := flag.String("webaddr", defaultWebAddr, "address for the web dashboard")
	walDir := flag.String("waldir", "", "directory for the execution audit journal (disabled when empty)")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	conf := Config{
		Platform:         *platform,
		Symbols:          strings.Split(*symbols, "_"),
		StreamURL:        *streamURL,
		ScanInterval:     *scanInterval,
		PollInterval:     *pollInterval,
		SnapshotTimeout:  defaultSnapshotTimeout,
		CloseFactor:      defaultCloseFactor,
		LiquidationBonus: defaultLiquidationBonus,
		WebAddr:          *webAddr,
		WALDir:           *walDir,
	}
	return conf, validate(conf)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}
	return fromTmp(tmp)
}

func fromTmp(tmp configTmp) (Config, error) {
	conf := Config{
		Platform:         tmp.Platform,
		Symbols:          tmp.Symbols,
		StreamURL:        tmp.StreamURL,
		ScanInterval:     tmp.ScanInterval,
		PollInterval:     tmp.PollInterval,
		SnapshotTimeout:  tmp.SnapshotTimeout,
		CloseFactor:      defaultCloseFactor,
		LiquidationBonus: defaultLiquidationBonus,
		WebAddr:          tmp.WebAddr,
		TLSDomains:       tmp.TLSDomains,
		WALDir:           tmp.WALDir,
	}

	if conf.Platform == "" {
		conf.Platform = "binance"
	}
	if conf.ScanInterval == 0 {
		conf.ScanInterval = defaultScanInterval
	}
	if conf.PollInterval == 0 {
		conf.PollInterval = defaultPollInterval
	}
	if conf.SnapshotTimeout == 0 {
		conf.SnapshotTimeout = defaultSnapshotTimeout
	}
	if conf.WebAddr == "" {
		conf.WebAddr = defaultWebAddr
	}

	if tmp.CloseFactor != "" {
		cf, err := decimal.NewFromString(tmp.CloseFactor)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'close_factor' param in yaml config: %w", err)
		}
		conf.CloseFactor = cf
	}
	if tmp.LiquidationBonus != "" {
		lb, err := decimal.NewFromString(tmp.LiquidationBonus)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'liquidation_bonus' param in yaml config: %w", err)
		}
		conf.LiquidationBonus = lb
	}

	return conf, validate(conf)
}

func validate(conf Config) error {
	switch conf.Platform {
	case "binance", "bybit", "hyperliquid":
	default:
		return fmt.Errorf("unsupported platform: %s", conf.Platform)
	}
	if len(conf.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, s := range conf.Symbols {
		if s == "" {
			return fmt.Errorf("empty symbol in watch list")
		}
	}
	if !conf.CloseFactor.IsPositive() || conf.CloseFactor.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("close_factor must be in (0,1], got %s", conf.CloseFactor.String())
	}
	if conf.LiquidationBonus.IsNegative() {
		return fmt.Errorf("liquidation_bonus must not be negative, got %s", conf.LiquidationBonus.String())
	}
	return nil
}
