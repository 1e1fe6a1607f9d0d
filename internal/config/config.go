package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

const badgerDb = "badger"

type Config struct {
	Datadir  string `mapstructure:"DATADIR" envDefault:"swapd" envInfo:"Data directory for swapd state"`
	DbType   string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	HTTPPort uint32 `mapstructure:"HTTP_PORT" envDefault:"7300" envInfo:"HTTP server port"`
	LogLevel uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`

	Network    string `mapstructure:"NETWORK" envDefault:"mainnet" envInfo:"Bitcoin network: mainnet | testnet | regtest"`
	EsploraURL string `mapstructure:"ESPLORA_URL" envDefault:"https://blockstream.info/api" envInfo:"Esplora base URL"`
	Mnemonic   string `mapstructure:"MNEMONIC" envDefault:"" envInfo:"BIP39 mnemonic for the bitcoin signing key"`

	EvmRpcURL       string `mapstructure:"EVM_RPC_URL" envDefault:"" envInfo:"EVM node RPC endpoint"`
	EvmHtlcContract string `mapstructure:"EVM_HTLC_CONTRACT" envDefault:"" envInfo:"Address of the HTLC escrow contract"`
	EvmPrivateKey   string `mapstructure:"EVM_PRIVATE_KEY" envDefault:"" envInfo:"Hex private key funding the EVM leg"`

	QuoteURL    string `mapstructure:"QUOTE_URL" envDefault:"https://api.1inch.dev/swap/v6.0" envInfo:"Quote API base URL"`
	QuoteApiKey string `mapstructure:"QUOTE_API_KEY" envDefault:"" envInfo:"Quote API bearer token"`
	QuoteTTL    uint32 `mapstructure:"QUOTE_TTL" envDefault:"60" envInfo:"Quote validity in seconds"`

	PollInterval     uint32 `mapstructure:"POLL_INTERVAL" envDefault:"30" envInfo:"Chain polling interval in seconds"`
	MinConfirmations uint32 `mapstructure:"MIN_CONFIRMATIONS" envDefault:"1" envInfo:"Confirmations required on bitcoin funding"`
	ResponderWindow  uint32 `mapstructure:"RESPONDER_WINDOW" envDefault:"86400" envInfo:"Responder funding window in seconds"`
	SafetyMargin     uint32 `mapstructure:"SAFETY_MARGIN" envDefault:"86400" envInfo:"Gap between responder and initiator timelocks in seconds"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SWAPD")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDatadir(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.EvmRpcURL == "" {
		return fmt.Errorf("missing EVM_RPC_URL")
	}
	if c.EvmHtlcContract == "" {
		return fmt.Errorf("missing EVM_HTLC_CONTRACT")
	}
	if c.EvmPrivateKey == "" {
		return fmt.Errorf("missing EVM_PRIVATE_KEY")
	}
	if c.Mnemonic == "" {
		return fmt.Errorf("missing MNEMONIC")
	}
	if _, err := c.NetworkParams(); err != nil {
		return err
	}
	return nil
}

// NetworkParams maps the configured network name onto chain parameters.
func (c *Config) NetworkParams() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q, allowed: mainnet, testnet, regtest", c.Network)
	}
}

func (c *Config) QuoteTTLDuration() time.Duration {
	return time.Duration(c.QuoteTTL) * time.Second
}

func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *Config) ResponderWindowDuration() time.Duration {
	return time.Duration(c.ResponderWindow) * time.Second
}

func (c *Config) SafetyMarginDuration() time.Duration {
	return time.Duration(c.SafetyMargin) * time.Second
}

func (c *Config) initDatadir() error {
	if c.DbType != badgerDb {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == "swapd" {
		c.Datadir = appDatadir("swapd", false)
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	goos := runtime.GOOS
	switch goos {
	case "windows":
		// Windows XP and before didn't have a LOCALAPPDATA, so fallback
		// to regular APPDATA when LOCALAPPDATA is not set.
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}

		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}
