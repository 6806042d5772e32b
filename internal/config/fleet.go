package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// BotLogin is one entry of the `logins[]` config array: a game-coordinator
// account plus its optional 2FA shared secret.
type BotLogin struct {
	AccountName  string `json:"accountName"`
	Password     string `json:"password"`
	SharedSecret string `json:"sharedSecret,omitempty"`
}

// BotSettings is the `bot_settings.*` config block (spec §6.4), mapped
// 1:1 onto gc.Settings by the application wiring.
type BotSettings struct {
	RequestDelayMS          int `json:"request_delay"`
	RequestTTLMS            int `json:"request_ttl"`
	MaxConcurrentRequests   int `json:"max_concurrent_requests"`
	ConnectionTimeoutMS     int `json:"connection_timeout"`
	LoginRetryDelayMS       int `json:"login_retry_delay"`
	GCReconnectDelayMS      int `json:"gc_reconnect_delay"`
	ReloginIntervalMS       int `json:"relogin_interval"`
	ReloginJitterMS         int `json:"relogin_jitter"`
	MaxLoginAttempts        int `json:"max_login_attempts"`
	SteamUser               SteamUser `json:"steam_user"`
}

// SteamUser holds the `bot_settings.steam_user.*` block; DataDirectory is
// overridable by the -s/--steam_data CLI flag.
type SteamUser struct {
	DataDirectory string `json:"dataDirectory"`
}

// RateLimit is the `rate_limit.*` config block.
type RateLimit struct {
	Enable   bool `json:"enable"`
	WindowMS int  `json:"window_ms"`
	Max      int  `json:"max"`
}

// HTTPConfig is the `http.*` config block.
type HTTPConfig struct {
	Port int `json:"port"`
}

// Fleet is the domain configuration enumerated in spec §6.4, loaded from
// the JSON file named by the -c/--config CLI flag — the idiomatic Go
// rendering of the original's config.js module.
type Fleet struct {
	Logins                 []BotLogin  `json:"logins"`
	BotSettings             BotSettings `json:"bot_settings"`
	Proxies                 []string    `json:"proxies"`
	APIKey                  string      `json:"api_key"`
	PriceKey                string      `json:"price_key"`
	MaxSimultaneousRequests int         `json:"max_simultaneous_requests"`
	MaxQueueSize            int         `json:"max_queue_size"`
	AllowedOrigins          []string    `json:"allowed_origins"`
	AllowedRegexOrigins     []string    `json:"allowed_regex_origins"`
	TrustProxy              bool        `json:"trust_proxy"`
	RateLimit               RateLimit   `json:"rate_limit"`
	HTTP                    HTTPConfig  `json:"http"`
	LogLevel                string      `json:"logLevel"`
	GameFilesUpdateIntervalMS int       `json:"game_files_update_interval"`
	EnableGameFileUpdates   bool        `json:"enable_game_file_updates"`
}

// LoadFleet reads and validates the domain config file. steamDataOverride,
// if non-empty, overrides bot_settings.steam_user.dataDirectory (the
// -s/--steam_data flag).
func LoadFleet(path, steamDataOverride string) (Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	var cfg Fleet
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &cfg); err != nil {
		return Fleet{}, fmt.Errorf("parse config file %q: %w", path, err)
	}

	if steamDataOverride != "" {
		cfg.BotSettings.SteamUser.DataDirectory = steamDataOverride
	}

	if cfg.MaxSimultaneousRequests <= 0 {
		cfg.MaxSimultaneousRequests = 1
	}

	if err := cfg.validate(); err != nil {
		return Fleet{}, err
	}

	return cfg, nil
}

func (c Fleet) validate() error {
	if len(c.Logins) == 0 {
		return fmt.Errorf("config: no logins configured")
	}

	for i, p := range c.Proxies {
		if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "socks5://") {
			return fmt.Errorf("config: proxies[%d] must be prefixed http:// or socks5://", i)
		}
	}

	return nil
}

// ProxyFor round-robins the configured proxy list across login index i.
// Returns "" if no proxies are configured.
func (c Fleet) ProxyFor(i int) string {
	if len(c.Proxies) == 0 {
		return ""
	}

	return c.Proxies[i%len(c.Proxies)]
}

// RequestDelay, RequestTTL, etc. convert the JSON millisecond fields to
// time.Duration for gc.Settings.
func (b BotSettings) RequestDelay() time.Duration   { return ms(b.RequestDelayMS, 1000) }
func (b BotSettings) RequestTTL() time.Duration     { return ms(b.RequestTTLMS, 30000) }
func (b BotSettings) ConnectionTimeout() time.Duration { return ms(b.ConnectionTimeoutMS, 30000) }
func (b BotSettings) LoginRetryDelay() time.Duration   { return ms(b.LoginRetryDelayMS, 5000) }
func (b BotSettings) GCReconnectDelay() time.Duration  { return ms(b.GCReconnectDelayMS, 5000) }
func (b BotSettings) ReloginInterval() time.Duration   { return ms(b.ReloginIntervalMS, 30*60*1000) }
func (b BotSettings) ReloginJitter() time.Duration     { return ms(b.ReloginJitterMS, 4*60*1000) }

// GameFilesUpdateInterval converts game_files_update_interval to a
// time.Duration, defaulting to 15 minutes (the cache cleanup floor).
func (c Fleet) GameFilesUpdateInterval() time.Duration {
	return ms(c.GameFilesUpdateIntervalMS, 15*60*1000)
}

func ms(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}

	return time.Duration(v) * time.Millisecond
}
