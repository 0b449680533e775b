package copilot

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML form of client options.
type fileConfig struct {
	CLIPath            string            `toml:"cliPath"`
	CLIArgs            []string          `toml:"cliArgs"`
	CLIURL             string            `toml:"cliUrl"`
	Port               *int              `toml:"port"`
	Dir                string            `toml:"dir"`
	Env                map[string]string `toml:"env"`
	LogLevel           string            `toml:"logLevel"`
	AutoStart          *bool             `toml:"autoStart"`
	RequestTimeoutMS   int               `toml:"requestTimeoutMs"`
	HandshakeTimeoutMS int               `toml:"handshakeTimeoutMs"`
	GracePeriodMS      int               `toml:"gracePeriodMs"`
	EventBuffer        int               `toml:"eventBuffer"`
	MaxMessageSize     int               `toml:"maxMessageSize"`
}

// OptionsFromFile reads client options from a TOML file. The returned slice
// can be combined with further ClientOptions, later options winning:
//
//	opts, err := copilot.OptionsFromFile("copilot.toml")
//	client, err := copilot.NewClient(append(opts, copilot.WithLogLevel("debug"))...)
func OptionsFromFile(path string) ([]ClientOption, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("copilot: load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("copilot: load config %s: unknown key %q", path, undecoded[0].String())
	}

	var opts []ClientOption
	if cfg.CLIPath != "" {
		opts = append(opts, WithCLIPath(cfg.CLIPath))
	}
	if len(cfg.CLIArgs) > 0 {
		opts = append(opts, WithCLIArgs(cfg.CLIArgs...))
	}
	if cfg.CLIURL != "" {
		opts = append(opts, WithCLIURL(cfg.CLIURL))
	}
	if cfg.Port != nil {
		opts = append(opts, WithPort(*cfg.Port))
	}
	if cfg.Dir != "" {
		opts = append(opts, WithDir(cfg.Dir))
	}
	if len(cfg.Env) > 0 {
		opts = append(opts, WithEnv(cfg.Env))
	}
	if cfg.LogLevel != "" {
		opts = append(opts, WithLogLevel(cfg.LogLevel))
	}
	if cfg.AutoStart != nil {
		opts = append(opts, WithAutoStart(*cfg.AutoStart))
	}
	if cfg.RequestTimeoutMS > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(cfg.RequestTimeoutMS)*time.Millisecond))
	}
	if cfg.HandshakeTimeoutMS > 0 {
		opts = append(opts, WithHandshakeTimeout(time.Duration(cfg.HandshakeTimeoutMS)*time.Millisecond))
	}
	if cfg.GracePeriodMS > 0 {
		opts = append(opts, WithGracePeriod(time.Duration(cfg.GracePeriodMS)*time.Millisecond))
	}
	if cfg.EventBuffer > 0 {
		opts = append(opts, WithEventBuffer(cfg.EventBuffer))
	}
	if cfg.MaxMessageSize > 0 {
		opts = append(opts, WithMaxMessageSize(cfg.MaxMessageSize))
	}
	return opts, nil
}
