package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Token describes an asset the node registers on first boot.
type Token struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// GasFee configures the claim-fee quote applied to newly created gifts.
type GasFee struct {
	Token    string `toml:"Token"`
	PerSplit string `toml:"PerSplit"`
}

type Config struct {
	RPCAddress        string   `toml:"RPCAddress"`
	MetricsAddress    string   `toml:"MetricsAddress"`
	DataDir           string   `toml:"DataDir"`
	NetworkName       string   `toml:"NetworkName"`
	BootstrapAdmins   []string `toml:"BootstrapAdmins"`
	BootstrapManagers []string `toml:"BootstrapManagers"`
	Tokens            []Token  `toml:"Tokens,omitempty"`
	GasFee            GasFee   `toml:"GasFee"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "giftvault-local"
	}
	if cfg.BootstrapAdmins == nil {
		cfg.BootstrapAdmins = []string{}
	}
	if cfg.BootstrapManagers == nil {
		cfg.BootstrapManagers = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:        ":8080",
		MetricsAddress:    ":9090",
		DataDir:           "./giftvault-data",
		NetworkName:       "giftvault-local",
		BootstrapAdmins:   []string{},
		BootstrapManagers: []string{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	for i, tok := range c.Tokens {
		if strings.TrimSpace(tok.Symbol) == "" {
			return fmt.Errorf("config: Tokens[%d] missing Symbol", i)
		}
	}
	if c.GasFee.PerSplit != "" && strings.TrimSpace(c.GasFee.Token) == "" {
		return fmt.Errorf("config: GasFee.PerSplit set without GasFee.Token")
	}
	return nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
