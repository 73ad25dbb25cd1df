package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Setting keys stored in the config file.
const (
	KeyAPIURL  = "api_url"
	KeyUserID  = "user_id"
	KeyToken   = "token"
	KeyDataDir = "data_dir"
)

// Keys lists every setting accepted by config get and config set.
var Keys = []string{KeyAPIURL, KeyUserID, KeyToken, KeyDataDir}

// EnvPrefix prefixes environment overrides, e.g. FRESHER_API_URL.
const EnvPrefix = "FRESHER"

// Settings is the client configuration.
type Settings struct {
	APIURL  string `mapstructure:"api_url"`
	UserID  string `mapstructure:"user_id"`
	Token   string `mapstructure:"token"`
	DataDir string `mapstructure:"data_dir"`
}

// Config wraps the viper instance backing one config file.
type Config struct {
	v    *viper.Viper
	path string
}

// DefaultConfigPath returns ~/.fresher/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".fresher", "config.yaml"), nil
}

// LoadConfig reads the config file at path, writing one with defaults
// first when it does not exist. Environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefaultConfig(path, filepath.Join(dir, "data")); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyAPIURL, "http://localhost:8080")
	v.SetDefault(KeyUserID, "")
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyDataDir, filepath.Join(dir, "data"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &Config{v: v, path: path}, nil
}

func writeDefaultConfig(path, dataDir string) error {
	content := fmt.Sprintf(`# fresher client configuration
api_url: http://localhost:8080
user_id: ""
token: ""
data_dir: %q
`, dataDir)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// Path returns the config file location.
func (c *Config) Path() string {
	return c.path
}

// Settings decodes the current values.
func (c *Config) Settings() (Settings, error) {
	var s Settings
	if err := c.v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return s, nil
}

// Get returns one setting.
func (c *Config) Get(key string) (string, error) {
	if !slices.Contains(Keys, key) {
		return "", fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	return c.v.GetString(key), nil
}

// Set updates one setting and writes the file.
func (c *Config) Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	c.v.Set(key, value)
	if err := c.v.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
