package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/streed/snapnotes/internal/constants"
)

const (
	appName   = "snapnotes"
	envPrefix = "SNAPNOTES"
)

// Text embedding providers
const (
	TextProviderOpenAI = "openai"
	TextProviderHash   = "hash"
)

// Image embedding providers
const (
	ImageProviderClip      = "clip"
	ImageProviderThumbnail = "thumbnail"
)

type Config struct {
	DataDirectory string `json:"data_directory" mapstructure:"data_directory"`
	DatabasePath  string `json:"database_path,omitempty" mapstructure:"database_path"`
	Debug         bool   `json:"debug" mapstructure:"debug"`

	// Text modality
	TextEmbeddingProvider string `json:"text_embedding_provider" mapstructure:"text_embedding_provider"`
	TextEmbeddingEndpoint string `json:"text_embedding_endpoint" mapstructure:"text_embedding_endpoint"`
	TextEmbeddingModel    string `json:"text_embedding_model" mapstructure:"text_embedding_model"`
	TextEmbeddingAPIKey   string `json:"text_embedding_api_key,omitempty" mapstructure:"text_embedding_api_key"`
	TextVectorDimensions  int    `json:"text_vector_dimensions" mapstructure:"text_vector_dimensions"`

	// Image modality
	ImageEmbeddingProvider string `json:"image_embedding_provider" mapstructure:"image_embedding_provider"`
	ImageEmbeddingEndpoint string `json:"image_embedding_endpoint" mapstructure:"image_embedding_endpoint"`
	ImageEmbeddingModel    string `json:"image_embedding_model" mapstructure:"image_embedding_model"`
	ImageEmbeddingAPIKey   string `json:"image_embedding_api_key,omitempty" mapstructure:"image_embedding_api_key"`
	ImageVectorDimensions  int    `json:"image_vector_dimensions" mapstructure:"image_vector_dimensions"`

	// Search and inference
	SearchTopK             int     `json:"search_top_k" mapstructure:"search_top_k"`
	SearchResultLimit      int     `json:"search_result_limit" mapstructure:"search_result_limit"`
	InferenceRatePerSecond float64 `json:"inference_rate_per_second" mapstructure:"inference_rate_per_second"`

	VectorConfigVersion string `json:"vector_config_version,omitempty" mapstructure:"vector_config_version"`
}

// getDefaultConfig returns a fresh copy of the default configuration
func getDefaultConfig() Config {
	return Config{
		DataDirectory: "", // Will be set to ~/.local/share/snapnotes
		DatabasePath:  "", // Will be set to DataDirectory/notes.db
		Debug:         false,

		TextEmbeddingProvider: TextProviderOpenAI,
		TextEmbeddingEndpoint: "http://localhost:11434/v1", // Ollama's OpenAI-compatible API
		TextEmbeddingModel:    "nomic-embed-text",
		TextVectorDimensions:  constants.DefaultTextDimensions,

		ImageEmbeddingProvider: ImageProviderThumbnail,
		ImageEmbeddingEndpoint: "http://localhost:7997",
		ImageEmbeddingModel:    "openai/clip-vit-base-patch32",
		ImageVectorDimensions:  constants.DefaultImageDimensions,

		SearchTopK:             constants.DefaultSearchTopK,
		SearchResultLimit:      constants.DefaultResultLimit,
		InferenceRatePerSecond: 0, // Unlimited
	}
}

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, appName, "config.json"), nil
}

func GetDefaultDataDirectory() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "."+appName)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, appName)
}

// newViper registers every key with its default so that SNAPNOTES_* environment
// variables are honoured by Unmarshal even when the file omits the key.
func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	defaults := getDefaultConfig()
	v.SetDefault("data_directory", defaults.DataDirectory)
	v.SetDefault("database_path", defaults.DatabasePath)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("text_embedding_provider", defaults.TextEmbeddingProvider)
	v.SetDefault("text_embedding_endpoint", defaults.TextEmbeddingEndpoint)
	v.SetDefault("text_embedding_model", defaults.TextEmbeddingModel)
	v.SetDefault("text_embedding_api_key", defaults.TextEmbeddingAPIKey)
	v.SetDefault("text_vector_dimensions", defaults.TextVectorDimensions)
	v.SetDefault("image_embedding_provider", defaults.ImageEmbeddingProvider)
	v.SetDefault("image_embedding_endpoint", defaults.ImageEmbeddingEndpoint)
	v.SetDefault("image_embedding_model", defaults.ImageEmbeddingModel)
	v.SetDefault("image_embedding_api_key", defaults.ImageEmbeddingAPIKey)
	v.SetDefault("image_vector_dimensions", defaults.ImageVectorDimensions)
	v.SetDefault("search_top_k", defaults.SearchTopK)
	v.SetDefault("search_result_limit", defaults.SearchResultLimit)
	v.SetDefault("inference_rate_per_second", defaults.InferenceRatePerSecond)
	v.SetDefault("vector_config_version", defaults.VectorConfigVersion)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads the config at configPath. A missing file yields the defaults.
func LoadFrom(configPath string) (*Config, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := getDefaultConfig()

	if c.DataDirectory == "" {
		c.DataDirectory = GetDefaultDataDirectory()
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDirectory, "notes.db")
	}
	if c.TextEmbeddingProvider == "" {
		c.TextEmbeddingProvider = defaults.TextEmbeddingProvider
	}
	if c.ImageEmbeddingProvider == "" {
		c.ImageEmbeddingProvider = defaults.ImageEmbeddingProvider
	}
	if c.SearchTopK <= 0 {
		c.SearchTopK = defaults.SearchTopK
	}
	if c.SearchResultLimit <= 0 {
		c.SearchResultLimit = defaults.SearchResultLimit
	}
}

func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, configPath)
}

func SaveTo(cfg *Config, configPath string) error {
	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(configPath), constants.DataDirMode); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if cfg.DataDirectory != "" {
		if err := os.MkdirAll(cfg.DataDirectory, constants.DataDirMode); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write config file with secure permissions
	if err := os.WriteFile(configPath, data, constants.ConfigFileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func InitializeConfig(dataDir, textEndpoint, imageProvider string) (*Config, error) {
	cfg := getDefaultConfig()

	if dataDir != "" {
		cfg.DataDirectory = dataDir
	} else {
		cfg.DataDirectory = GetDefaultDataDirectory()
	}
	cfg.DatabasePath = filepath.Join(cfg.DataDirectory, "notes.db")

	if textEndpoint != "" {
		cfg.TextEmbeddingEndpoint = textEndpoint
	}
	if imageProvider != "" {
		cfg.ImageEmbeddingProvider = imageProvider
	}
	cfg.VectorConfigVersion = cfg.GetVectorConfigHash()

	if err := Save(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) GetDatabasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataDirectory, "notes.db")
}

// GetNotesDirectory is the root of the per-note managed file directories.
func (c *Config) GetNotesDirectory() string {
	return filepath.Join(c.DataDirectory, "notes")
}

func (c *Config) GetVectorConfigHash() string {
	// Both indices must be rebuilt when either embedding space changes
	return fmt.Sprintf("%s:%s:%d|%s:%s:%d",
		c.TextEmbeddingProvider, c.TextEmbeddingModel, c.TextVectorDimensions,
		c.ImageEmbeddingProvider, c.ImageEmbeddingModel, c.ImageVectorDimensions)
}

func (c *Config) NeedsReindex(oldHash string) bool {
	return c.GetVectorConfigHash() != oldHash
}

// SupportsCrossModal reports whether the image index lives in a joint
// text/image space so text queries can be run against it.
func (c *Config) SupportsCrossModal() bool {
	return c.ImageEmbeddingProvider == ImageProviderClip
}
