package config

import (
	"fmt"
	"strconv"

	"github.com/streed/snapnotes/internal/constants"
	interrors "github.com/streed/snapnotes/internal/errors"
)

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"data-dir",
	"debug",
	"text-provider",
	"text-endpoint",
	"text-model",
	"text-api-key",
	"text-dimensions",
	"image-provider",
	"image-endpoint",
	"image-model",
	"image-api-key",
	"image-dimensions",
	"search-top-k",
	"result-limit",
	"inference-rate",
}

// Set assigns value to key. It reports whether the change invalidates the
// stored vectors so the caller can suggest a reindex.
func (c *Config) Set(key, value string) (bool, error) {
	oldHash := c.GetVectorConfigHash()

	switch key {
	case "data-dir":
		c.DataDirectory = value
		c.DatabasePath = "" // Will be regenerated
	case "debug":
		b, err := ParseBool(value)
		if err != nil {
			return false, err
		}
		c.Debug = b
	case "text-provider":
		if value != TextProviderOpenAI && value != TextProviderHash {
			return false, fmt.Errorf("%w: text-provider %q", interrors.ErrUnknownConfigKey, value)
		}
		c.TextEmbeddingProvider = value
	case "text-endpoint":
		c.TextEmbeddingEndpoint = value
	case "text-model":
		c.TextEmbeddingModel = value
	case "text-api-key":
		c.TextEmbeddingAPIKey = value
	case "text-dimensions":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.TextVectorDimensions = n
	case "image-provider":
		if value != ImageProviderClip && value != ImageProviderThumbnail {
			return false, fmt.Errorf("%w: image-provider %q", interrors.ErrUnknownConfigKey, value)
		}
		c.ImageEmbeddingProvider = value
	case "image-endpoint":
		c.ImageEmbeddingEndpoint = value
	case "image-model":
		c.ImageEmbeddingModel = value
	case "image-api-key":
		c.ImageEmbeddingAPIKey = value
	case "image-dimensions":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.ImageVectorDimensions = n
	case "search-top-k":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.SearchTopK = n
	case "result-limit":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.SearchResultLimit = n
	case "inference-rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return false, fmt.Errorf("%w: %s", interrors.ErrInvalidNumber, value)
		}
		c.InferenceRatePerSecond = f
	default:
		return false, fmt.Errorf("%w: %s", interrors.ErrUnknownConfigKey, key)
	}

	return oldHash != c.GetVectorConfigHash(), nil
}

// Get returns the display value of key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "data-dir":
		return c.DataDirectory, nil
	case "debug":
		return strconv.FormatBool(c.Debug), nil
	case "text-provider":
		return c.TextEmbeddingProvider, nil
	case "text-endpoint":
		return c.TextEmbeddingEndpoint, nil
	case "text-model":
		return c.TextEmbeddingModel, nil
	case "text-api-key":
		return mask(c.TextEmbeddingAPIKey), nil
	case "text-dimensions":
		return strconv.Itoa(c.TextVectorDimensions), nil
	case "image-provider":
		return c.ImageEmbeddingProvider, nil
	case "image-endpoint":
		return c.ImageEmbeddingEndpoint, nil
	case "image-model":
		return c.ImageEmbeddingModel, nil
	case "image-api-key":
		return mask(c.ImageEmbeddingAPIKey), nil
	case "image-dimensions":
		return strconv.Itoa(c.ImageVectorDimensions), nil
	case "search-top-k":
		return strconv.Itoa(c.SearchTopK), nil
	case "result-limit":
		return strconv.Itoa(c.SearchResultLimit), nil
	case "inference-rate":
		return strconv.FormatFloat(c.InferenceRatePerSecond, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("%w: %s", interrors.ErrUnknownConfigKey, key)
}

// ParseBool accepts true/false, yes/no and 1/0.
func ParseBool(value string) (bool, error) {
	switch value {
	case constants.BoolTrue, constants.BoolOne, constants.BoolYes:
		return true, nil
	case constants.BoolFalse, constants.BoolZero, constants.BoolNo:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", interrors.ErrInvalidBoolean, value)
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", interrors.ErrInvalidNumber, value)
	}
	return n, nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
