package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cryptopay-go/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type AssetsConfig struct {
	Assets []models.Asset `yaml:"assets"`
}

// LoadAssetConfig reads the tracked currencies from assetsFile. An empty path
// yields the built-in defaults.
func LoadAssetConfig(assetsFile string) ([]models.Asset, error) {
	if assetsFile == "" {
		zap.L().Debug("No assets file configured, using defaults")
		return models.DefaultAssets, nil
	}

	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	return ParseAssetConfig(data)
}

func ParseAssetConfig(data []byte) ([]models.Asset, error) {
	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse assets: %w", err)
	}

	seen := make(map[string]bool, len(config.Assets))
	for i, asset := range config.Assets {
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if asset.CoingeckoId == "" {
			return nil, fmt.Errorf("asset %s missing coingecko_id", asset.Symbol)
		}
		symbol := strings.ToUpper(asset.Symbol)
		if seen[symbol] {
			return nil, fmt.Errorf("asset %s listed twice", symbol)
		}
		seen[symbol] = true
		config.Assets[i].Symbol = symbol
	}

	if len(config.Assets) == 0 {
		return nil, fmt.Errorf("assets file lists no assets")
	}
	return config.Assets, nil
}
