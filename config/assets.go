package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cryptoLedger/internal/domain"
)

// assetMapFile is the on-disk layout of ASSET_MAP_FILE:
//
//	pairs:
//	  BTC: BTCUSDT
//	  ETH: ETHUSDC
type assetMapFile struct {
	Pairs map[string]string `yaml:"pairs"`
}

// LoadAssetMap reads an asset -> exchange pair mapping from a YAML file.
func LoadAssetMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset map: %w", err)
	}

	var f assetMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse asset map: %w", err)
	}

	out := make(map[string]string, len(f.Pairs))
	for asset, pair := range f.Pairs {
		a := domain.NormalizeSymbol(asset)
		p := strings.ToUpper(strings.TrimSpace(pair))
		if a == "" || p == "" {
			return nil, fmt.Errorf("asset map entry %q: %q is incomplete", asset, pair)
		}
		out[a] = p
	}
	return out, nil
}
