// Package manifest loads the declarative set of pools this process tracks
// from a YAML file, in the load-from-path shape
// infrastructure/config.LoadServicesConfig uses for services.yaml. A missing
// or unreadable file is returned as an error; there is no default manifest.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solpulse/ingest/internal/model"
)

// PoolTarget is one tracked pool's subscription target: which program-id's
// socket carries it, which DEX layout decodes it, and whether it is
// watched via a logs, account, or program subscription.
type PoolTarget struct {
	ProgramID   string `yaml:"program_id"`
	PoolAddress string `yaml:"pool_address"`
	DexKind     string `yaml:"dex_kind"`
	Kind        string `yaml:"kind"`
}

// Manifest is the top-level document: the set of pools to subscribe to at
// startup.
type Manifest struct {
	Pools []PoolTarget `yaml:"pools"`
}

// LoadFromPath reads and parses a pool manifest from path.
func LoadFromPath(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	for i, p := range m.Pools {
		if p.ProgramID == "" || p.PoolAddress == "" {
			return nil, fmt.Errorf("manifest: entry %d missing program_id or pool_address", i)
		}
	}
	return &m, nil
}

// ResolveDexKind maps the manifest's string dex_kind onto the closed
// model.DexKind set, defaulting to unknown rather than failing load.
func ResolveDexKind(raw string) model.DexKind {
	switch model.DexKind(raw) {
	case model.DexConstantProduct, model.DexConcentratedLiquid:
		return model.DexKind(raw)
	default:
		return model.DexUnknown
	}
}

// ResolveSubscriptionKind maps the manifest's string kind onto the closed
// model.SubscriptionKind set, defaulting to logs when unset or unrecognized
// since logs-subscriptions are this pipeline's most common target.
func ResolveSubscriptionKind(raw string) model.SubscriptionKind {
	switch model.SubscriptionKind(raw) {
	case model.SubscriptionLogs, model.SubscriptionAccount, model.SubscriptionProgram:
		return model.SubscriptionKind(raw)
	default:
		return model.SubscriptionLogs
	}
}
