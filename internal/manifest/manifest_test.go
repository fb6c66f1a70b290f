package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solpulse/ingest/internal/model"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromPathParsesPools(t *testing.T) {
	path := writeManifest(t, `
pools:
  - program_id: prog-a
    pool_address: PoolXYZ
    dex_kind: constant_product_amm
    kind: logs
  - program_id: prog-b
    pool_address: PoolABC
    dex_kind: concentrated_liquidity_amm
    kind: account
`)
	m, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Len(t, m.Pools, 2)
	assert.Equal(t, "prog-a", m.Pools[0].ProgramID)
	assert.Equal(t, "PoolABC", m.Pools[1].PoolAddress)
}

func TestLoadFromPathRejectsMissingFields(t *testing.T) {
	path := writeManifest(t, `
pools:
  - program_id: prog-a
`)
	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/pools.yaml")
	assert.Error(t, err)
}

func TestResolveDexKindDefaultsUnknown(t *testing.T) {
	assert.Equal(t, model.DexConstantProduct, ResolveDexKind("constant_product_amm"))
	assert.Equal(t, model.DexUnknown, ResolveDexKind("garbage"))
}

func TestResolveSubscriptionKindDefaultsLogs(t *testing.T) {
	assert.Equal(t, model.SubscriptionAccount, ResolveSubscriptionKind("account"))
	assert.Equal(t, model.SubscriptionLogs, ResolveSubscriptionKind("garbage"))
	assert.Equal(t, model.SubscriptionLogs, ResolveSubscriptionKind(""))
}
