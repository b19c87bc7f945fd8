package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "launchd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, "local", cfg.Env)
	require.Equal(t, 600, cfg.RateLimit.RequestsPerMinute)

	// The default file was written and loads back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, reloaded.ListenAddress)
}

func TestLoadParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "launchd.toml")
	raw := `
ListenAddress = ":9090"
Env = "prod"
LogLevel = "debug"
LogPath = "/var/log/launchd.log"

[Allocation]
MaxEntries = 8
Deployers = ["0x00000000000000000000000000000000000000aa"]

[[Allocation.DefaultSplit]]
Kind = "staking"
Percentage = 20
StreamDuration = 31536000

[[Allocation.DefaultSplit]]
Kind = "vault"
Recipient = "0x00000000000000000000000000000000000000bb"
Percentage = 10
Cliff = 604800
VestingDuration = 7776000

[Valve]
Manager = "0x00000000000000000000000000000000000000cc"
FloorUnits = "1000"

[RateLimit]
RequestsPerMinute = 120
Burst = 12
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, ":9090", cfg.MetricsAddress)
	require.Equal(t, 8, cfg.Allocation.MaxEntries)
	require.Len(t, cfg.Allocation.DefaultSplit, 2)
	require.Equal(t, uint32(20), cfg.Allocation.DefaultSplit[0].Percentage)

	manager, err := cfg.ValveManager()
	require.NoError(t, err)
	require.Equal(t, byte(0xCC), manager[19])

	floor, err := cfg.ValveFloorUnits()
	require.NoError(t, err)
	require.Equal(t, int64(1000), floor.Int64())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad deployer": `
[Allocation]
Deployers = ["not-an-address"]
`,
		"unknown split kind": `
[[Allocation.DefaultSplit]]
Kind = "lottery"
Percentage = 10
`,
		"split exceeds 100": `
[[Allocation.DefaultSplit]]
Kind = "staking"
Percentage = 60
[[Allocation.DefaultSplit]]
Kind = "staking"
Percentage = 50
`,
		"bad floor": `
[Valve]
FloorUnits = "12.5"
`,
		"duplicate vault recipient": `
[[Allocation.DefaultSplit]]
Kind = "vault"
Recipient = "0x00000000000000000000000000000000000000bb"
Percentage = 10
[[Allocation.DefaultSplit]]
Kind = "vault"
Recipient = "0x00000000000000000000000000000000000000bb"
Percentage = 20
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
