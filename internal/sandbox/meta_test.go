package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMetaBasicFields(t *testing.T) {
	m := ParseMeta("time:0.042\ntime-wall:0.051\ncg-mem:4096\nstatus:\nexitcode:0\n")
	require.Equal(t, uint32(42), m.TimeMs)
	require.Equal(t, uint32(51), m.WallTimeMs)
	require.Equal(t, uint32(4096), m.MemoryKB)
	require.Equal(t, 0, m.ExitCode)
	require.False(t, m.HasExitSig)
}

func TestParseMetaExitSignal(t *testing.T) {
	m := ParseMeta("status:SG\nexitsig:11\n")
	require.Equal(t, "SG", m.StatusStr)
	require.True(t, m.HasExitSig)
	require.Equal(t, 11, m.ExitSig)
}

func TestParseMetaIgnoresMalformedLines(t *testing.T) {
	m := ParseMeta("not-a-kv-line\ntime:0.1\n")
	require.Equal(t, uint32(100), m.TimeMs)
}

func TestDeriveStatusExitSignalWins(t *testing.T) {
	m := Meta{HasExitSig: true, StatusStr: "TO"}
	require.Equal(t, StatusSignaled, DeriveStatus(m, 0))
}

func TestDeriveStatusCleanExit(t *testing.T) {
	m := Meta{StatusStr: "", ExitCode: 0}
	require.Equal(t, StatusExited, DeriveStatus(m, 0))
}

func TestDeriveStatusTimeLimitExceeded(t *testing.T) {
	m := Meta{StatusStr: "TO"}
	require.Equal(t, StatusTimeLimitExceeded, DeriveStatus(m, 0))
}

func TestDeriveStatusMemoryUpgradeOverridesEverything(t *testing.T) {
	m := Meta{StatusStr: "TO", MemoryKB: 300000}
	require.Equal(t, StatusMemoryLimitExceeded, DeriveStatus(m, 262144))
}

func TestDeriveStatusMemoryWithinLimitDoesNotUpgrade(t *testing.T) {
	m := Meta{StatusStr: "", ExitCode: 0, MemoryKB: 1000}
	require.Equal(t, StatusExited, DeriveStatus(m, 262144))
}
