package languages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedTable(t *testing.T) {
	registry, err := Load(nil)
	require.NoError(t, err)
	require.NotEmpty(t, registry.Names())

	cpp, ok := registry.Get("cpp")
	require.True(t, ok)
	require.NotEmpty(t, cpp.CompileCommand)
}

func TestGetIsCaseInsensitiveAndAliased(t *testing.T) {
	registry, err := Load(nil)
	require.NoError(t, err)

	byUpper, ok := registry.Get("CPP")
	require.True(t, ok)

	byAlias, ok := registry.Get("c++")
	require.True(t, ok)
	require.Equal(t, byUpper.Name, byAlias.Name)
}

func TestEffectiveTimeAndMemoryWithoutLimit(t *testing.T) {
	d := &Descriptor{}
	require.Equal(t, uint32(1000), d.EffectiveTimeMs(1000))
	require.Equal(t, uint32(256), d.EffectiveMemoryMB(256))
}

func TestEffectiveTimeAndMemoryWithLimit(t *testing.T) {
	d := &Descriptor{
		TimeLimit:   &Limit{Multiplier: 2, Bonus: 1},
		MemoryLimit: &Limit{Multiplier: 1, Bonus: 64},
	}
	require.Equal(t, uint32(3000), d.EffectiveTimeMs(1000))
	require.Equal(t, uint32(320), d.EffectiveMemoryMB(256))
}

func TestLoadRejectsMissingRunCommand(t *testing.T) {
	_, err := Load([]byte("[broken]\nsource_file = \"a.txt\"\n"))
	require.Error(t, err)
}
