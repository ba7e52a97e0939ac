package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/cadsync/internal/config"
	"github.com/chazu/cadsync/pkg/jcad"
)

func TestNopHasBuiltins(t *testing.T) {
	e := Nop()
	require.NotNil(t, e.Factory)
	require.NotNil(t, e.Props)
	require.NotNil(t, e.Geometry)

	_, ok := e.Factory.Schema(jcad.ShapeBox)
	assert.True(t, ok)
	_, ok = e.Props.Lookup("App::PropertyLength")
	assert.True(t, ok)
	assert.Equal(t, config.Default(), e.Config)
}

func TestEnvsAreIndependent(t *testing.T) {
	a, b := Nop(), Nop()
	assert.NotSame(t, a.Factory, b.Factory)
	assert.NotSame(t, a.Props, b.Props)
}

func TestNewKeepsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.LogLevel = "error"
	e := New(cfg)
	assert.Equal(t, cfg.WorkDir, e.Config.WorkDir)
}
