package modforge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractServiceBindingsFromManifestProvides(t *testing.T) {
	path := writeModule(t, t.TempDir(), "shop", manifestJSON("shop"))
	module := &ModuleDescriptor{
		Name:     "shop",
		Path:     path,
		Provides: []string{"shop.cart", "shop.orders"},
	}

	bindings, err := ExtractServiceBindings(module)
	require.NoError(t, err)
	assert.Equal(t, []ServiceBinding{
		{Abstract: "shop.cart"},
		{Abstract: "shop.orders"},
	}, bindings)
}

func TestExtractServiceBindingsDeclarationOverridesProvides(t *testing.T) {
	path := writeModule(t, t.TempDir(), "shop", manifestJSON("shop"))
	declaration := `[
		{"abstract": "shop.cart", "concrete": "Shop\\Infrastructure\\CartService", "singleton": true},
		{"abstract": "shop.pricing", "concrete": "Shop\\Infrastructure\\PricingService"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(path, "infrastructure", "bindings.json"), []byte(declaration), 0o644))

	module := &ModuleDescriptor{
		Name:     "shop",
		Path:     path,
		Provides: []string{"shop.cart"},
	}

	bindings, err := ExtractServiceBindings(module)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, `Shop\Infrastructure\CartService`, bindings[0].Concrete)
	assert.True(t, bindings[0].Singleton)
	assert.Equal(t, "shop.pricing", bindings[1].Abstract)
}

func TestExtractServiceBindingsInvalidDeclaration(t *testing.T) {
	path := writeModule(t, t.TempDir(), "shop", manifestJSON("shop"))
	require.NoError(t, os.WriteFile(filepath.Join(path, "infrastructure", "bindings.json"), []byte("nope"), 0o644))

	_, err := ExtractServiceBindings(&ModuleDescriptor{Name: "shop", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shop")
}

func TestExtractRouteManifest(t *testing.T) {
	path := writeModule(t, t.TempDir(), "shop", manifestJSON("shop"))
	routesDir := filepath.Join(path, "presentation", "routes")
	require.NoError(t, os.MkdirAll(routesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(routesDir, "api.json"), []byte(`[
		{"method": "GET", "path": "/cart", "handler": "cart.show"},
		{"method": "POST", "path": "/cart/items", "handler": "cart.add", "middleware": ["auth"]}
	]`), 0o644))

	consoleDir := filepath.Join(path, "presentation", "console")
	require.NoError(t, os.MkdirAll(consoleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(consoleDir, "commands.json"), []byte(`[
		{"name": "shop:reprice", "handler": "pricing.reprice"}
	]`), 0o644))

	manifest, err := ExtractRouteManifest(&ModuleDescriptor{Name: "shop", Path: path})
	require.NoError(t, err)
	require.Len(t, manifest.API, 2)
	assert.Equal(t, "cart.add", manifest.API[1].Handler)
	assert.Equal(t, []string{"auth"}, manifest.API[1].Middleware)
	assert.Empty(t, manifest.Web)
	require.Len(t, manifest.Commands, 1)
	assert.Equal(t, "shop:reprice", manifest.Commands[0].Name)
	assert.False(t, manifest.Empty())
}

func TestExtractRouteManifestEmptyModule(t *testing.T) {
	path := writeModule(t, t.TempDir(), "plain", manifestJSON("plain"))

	manifest, err := ExtractRouteManifest(&ModuleDescriptor{Name: "plain", Path: path})
	require.NoError(t, err)
	assert.True(t, manifest.Empty())
}
