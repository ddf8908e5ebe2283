package route

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadersRunInRegistrationOrder(t *testing.T) {
	orig := plugins
	plugins = nil
	t.Cleanup(func() { plugins = orig })

	var mounted []string
	record := func(name string) Loader {
		return func(*gin.Engine) error {
			mounted = append(mounted, name)
			return nil
		}
	}
	Register(Plugin{Order: 20, Loader: record("second")})
	Register(Plugin{Order: 10, Loader: record("first")})
	Register(Plugin{Order: 30, Loader: record("third")})

	loaders := Loaders()
	require.Len(t, loaders, 3)
	for _, l := range loaders {
		require.NoError(t, l(nil))
	}
	assert.Equal(t, []string{"first", "second", "third"}, mounted)
}
