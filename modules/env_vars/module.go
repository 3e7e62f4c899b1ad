package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/specialistvlad/cellgrid/internal/registry"
)

// RootName is the name cells use to read the environment.
const RootName = "env"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Environ returns the process environment as a map.
func Environ(ctx context.Context) (any, error) {
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}
	return envMap, nil
}

// Register registers the env root with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRoot(RootName, Environ)
}
