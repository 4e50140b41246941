package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/cos/gravyvalet/pkg/errors"
)

// EnvResolver resolves env://NAME references from the process environment,
// the zero-setup backend for local development.
type EnvResolver struct{}

func (EnvResolver) Resolve(_ context.Context, name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", errors.NewInvalidArguments(fmt.Sprintf("environment variable %q is not set", name), nil)
	}
	return v, nil
}
