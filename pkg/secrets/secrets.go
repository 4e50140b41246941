// Package secrets resolves an ExternalService's OAuth client secrets from
// a pluggable backend, so an operator need not place them in the
// ExternalService table in plaintext-adjacent form. A reference is a
// scheme-prefixed string (env://NAME, keyring://SERVICE/ACCOUNT,
// op://VAULT/ITEM/FIELD, awssm://SECRET_ID) resolved to its plaintext
// value at service-registration time.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/cos/gravyvalet/pkg/errors"
)

// Resolver resolves a single secret reference to its plaintext value.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Scheme names the backend a reference's prefix selects.
type Scheme string

const (
	SchemeEnv          Scheme = "env"
	SchemeKeyring      Scheme = "keyring"
	SchemeOnePassword  Scheme = "op"
	SchemeAWSSecretsManager Scheme = "awssm"
)

// Registry dispatches a reference to the Resolver registered for its
// scheme prefix.
type Registry struct {
	resolvers map[Scheme]Resolver
}

// NewRegistry builds a Registry with no resolvers registered; callers
// register only the backends they've configured, so an unconfigured
// backend's references fail loudly rather than resolving against
// whatever happens to be reachable.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[Scheme]Resolver)}
}

// Register binds scheme to resolver, overwriting any prior registration.
func (r *Registry) Register(scheme Scheme, resolver Resolver) {
	r.resolvers[scheme] = resolver
}

// Resolve parses ref's scheme prefix ("scheme://rest") and dispatches to
// the matching Resolver.
func (r *Registry) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, rest, ok := splitRef(ref)
	if !ok {
		return "", errors.NewInvalidArguments(fmt.Sprintf("secret reference %q has no scheme prefix", ref), nil)
	}
	resolver, ok := r.resolvers[scheme]
	if !ok {
		return "", errors.NewInvalidArguments(fmt.Sprintf("no secret backend registered for scheme %q", scheme), nil)
	}
	return resolver.Resolve(ctx, rest)
}

func splitRef(ref string) (scheme Scheme, rest string, ok bool) {
	parts := strings.SplitN(ref, "://", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return Scheme(parts[0]), parts[1], true
}
