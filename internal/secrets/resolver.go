package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
)

// Store is the managed secret store consumed by the resolver. Implementations
// must return an error for unknown names, never an empty value.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ErrUnresolved is returned when no source yields a non-empty value and no
// default was provided.
type ErrUnresolved struct {
	SecretName string
	EnvName    string
}

func (e *ErrUnresolved) Error() string {
	return fmt.Sprintf("secret %q unresolved (store miss, env %q unset, no default)", e.SecretName, e.EnvName)
}

// Resolver resolves credentials through a fixed chain: managed store first,
// then a process environment variable, then an optional static default.
// Declarative configuration files are never consulted.
type Resolver struct {
	store Store
	log   *logger.Logger
}

func NewResolver(store Store, log *logger.Logger) *Resolver {
	return &Resolver{store: store, log: log.With("service", "SecretResolver")}
}

// Resolve walks the chain for one logical secret. A store miss is expected in
// local environments and logged at debug; falling back to the environment is
// logged at info so operators notice a deployment running without the store.
func (r *Resolver) Resolve(ctx context.Context, secretName, envFallbackName, def string) (string, error) {
	if r.store != nil && strings.TrimSpace(secretName) != "" {
		val, err := r.store.GetSecret(ctx, secretName)
		if err == nil && strings.TrimSpace(val) != "" {
			return val, nil
		}
		if err != nil {
			r.log.Debug("managed secret store miss", "secret_name", secretName, "error", err)
		}
	}

	if strings.TrimSpace(envFallbackName) != "" {
		if val := strings.TrimSpace(os.Getenv(envFallbackName)); val != "" {
			r.log.Info("secret resolved from environment fallback",
				"secret_name", secretName,
				"env_var", envFallbackName,
			)
			return val, nil
		}
	}

	if def != "" {
		return def, nil
	}
	return "", &ErrUnresolved{SecretName: secretName, EnvName: envFallbackName}
}
