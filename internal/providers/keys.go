package providers

import (
	"os"
	"strings"

	"github.com/LLM-Dev-Ops/evalbench/internal/cache"
)

// KeyResolver resolves opaque api_key_ref handles to secrets. The handle is
// mapped to an environment variable named <REF>_API_KEY with the ref
// uppercased and hyphens replaced by underscores. Resolved values pass
// through a bounded TTL cache; they are never logged and never persisted.
type KeyResolver struct {
	cache  *cache.Cache
	lookup func(string) string
}

// NewKeyResolver creates a resolver backed by the process environment.
func NewKeyResolver(c *cache.Cache) *KeyResolver {
	return &KeyResolver{cache: c, lookup: os.Getenv}
}

// EnvName returns the environment variable a ref resolves through.
func EnvName(ref string) string {
	upper := strings.ToUpper(strings.ReplaceAll(ref, "-", "_"))
	return upper + "_API_KEY"
}

// Resolve returns the secret for a ref, or "" when the ref is empty or the
// variable is unset. An unset key is not an error here; the provider will
// reject the call and the outcome records authentication_error.
func (r *KeyResolver) Resolve(ref string) string {
	if ref == "" {
		return ""
	}
	if r.cache != nil {
		if v, ok := r.cache.Get(ref); ok {
			return v
		}
	}
	v := r.lookup(EnvName(ref))
	if v != "" && r.cache != nil {
		r.cache.Set(ref, v)
	}
	return v
}
