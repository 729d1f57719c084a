// Package secrets resolves provider credentials without the pipeline ever
// persisting plaintext itself.
package secrets

import (
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// Store is the credential contract consumed by the sync adapters.
type Store interface {
	// Get returns the secret for key and whether it was present.
	Get(key string) (string, bool)

	// Set stores a secret for the lifetime of the store.
	Set(key, value string)
}

// EnvStore resolves secrets from the process environment, optionally
// seeded from a .env file. Set only affects the in-memory overlay; nothing
// is written back to disk.
type EnvStore struct {
	mu      sync.RWMutex
	overlay map[string]string
	prefix  string
}

// Option configures an EnvStore.
type Option func(*EnvStore)

// WithPrefix namespaces environment lookups ("CONTACTS" turns key
// "crm.token" into env var CONTACTS_CRM_TOKEN).
func WithPrefix(prefix string) Option {
	return func(s *EnvStore) {
		s.prefix = prefix
	}
}

// NewEnvStore creates an EnvStore. When envFile is non-empty it is loaded
// into the process environment first; a missing file is an error so a
// misconfigured deployment fails loudly.
func NewEnvStore(envFile string, opts ...Option) (*EnvStore, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, eris.Wrapf(err, "secrets: load %s", envFile)
		}
	}
	s := &EnvStore{overlay: map[string]string{}}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Get returns the secret for key, preferring the in-memory overlay over
// the environment.
func (s *EnvStore) Get(key string) (string, bool) {
	s.mu.RLock()
	v, ok := s.overlay[key]
	s.mu.RUnlock()
	if ok {
		return v, true
	}

	v, ok = os.LookupEnv(s.envKey(key))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set stores a secret in the in-memory overlay.
func (s *EnvStore) Set(key, value string) {
	s.mu.Lock()
	s.overlay[key] = value
	s.mu.Unlock()
}

func (s *EnvStore) envKey(key string) string {
	k := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if s.prefix != "" {
		return s.prefix + "_" + k
	}
	return k
}
