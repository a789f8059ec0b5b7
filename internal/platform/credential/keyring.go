package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "ops-notifier"

// BackendTokenKey is the keyring entry holding the REST API bearer token.
const BackendTokenKey = "backend-token"

// SessionTokenKey holds the operator JWT used by the terminal dashboard.
const SessionTokenKey = "session-token"

// Opener opens the keyring; replaced in tests.
type Opener func() (keyring.Keyring, error)

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/ops-notifier/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("ops-notifier-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store reads and writes credentials in the system keyring.
type Store struct {
	Open Opener
}

func NewStore() *Store {
	return &Store{Open: openKeyring}
}

func (s *Store) Get(key string) (string, error) {
	ring, err := s.Open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

func (s *Store) Set(key, value string) error {
	ring, err := s.Open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// ResolveToken prefers an explicitly configured token and falls back to the
// keyring. A missing keyring entry is not an error: the backend may be open.
func (s *Store) ResolveToken(configured string) (string, error) {
	if tok := strings.TrimSpace(configured); tok != "" {
		return tok, nil
	}
	tok, err := s.Get(BackendTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return tok, nil
}
