package tangguh

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is an opaque session credential. ExpiresAt may be zero; bearer tokens
// that are JWTs have their expiry read from the exp claim instead.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Credentials identify a principal to the Authenticator.
type Credentials struct {
	ID     string
	Secret string
}

// Authenticator exchanges credentials or an existing token for a fresh one.
// It is the external collaborator that talks to the auth endpoint; the token
// manager owns all session state around it.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Token, error)
	Refresh(ctx context.Context, current Token) (Token, error)
}

// CredentialStore persists the session token across process restarts. Any
// key-value persistence mechanism satisfies it.
type CredentialStore interface {
	Load() (Token, bool, error)
	Save(Token) error
	Clear() error
}

// MemoryCredentialStore keeps the token in process memory. Useful for tests
// and for deployments that re-login on start.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	token Token
	set   bool
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Load() (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.set, nil
}

func (s *MemoryCredentialStore) Save(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
	s.set = true
	return nil
}

func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = Token{}
	s.set = false
	return nil
}

// FileCredentialStore persists the token as a JSON file with owner-only
// permissions.
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentialStore creates a store writing to path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (s *FileCredentialStore) Load() (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, false, err
	}
	if tok.Value == "" {
		return Token{}, false, nil
	}
	return tok, true, nil
}

func (s *FileCredentialStore) Save(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	// Write-then-rename so readers never observe a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RedisCredentialStore persists the token in Redis, sharing the session
// between processes.
type RedisCredentialStore struct {
	client *redis.Client
	key    string
}

// NewRedisCredentialStore creates a store writing to the given key.
func NewRedisCredentialStore(client *redis.Client, key string) *RedisCredentialStore {
	if key == "" {
		key = "tangguh:session"
	}
	return &RedisCredentialStore{client: client, key: key}
}

func (s *RedisCredentialStore) Load() (Token, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, false, err
	}
	return tok, tok.Value != "", nil
}

func (s *RedisCredentialStore) Save(tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var ttl time.Duration
	if !tok.ExpiresAt.IsZero() {
		ttl = time.Until(tok.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

func (s *RedisCredentialStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.key).Err()
}
