package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/starford/glide/internal/models"
)

// Keys under which the token pair is stored.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenType    = "token_type"
	KeyExpiresAt    = "expires_at"
)

// AllKeys lists every key written by SavePair.
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenType, KeyExpiresAt}

// Credentials is a secure key/value store for tokens.
type Credentials interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// SavePair writes every field of pair to c.
func SavePair(c Credentials, pair models.TokenPair) error {
	values := map[string]string{
		KeyAccessToken:  pair.AccessToken,
		KeyRefreshToken: pair.RefreshToken,
		KeyTokenType:    pair.TokenType,
		KeyExpiresAt:    strconv.FormatInt(pair.ExpiresAt().Unix(), 10),
	}
	for _, k := range AllKeys {
		if err := c.Set(k, values[k]); err != nil {
			return fmt.Errorf("auth: save %s: %w", k, err)
		}
	}
	return nil
}

// LoadPair reads the stored token pair. ok is false when no refresh token
// is stored.
func LoadPair(c Credentials) (pair models.TokenPair, ok bool, err error) {
	rt, ok, err := c.Get(KeyRefreshToken)
	if err != nil || !ok || rt == "" {
		return models.TokenPair{}, false, err
	}
	pair.RefreshToken = rt
	pair.AccessToken, _, _ = c.Get(KeyAccessToken)
	pair.TokenType, _, _ = c.Get(KeyTokenType)
	if exp, found, _ := c.Get(KeyExpiresAt); found {
		if sec, perr := strconv.ParseInt(exp, 10, 64); perr == nil {
			now := time.Now()
			pair.IssuedAt = now
			if d := time.Unix(sec, 0).Sub(now); d > 0 {
				pair.ExpiresIn = int(d / time.Second)
			}
		}
	}
	return pair, true, nil
}

// CleanupResult reports the outcome of clearing stored credentials.
type CleanupResult struct {
	Cleared  []string
	Failed   []string
	Critical bool
}

// CleanupPolicy decides when a partial cleanup is treated as critical.
// A zero CriticalFailures means every key must fail.
type CleanupPolicy struct {
	Keys             []string
	CriticalFailures int
}

// ClearAll deletes every key in the policy and classifies the outcome.
func ClearAll(c Credentials, p CleanupPolicy) CleanupResult {
	keys := p.Keys
	if len(keys) == 0 {
		keys = AllKeys
	}
	threshold := p.CriticalFailures
	if threshold <= 0 || threshold > len(keys) {
		threshold = len(keys)
	}
	var res CleanupResult
	for _, k := range keys {
		if err := c.Delete(k); err != nil {
			res.Failed = append(res.Failed, k)
			continue
		}
		res.Cleared = append(res.Cleared, k)
	}
	res.Critical = len(res.Failed) >= threshold
	return res
}

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read credentials: %w", err)
	}
	m := map[string]string{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("auth: parse credentials: %w", err)
	}
	return m, nil
}

func (s *FileStore) save(m map[string]string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("auth: credentials dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("auth: write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("auth: write credentials: %w", err)
	}
	return nil
}

// Get implements Credentials.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set implements Credentials.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[key] = value
	return s.save(m)
}

// Delete implements Credentials. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.save(m)
}
