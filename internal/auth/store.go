package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	// SecretPrefix marks plaintext API key secrets.
	SecretPrefix = "sk-"

	secretAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	secretLength   = 32
	lookupLength   = 8
)

var ErrKeyNotFound = errors.New("api key not found")

// Key is a stored API key. The secret itself is never persisted.
type Key struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Lookup    string `yaml:"lookup" json:"-"` // first characters of the secret, narrows bcrypt checks
	Hash      string `yaml:"hash" json:"-"`   // bcrypt hashed
	CreatedAt int64  `yaml:"created_at" json:"created_at"`
}

type keyFile struct {
	Keys []Key `yaml:"keys"`
}

// KeyStore handles the persistence and in-memory management of API keys.
type KeyStore struct {
	filePath string
	mu       sync.RWMutex
	keys     []Key

	// Cost is the bcrypt cost used for new keys.
	Cost int
}

// NewKeyStore creates a key store backed by a YAML file.
func NewKeyStore(filePath string) *KeyStore {
	return &KeyStore{
		filePath: filePath,
		keys:     make([]Key, 0),
		Cost:     bcrypt.DefaultCost,
	}
}

// Load reads keys from disk. A missing file is an empty store.
func (s *KeyStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var kf keyFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("parse key file %s: %w", s.filePath, err)
	}
	if kf.Keys != nil {
		s.keys = kf.Keys
	}
	return nil
}

// saveLocked writes keys to disk. Caller must hold the write lock.
func (s *KeyStore) saveLocked() error {
	data, err := yaml.Marshal(keyFile{Keys: s.keys})
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}

// Generate creates a new key and returns it with its plaintext secret.
// The secret cannot be recovered later.
func (s *KeyStore) Generate(name string) (Key, string, error) {
	raw, err := gonanoid.Generate(secretAlphabet, secretLength)
	if err != nil {
		return Key{}, "", fmt.Errorf("generate secret: %w", err)
	}
	secret := SecretPrefix + raw

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.Cost)
	if err != nil {
		return Key{}, "", err
	}

	key := Key{
		ID:        uuid.NewString(),
		Name:      name,
		Lookup:    raw[:lookupLength],
		Hash:      string(hash),
		CreatedAt: time.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	if err := s.saveLocked(); err != nil {
		s.keys = s.keys[:len(s.keys)-1]
		return Key{}, "", err
	}
	return key, secret, nil
}

// Verify returns the key matching a plaintext secret.
func (s *KeyStore) Verify(secret string) (Key, bool) {
	raw, ok := strings.CutPrefix(secret, SecretPrefix)
	if !ok || len(raw) < lookupLength {
		return Key{}, false
	}
	lookup := raw[:lookupLength]

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.keys {
		if k.Lookup != lookup {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(secret)) == nil {
			return k, true
		}
	}
	return Key{}, false
}

// Revoke removes a key by ID.
func (s *KeyStore) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, k := range s.keys {
		if k.ID == id {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return s.saveLocked()
		}
	}
	return ErrKeyNotFound
}

// List returns a copy of all stored keys.
func (s *KeyStore) List() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// Empty reports whether the store holds no keys.
func (s *KeyStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 0
}
