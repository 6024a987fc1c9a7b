package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrIncompleteProvider  = errors.New("provider alias, endpoint and key are required")
	ErrInvalidEndpoint     = errors.New("provider endpoint must be an absolute URL")
	ErrUnknownProviderKind = errors.New("unknown provider kind")
	ErrProviderNotFound    = errors.New("provider not found")
)

// ProviderKind selects how the endpoint is addressed.
type ProviderKind int

const (
	KindAzure ProviderKind = iota
	KindGeneric
)

func (k ProviderKind) String() string {
	switch k {
	case KindAzure:
		return "Azure"
	case KindGeneric:
		return "Generic"
	default:
		return fmt.Sprintf("ProviderKind(%d)", int(k))
	}
}

// Provider is one entry of the providers file, keyed by its alias (Name).
type Provider struct {
	Name     string       `json:"name"`
	Kind     ProviderKind `json:"type"`
	Endpoint string       `json:"endpoint"`
	Key      string       `json:"key"`
}

// Validate reports whether p can be used to build a client.
func (p Provider) Validate() error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Endpoint) == "" || strings.TrimSpace(p.Key) == "" {
		return ErrIncompleteProvider
	}
	if p.Kind != KindAzure && p.Kind != KindGeneric {
		return fmt.Errorf("%w: %d", ErrUnknownProviderKind, int(p.Kind))
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, p.Endpoint)
	}
	return nil
}

// ProviderStore reads and writes the alias -> provider JSON document. The file
// is always read and written whole.
type ProviderStore struct {
	mu   sync.Mutex
	path string
}

func NewProviderStore(path string) *ProviderStore {
	return &ProviderStore{path: path}
}

func (s *ProviderStore) Path() string { return s.path }

// Load returns every stored provider. A missing file is created empty.
func (s *ProviderStore) Load() (map[string]Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *ProviderStore) load() (map[string]Provider, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		empty := map[string]Provider{}
		return empty, s.save(empty)
	}
	if err != nil {
		return nil, fmt.Errorf("read providers: %w", err)
	}
	providers := map[string]Provider{}
	if strings.TrimSpace(string(data)) == "" {
		return providers, nil
	}
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parse providers %s: %w", s.path, err)
	}
	return providers, nil
}

// Save replaces the file contents with providers.
func (s *ProviderStore) Save(providers map[string]Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(providers)
}

func (s *ProviderStore) save(providers map[string]Provider) error {
	if providers == nil {
		providers = map[string]Provider{}
	}
	data, err := json.Marshal(providers)
	if err != nil {
		return fmt.Errorf("encode providers: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create providers dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write providers: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace providers: %w", err)
	}
	return nil
}

// Put validates p and stores it under its alias, replacing any entry with the
// same alias.
func (s *ProviderStore) Put(p Provider) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	p.Key = strings.TrimSpace(p.Key)
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	providers, err := s.load()
	if err != nil {
		return err
	}
	providers[p.Name] = p
	return s.save(providers)
}

func (s *ProviderStore) Get(alias string) (Provider, error) {
	providers, err := s.Load()
	if err != nil {
		return Provider{}, err
	}
	p, ok := providers[alias]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, alias)
	}
	return p, nil
}

func (s *ProviderStore) Delete(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	providers, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := providers[alias]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, alias)
	}
	delete(providers, alias)
	return s.save(providers)
}

// Aliases returns the stored aliases in sorted order.
func (s *ProviderStore) Aliases() ([]string, error) {
	providers, err := s.Load()
	if err != nil {
		return nil, err
	}
	aliases := make([]string, 0, len(providers))
	for alias := range providers {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases, nil
}

// Default returns the provider used when none was chosen: the first alias.
func (s *ProviderStore) Default() (Provider, error) {
	aliases, err := s.Aliases()
	if err != nil {
		return Provider{}, err
	}
	if len(aliases) == 0 {
		return Provider{}, ErrProviderNotFound
	}
	return s.Get(aliases[0])
}
