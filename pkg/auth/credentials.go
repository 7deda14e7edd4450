package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"redditcrawler/pkg/config"
)

// Site names used as keys in every credential store
const (
	SiteReddit = "reddit"
	SiteMongo  = "mongo"
)

// Account holds the secrets of one site as flat key/value pairs, the same
// shape the credentials file uses under each site key.
type Account struct {
	Site         string            `json:"site"`
	Fields       map[string]string `json:"fields"`
	LastModified time.Time         `json:"last_modified"`
}

// Get returns the value of a field, or "" when it is not set
func (a *Account) Get(key string) string {
	if a == nil || a.Fields == nil {
		return ""
	}
	return a.Fields[key]
}

// Set assigns a field value
func (a *Account) Set(key, value string) {
	if a.Fields == nil {
		a.Fields = make(map[string]string)
	}
	a.Fields[key] = value
}

// Keys returns the field names in sorted order
func (a *Account) Keys() []string {
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RequiredFields lists the fields every site needs before it can be used
var RequiredFields = map[string][]string{
	SiteReddit: {"client_id", "client_secret", "user_agent"},
	SiteMongo:  {"host", "db_name"},
}

// SecretFields are masked whenever an account is displayed
var SecretFields = map[string]bool{
	"client_secret": true,
	"password":      true,
}

// Validate checks that the required fields of the account's site are set
func (a *Account) Validate() error {
	if a == nil || a.Site == "" {
		return ErrInvalidCredentials
	}
	var missing []string
	for _, key := range RequiredFields[a.Site] {
		if strings.TrimSpace(a.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s is missing %s", ErrInvalidCredentials, a.Site, strings.Join(missing, ", "))
	}
	return nil
}

// RedditCredentials are the OAuth app credentials of the live client
type RedditCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Reddit returns the typed view of a reddit account
func (a *Account) Reddit() RedditCredentials {
	return RedditCredentials{
		ClientID:     a.Get("client_id"),
		ClientSecret: a.Get("client_secret"),
		Username:     a.Get("username"),
		Password:     a.Get("password"),
		UserAgent:    a.Get("user_agent"),
	}
}

// MongoCredentials describe a document store connection. Host selects one
// of the named addresses (local_network, localhost, public).
type MongoCredentials struct {
	User     string
	Password string
	Host     string
	Hosts    map[string]string
	DBName   string
}

// MongoHostSelectors are the host names a mongo account may select
var MongoHostSelectors = []string{"local_network", "localhost", "public"}

// Mongo returns the typed view of a mongo account
func (a *Account) Mongo() MongoCredentials {
	hosts := make(map[string]string, len(MongoHostSelectors))
	for _, sel := range MongoHostSelectors {
		if v := a.Get(sel); v != "" {
			hosts[sel] = v
		}
	}
	return MongoCredentials{
		User:     a.Get("user"),
		Password: a.Get("password"),
		Host:     a.Get("host"),
		Hosts:    hosts,
		DBName:   a.Get("db_name"),
	}
}

// Address resolves the selected host. A host that is not one of the
// selectors is used as a literal address.
func (m MongoCredentials) Address() (string, error) {
	if m.Host == "" {
		return "", fmt.Errorf("%w: mongo host is not set", ErrInvalidCredentials)
	}
	for _, sel := range MongoHostSelectors {
		if m.Host == sel {
			addr, ok := m.Hosts[sel]
			if !ok || addr == "" {
				return "", fmt.Errorf("%w: mongo host %q has no address", ErrInvalidCredentials, sel)
			}
			return addr, nil
		}
	}
	return m.Host, nil
}

// URI builds the mongodb connection string
func (m MongoCredentials) URI() (string, error) {
	addr, err := m.Address()
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   addr,
		Path:   "/" + m.DBName,
	}
	if m.User != "" {
		u.User = url.UserPassword(m.User, m.Password)
	}
	return u.String(), nil
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a site
	Store(account *Account) error

	// Retrieve gets credentials for a specific site
	Retrieve(site string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific site
	Delete(site string) error

	// Exists checks if credentials exist for a site
	Exists(site string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager for the configured backend.
// "auto" consults the credentials file first, then the keyring, the
// encrypted file and finally the environment.
func NewManager(cfg config.CredentialsConfig) (*Manager, error) {
	var stores []CredentialStore

	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	if cfg.File != "" && (backend == "auto" || backend == "file") {
		stores = append(stores, NewJSONFileStore(cfg.File))
	}

	if backend == "auto" || backend == "keyring" {
		keyringStore, err := NewKeyringStore()
		if err == nil {
			stores = append(stores, keyringStore)
		} else if backend == "keyring" {
			return nil, err
		}
	}

	if backend == "auto" || backend == "encrypted" {
		path, err := EncryptedStorePath()
		if err != nil {
			return nil, err
		}
		encryptedStore, err := NewEncryptedFileStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted store: %w", err)
		}
		stores = append(stores, encryptedStore)
	}

	if backend == "auto" || backend == "env" {
		stores = append(stores, NewEnvironmentStore())
	}

	if len(stores) == 0 {
		return nil, fmt.Errorf("%w: backend %q", ErrStoreUnavailable, backend)
	}
	return &Manager{stores: stores}, nil
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(site string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(site); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for site: %s", ErrCredentialsNotFound, site)
}

// Reddit retrieves and validates the reddit credentials
func (m *Manager) Reddit() (RedditCredentials, error) {
	account, err := m.Retrieve(SiteReddit)
	if err != nil {
		return RedditCredentials{}, err
	}
	if err := account.Validate(); err != nil {
		return RedditCredentials{}, err
	}
	return account.Reddit(), nil
}

// MongoURI retrieves the mongo credentials and builds the connection string
func (m *Manager) MongoURI() (string, string, error) {
	account, err := m.Retrieve(SiteMongo)
	if err != nil {
		return "", "", err
	}
	if err := account.Validate(); err != nil {
		return "", "", err
	}
	creds := account.Mongo()
	uri, err := creds.URI()
	if err != nil {
		return "", "", err
	}
	return uri, creds.DBName, nil
}

// List returns all stored accounts from all stores, newest per site
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Site]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Site] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Site < result[j].Site })

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(site string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(site); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for site: %s", ErrCredentialsNotFound, site)
	}

	return nil
}

// EncryptedStorePath is where the sealed copy of the credentials lives
func EncryptedStorePath() (string, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "credentials.enc"), nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "redditcrawler")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "redditcrawler")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "redditcrawler")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "redditcrawler")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount creates a copy of the account with secret fields masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	fields := make(map[string]string, len(account.Fields))
	for k, v := range account.Fields {
		if SecretFields[k] {
			v = maskString(v)
		}
		fields[k] = v
	}
	return &Account{
		Site:         account.Site,
		Fields:       fields,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
	ErrReadOnly            = errors.New("credential store is read-only")
)
