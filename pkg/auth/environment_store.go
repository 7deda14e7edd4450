package auth

import (
	"os"
	"sort"
	"strings"
	"time"

	"redditcrawler/pkg/config"
)

// EnvironmentStore implements CredentialStore over environment variables
// named REDDITCRAWLER_<SITE>_<FIELD>, for example
// REDDITCRAWLER_REDDIT_CLIENT_ID or REDDITCRAWLER_MONGO_DB_NAME.
type EnvironmentStore struct {
	environ func() []string
}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{environ: os.Environ}
}

func sitePrefix(site string) string {
	return config.EnvPrefix + strings.ToUpper(site) + "_"
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve collects every variable of the site's prefix
func (e *EnvironmentStore) Retrieve(site string) (*Account, error) {
	if site == "" {
		return nil, ErrInvalidCredentials
	}
	prefix := sitePrefix(site)

	account := &Account{Site: site, LastModified: time.Now()}
	for _, kv := range e.environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, prefix) {
			continue
		}
		account.Set(strings.ToLower(strings.TrimPrefix(key, prefix)), value)
	}

	if len(account.Fields) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return account, nil
}

// List returns the known sites that have at least one variable set
func (e *EnvironmentStore) List() ([]*Account, error) {
	sites := make([]string, 0, len(RequiredFields))
	for site := range RequiredFields {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	var accounts []*Account
	for _, site := range sites {
		if account, err := e.Retrieve(site); err == nil {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(site string) error {
	return ErrStoreUnavailable
}

// Exists checks if any variable of the site is set
func (e *EnvironmentStore) Exists(site string) bool {
	_, err := e.Retrieve(site)
	return err == nil
}
