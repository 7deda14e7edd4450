package auth

import "sync"

// mockStore is an in-memory CredentialStore that copies accounts on the way
// in and out.
type mockStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[string]*Account)}
}

func (m *mockStore) Store(account *Account) error {
	if account == nil || account.Site == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Site] = cloneAccount(account)
	return nil
}

func (m *mockStore) Retrieve(site string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[site]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return cloneAccount(account), nil
}

func (m *mockStore) List() ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accounts := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, cloneAccount(a))
	}
	return accounts, nil
}

func (m *mockStore) Delete(site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[site]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, site)
	return nil
}

func (m *mockStore) Exists(site string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[site]
	return ok
}

func (m *mockStore) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// newTestManager returns a Manager over a single mock store
func newTestManager() (*Manager, *mockStore) {
	store := newMockStore()
	return &Manager{stores: []CredentialStore{store}}, store
}

func cloneAccount(a *Account) *Account {
	c := *a
	c.Fields = make(map[string]string, len(a.Fields))
	for k, v := range a.Fields {
		c.Fields[k] = v
	}
	return &c
}
