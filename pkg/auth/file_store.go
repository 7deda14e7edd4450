package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// JSONFileStore reads the plain credentials file, a JSON document keyed by
// site name:
//
//	{"reddit": {"client_id": "...", ...}, "mongo": {"user": "...", ...}}
//
// The file is never written at runtime.
type JSONFileStore struct {
	path string
}

// NewJSONFileStore creates a store over the credentials file at path
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path returns the credentials file location
func (j *JSONFileStore) Path() string {
	return j.path
}

func (j *JSONFileStore) load() (map[string]*Account, error) {
	content, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(j.path)
	if err != nil {
		return nil, err
	}
	accounts, err := parseSiteDocument(content, info.ModTime())
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", j.path, err)
	}
	return accounts, nil
}

// parseSiteDocument decodes a credentials document keyed by site. Every
// account is stamped with modified.
func parseSiteDocument(content []byte, modified time.Time) (map[string]*Account, error) {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, err
	}

	accounts := make(map[string]*Account, len(raw))
	for site, values := range raw {
		account := &Account{Site: site, LastModified: modified}
		for k, v := range values {
			account.Set(k, stringify(v))
		}
		accounts[site] = account
	}
	return accounts, nil
}

// encodeSiteDocument is the inverse of parseSiteDocument
func encodeSiteDocument(accounts map[string]*Account) ([]byte, error) {
	doc := make(map[string]map[string]string, len(accounts))
	for site, a := range accounts {
		fields := make(map[string]string, len(a.Fields))
		for k, v := range a.Fields {
			fields[k] = v
		}
		doc[site] = fields
	}
	return json.MarshalIndent(doc, "", "  ")
}

// stringify flattens JSON scalars; numbers keep their shortest form
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// Store is not supported; the credentials file is edited by hand
func (j *JSONFileStore) Store(account *Account) error {
	return ErrReadOnly
}

// Retrieve returns the section of the file for site
func (j *JSONFileStore) Retrieve(site string) (*Account, error) {
	if site == "" {
		return nil, ErrInvalidCredentials
	}
	accounts, err := j.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, err
	}
	account, ok := accounts[site]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return account, nil
}

// List returns every site section of the file
func (j *JSONFileStore) List() ([]*Account, error) {
	accounts, err := j.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []*Account{}, nil
		}
		return nil, err
	}
	result := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, a)
	}
	return result, nil
}

// Delete is not supported; the credentials file is edited by hand
func (j *JSONFileStore) Delete(site string) error {
	return ErrReadOnly
}

// Exists checks if the file has a section for site
func (j *JSONFileStore) Exists(site string) bool {
	_, err := j.Retrieve(site)
	return err == nil
}
