package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnv overrides the generated passphrase of the sealed store
const PassphraseEnv = "REDDITCRAWLER_PASSPHRASE"

const (
	sealedVersion    = 2
	sealedKDF        = "pbkdf2-sha256"
	sealedIterations = 210000
	sealedSaltSize   = 16
	sealedKeySize    = 32
)

// ErrSealBroken is returned when a sealed file cannot be opened with the
// current passphrase or has been tampered with.
var ErrSealBroken = errors.New("sealed credentials cannot be opened")

// sealedFile is the on-disk envelope. Sealed decrypts to the same site keyed
// document JSONFileStore reads, and Sites is bound to it as additional data.
type sealedFile struct {
	Version    int       `json:"version"`
	KDF        string    `json:"kdf"`
	Iterations int       `json:"iterations"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Sites      []string  `json:"sites"`
	Sealed     []byte    `json:"sealed"`
	Modified   time.Time `json:"modified"`
}

func (f *sealedFile) additionalData() []byte {
	return []byte(fmt.Sprintf("redditcrawler/v%d/%s", f.Version, strings.Join(f.Sites, ",")))
}

// EncryptedFileStore keeps an encrypted copy of the credentials file. Every
// save draws a fresh salt and nonce.
type EncryptedFileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// NewEncryptedFileStore opens the sealed file at path. The passphrase comes
// from REDDITCRAWLER_PASSPHRASE, or from a .passphrase file next to the
// sealed file that is generated on first use.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	pass, err := loadPassphrase(filepath.Join(dir, ".passphrase"))
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

// Path returns the sealed file location
func (e *EncryptedFileStore) Path() string {
	return e.path
}

func loadPassphrase(file string) ([]byte, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return []byte(pass), nil
	}
	if content, err := os.ReadFile(file); err == nil && len(content) > 0 {
		return content, nil
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := []byte(base64.RawURLEncoding.EncodeToString(raw))
	if err := os.WriteFile(file, pass, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

// validateSealable rejects accounts that could not be used once read back
func validateSealable(a *Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	switch a.Site {
	case SiteReddit:
	case SiteMongo:
		if _, err := a.Mongo().Address(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown site %q", ErrInvalidCredentials, a.Site)
	}
	return nil
}

// Store seals account together with the sites already in the file
func (e *EncryptedFileStore) Store(account *Account) error {
	if err := validateSealable(account); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.open()
	if err != nil {
		return err
	}
	accounts[account.Site] = account
	return e.seal(accounts)
}

// SealFile validates every site of the plain credentials file at path and
// seals them in one write. Sites already sealed and absent from the file are
// kept. Nothing is written when any site is invalid.
func (e *EncryptedFileStore) SealFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plain, err := parseSiteDocument(content, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	if len(plain) == 0 {
		return nil, fmt.Errorf("%w: %s has no sites", ErrInvalidCredentials, path)
	}

	var invalid []error
	sites := make([]string, 0, len(plain))
	for site, a := range plain {
		if err := validateSealable(a); err != nil {
			invalid = append(invalid, err)
		}
		sites = append(sites, site)
	}
	if len(invalid) > 0 {
		return nil, errors.Join(invalid...)
	}
	sort.Strings(sites)

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.open()
	if err != nil {
		return nil, err
	}
	for site, a := range plain {
		accounts[site] = a
	}
	if err := e.seal(accounts); err != nil {
		return nil, err
	}
	return sites, nil
}

// Retrieve returns the sealed account of site
func (e *EncryptedFileStore) Retrieve(site string) (*Account, error) {
	if site == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.open()
	if err != nil {
		return nil, err
	}
	account, ok := accounts[site]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return account, nil
}

// List returns every sealed account
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.open()
	if err != nil {
		return nil, err
	}
	result := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, a)
	}
	return result, nil
}

// Delete removes site; the file goes away with its last site
func (e *EncryptedFileStore) Delete(site string) error {
	if site == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.open()
	if err != nil {
		return err
	}
	if _, ok := accounts[site]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, site)
	return e.seal(accounts)
}

// Exists checks if site is sealed
func (e *EncryptedFileStore) Exists(site string) bool {
	_, err := e.Retrieve(site)
	return err == nil
}

// open decrypts the sealed file. A missing file is an empty document.
func (e *EncryptedFileStore) open() (map[string]*Account, error) {
	plain, modified, err := e.plaintext()
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*Account), nil
	}
	if err != nil {
		return nil, err
	}
	return parseSiteDocument(plain, modified)
}

func (e *EncryptedFileStore) plaintext() ([]byte, time.Time, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, time.Time{}, err
	}

	var f sealedFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse %s: %w", e.path, err)
	}
	if f.Version != sealedVersion || f.KDF != sealedKDF {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported envelope v%d %s", ErrSealBroken, f.Version, f.KDF)
	}

	gcm, err := e.cipher(f.Salt, f.Iterations)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(f.Nonce) != gcm.NonceSize() {
		return nil, time.Time{}, fmt.Errorf("%w: bad nonce", ErrSealBroken)
	}
	plain, err := gcm.Open(nil, f.Nonce, f.Sealed, f.additionalData())
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	return plain, f.Modified, nil
}

func (e *EncryptedFileStore) seal(accounts map[string]*Account) error {
	if len(accounts) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	plain, err := encodeSiteDocument(accounts)
	if err != nil {
		return err
	}

	f := sealedFile{
		Version:    sealedVersion,
		KDF:        sealedKDF,
		Iterations: sealedIterations,
		Salt:       make([]byte, sealedSaltSize),
		Modified:   time.Now().UTC(),
	}
	for site := range accounts {
		f.Sites = append(f.Sites, site)
	}
	sort.Strings(f.Sites)

	if _, err := io.ReadFull(rand.Reader, f.Salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := e.cipher(f.Salt, f.Iterations)
	if err != nil {
		return err
	}
	f.Nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, f.Nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	f.Sealed = gcm.Seal(nil, f.Nonce, plain, f.additionalData())

	content, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) cipher(salt []byte, iterations int) (cipher.AEAD, error) {
	if len(salt) == 0 || iterations <= 0 {
		return nil, fmt.Errorf("%w: missing key parameters", ErrSealBroken)
	}
	key := pbkdf2.Key(e.passphrase, salt, iterations, sealedKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
