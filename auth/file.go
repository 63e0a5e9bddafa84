package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const saltSize = 16

// scrypt cost parameters; scryptN is lowered in tests.
var (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// File is a Storage backed by a JSON file holding one token per profile.
// Writes replace the file atomically. When a passphrase is configured, tokens
// are sealed with XChaCha20-Poly1305 under a scrypt-derived key.
type File struct {
	mu         sync.Mutex
	path       string
	profile    string
	passphrase []byte
}

// FileOption configures a File store.
type FileOption func(*File)

// WithProfile selects the profile the store reads and writes.
func WithProfile(name string) FileOption {
	return func(f *File) {
		if name != "" {
			f.profile = name
		}
	}
}

// WithPassphrase enables at-rest encryption.
func WithPassphrase(passphrase string) FileOption {
	return func(f *File) {
		f.passphrase = []byte(passphrase)
	}
}

// NewFile creates a file-backed store at path. The containing directory is
// created on first write.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, profile: DefaultProfile}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type fileRecord struct {
	Token  *TokenData `json:"token,omitempty"`
	Sealed string     `json:"sealed,omitempty"`
}

// GetToken returns the token of the configured profile. A missing, corrupt or
// undecryptable file reads as no token.
func (f *File) GetToken() *TokenData {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.readAll()
	if err != nil {
		return nil
	}
	rec, ok := records[f.profile]
	if !ok {
		return nil
	}
	t, err := f.open(rec)
	if err != nil {
		return nil
	}
	return t
}

// SetToken writes t under the configured profile.
func (f *File) SetToken(t TokenData) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.readAll()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		// unreadable content is replaced rather than blocking new logins
		records = nil
	}
	if records == nil {
		records = make(map[string]fileRecord)
	}

	rec, err := f.seal(t)
	if err != nil {
		return &StorageError{Op: "set", Err: err}
	}
	records[f.profile] = rec

	if err := f.writeAll(records); err != nil {
		return &StorageError{Op: "set", Err: err}
	}
	return nil
}

// ClearToken removes the configured profile's token. Other profiles are kept.
func (f *File) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.readAll()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		// corrupt content holds nothing worth keeping
		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return &StorageError{Op: "clear", Err: rmErr}
		}
		return nil
	}
	if _, ok := records[f.profile]; !ok {
		return nil
	}
	delete(records, f.profile)

	if len(records) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &StorageError{Op: "clear", Err: err}
		}
		return nil
	}
	if err := f.writeAll(records); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

// IsAvailable reports whether the store directory can be created and written.
func (f *File) IsAvailable() bool {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false
	}
	tmp, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return false
	}
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)
	return true
}

func (f *File) readAll() (map[string]fileRecord, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var records map[string]fileRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (f *File) writeAll(records map[string]fileRecord) error {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}

func (f *File) seal(t TokenData) (fileRecord, error) {
	if len(f.passphrase) == 0 {
		return fileRecord{Token: &t}, nil
	}

	plain, err := json.Marshal(t)
	if err != nil {
		return fileRecord{}, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fileRecord{}, err
	}
	aead, err := f.aead(salt)
	if err != nil {
		return fileRecord{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fileRecord{}, err
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plain, []byte(f.profile))
	return fileRecord{Sealed: base64.StdEncoding.EncodeToString(out)}, nil
}

func (f *File) open(rec fileRecord) (*TokenData, error) {
	if rec.Sealed == "" {
		if rec.Token == nil {
			return nil, ErrNoToken
		}
		return rec.Token, nil
	}
	if len(f.passphrase) == 0 {
		return nil, fmt.Errorf("%w: token is encrypted and no passphrase is set", ErrDecrypt)
	}

	raw, err := base64.StdEncoding.DecodeString(rec.Sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: short ciphertext", ErrDecrypt)
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ct := raw[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := f.aead(salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ct, []byte(f.profile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	var t TokenData
	if err := json.Unmarshal(plain, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return &t, nil
}

func (f *File) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(f.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}
