package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

var (
	// ErrWalletExists is returned by Create for a name already in use.
	ErrWalletExists = errors.New("wallet already exists")
	// ErrWalletNotFound is returned for a name with no wallet file.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrKeyNotFound is returned when no derived key matches an address.
	ErrKeyNotFound = errors.New("no key for address")
)

const keystoreVersion = 2

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	EncryptedSeed []byte          `json:"encrypted_seed"`
	Keys          []KeyEntry      `json:"keys"`
	NextIndex     map[Role]uint32 `json:"next_index"`
}

// KeyEntry records a derived key. Only public data is stored.
type KeyEntry struct {
	Role    Role          `json:"role"`
	Index   uint32        `json:"index"`
	Label   string        `json:"label,omitempty"`
	Address types.Address `json:"address"`
}

// Path returns the derivation path of the entry.
func (e KeyEntry) Path() string {
	return Path(e.Role, e.Index)
}

// Keystore manages encrypted seeds on disk, one file per wallet.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create seals seed under password in a new wallet file.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	return ks.writeFile(path, &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Keys:          []KeyEntry{},
		NextIndex:     map[Role]uint32{},
	})
}

// Load decrypts a wallet and returns the seed bytes.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	return seed, nil
}

// NewKey derives the next unused key of role, records it and returns
// its entry.
func (ks *Keystore) NewKey(name string, password []byte, role Role, label string) (KeyEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return KeyEntry{}, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return KeyEntry{}, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	defer zero(seed)

	index := kf.NextIndex[role]
	key, err := deriveRole(seed, role, index)
	if err != nil {
		return KeyEntry{}, err
	}

	entry := KeyEntry{Role: role, Index: index, Label: label, Address: key.Address()}
	kf.Keys = append(kf.Keys, entry)
	kf.NextIndex[role] = index + 1
	if err := ks.writeFile(ks.walletPath(name), kf); err != nil {
		return KeyEntry{}, err
	}
	return entry, nil
}

// Keys returns the recorded keys of a wallet.
func (ks *Keystore) Keys(name string) ([]KeyEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	return kf.Keys, nil
}

// Signer decrypts the wallet and returns the signing key recorded for addr.
func (ks *Keystore) Signer(name string, password []byte, addr types.Address) (*crypto.PrivateKey, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	var entry *KeyEntry
	for i := range kf.Keys {
		if kf.Keys[i].Address == addr {
			entry = &kf.Keys[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s in wallet %q", ErrKeyNotFound, addr, name)
	}

	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	defer zero(seed)

	key, err := deriveRole(seed, entry.Role, entry.Index)
	if err != nil {
		return nil, err
	}
	if key.Address() != addr {
		return nil, fmt.Errorf("wallet %q: %s derives to %s, recorded %s", name, entry.Path(), key.Address(), addr)
	}
	return key.Signer()
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func deriveRole(seed []byte, role Role, index uint32) (*HDKey, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return master.DeriveRole(role, index)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(name string) (*keystoreFile, error) {
	data, err := os.ReadFile(ks.walletPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	if kf.NextIndex == nil {
		kf.NextIndex = map[Role]uint32{}
	}
	return &kf, nil
}
