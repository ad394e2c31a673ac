package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// argon2id cost parameters. time/memory/threads follow the parameters
// recommended by the argon2 package docs for interactive use
// (dmitrijs2005-gophkeeper's DeriveMasterKey uses the same shape, scaled
// up here since this KDF only needs to run once per Open, not per
// request).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// saltFileName is the per-install salt spec.md §6 requires at
// "data_dir/salt".
const saltFileName = "salt"

// Label domain-separates the three keys this package derives from the
// same (key_material, salt) pair, so the signing key, the exchange key,
// and the store's encryption key are independent even though they share
// one input.
type Label string

const (
	LabelSigning  Label = "meshroom/identity/signing/v1"
	LabelExchange Label = "meshroom/identity/exchange/v1"
	LabelStoreKey Label = "meshroom/store/key/v1"
)

// derive runs argon2id over keyMaterial with salt, domain-separated by
// label (appended to the salt rather than mixed into keyMaterial, so a
// caller holding only keyMaterial and salt cannot derive one key from
// another without also knowing the label scheme).
func derive(keyMaterial []byte, salt []byte, label Label) []byte {
	labeledSalt := append(append([]byte{}, salt...), []byte(label)...)
	return argon2.IDKey(keyMaterial, labeledSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// LoadOrCreateSalt reads dataDir/salt, generating and persisting a fresh
// 16-byte random salt via crypto/rand on first use.
func LoadOrCreateSalt(dataDir string) ([]byte, error) {
	path := filepath.Join(dataDir, saltFileName)

	existing, err := os.ReadFile(path)
	if err == nil {
		return existing, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

// DeriveStoreKey derives the embedded database's own encryption key from
// keyMaterial and the per-install salt (spec.md §6). The resulting key is
// handed to the store's pragma-configuration seam
// (internal/store/doc.go); this package has no opinion on how the store
// uses it.
func DeriveStoreKey(keyMaterial, salt []byte) []byte {
	return derive(keyMaterial, salt, LabelStoreKey)
}
