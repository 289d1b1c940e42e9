package db

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const keyScheme = "mg."

var ErrKeyInvalid = errors.New("invalid api key")

// MintAPIKey creates a sending key for a domain and returns the plaintext
// exactly once; only the hash is stored.
func MintAPIKey(gdb *gorm.DB, domainID uint) (string, *APIKey, error) {
	raw := keyScheme + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	k := &APIKey{
		DomainID: domainID,
		Prefix:   raw[:16],
		Hash:     hashKey(raw),
	}
	if err := gdb.Create(k).Error; err != nil {
		return "", nil, err
	}
	return raw, k, nil
}

// LookupAPIKey resolves a presented plaintext key to its row, or
// ErrKeyInvalid. The prefix narrows the candidate before the hash compare.
func LookupAPIKey(gdb *gorm.DB, raw string) (*APIKey, error) {
	if !strings.HasPrefix(raw, keyScheme) || len(raw) < 16 {
		return nil, ErrKeyInvalid
	}
	var k APIKey
	err := gdb.Where("prefix = ?", raw[:16]).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyInvalid
	}
	if err != nil {
		return nil, err
	}
	if k.Hash != hashKey(raw) {
		return nil, ErrKeyInvalid
	}
	now := time.Now()
	// Best effort; a failed touch never blocks the request.
	gdb.Model(&APIKey{}).Where("id = ?", k.ID).Update("last_used_at", now)
	k.LastUsedAt = &now
	return &k, nil
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
