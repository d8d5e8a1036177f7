package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// envelopeKey holds the ciphertext inside an encrypted context.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.StateStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts entity contexts and
// audit data using AES-GCM. State names and versions stay in clear text so the
// wrapped store can still filter and detect conflicts.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error {
	sealed := *state
	envelope, err := m.seal(state.Context)
	if err != nil {
		return domain.NewStorageError(domain.OpSave, entityType, entityID, err)
	}
	sealed.Context = envelope

	var sealedAudit *domain.AuditEntry
	if audit != nil {
		a := *audit
		if len(audit.Data) > 0 {
			if a.Data, err = m.seal(audit.Data); err != nil {
				return domain.NewStorageError(domain.OpSave, entityType, entityID, err)
			}
		}
		sealedAudit = &a
	}

	return m.next.Save(ctx, entityType, entityID, &sealed, sealedAudit)
}

func (m *encryptionMiddleware) Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	state, err := m.next.Load(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if state.Context, err = m.open(state.Context); err != nil {
		return nil, domain.NewStorageError(domain.OpLoad, entityType, entityID, err)
	}
	return state, nil
}

func (m *encryptionMiddleware) Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	states, err := m.next.Query(ctx, entityType, filter)
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		if s.Context, err = m.open(s.Context); err != nil {
			return nil, domain.NewStorageError(domain.OpQuery, entityType, s.ID, err)
		}
	}
	return states, nil
}

func (m *encryptionMiddleware) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	entries, err := m.next.History(ctx, entityType, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if len(e.Data) == 0 {
			continue
		}
		if e.Data, err = m.open(e.Data); err != nil {
			return nil, domain.NewStorageError(domain.OpHistory, entityType, entityID, err)
		}
	}
	return entries, nil
}

func (m *encryptionMiddleware) seal(c domain.Context) (domain.Context, error) {
	plainText, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt context: %w", err)
	}
	return domain.Context{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

func (m *encryptionMiddleware) open(envelope domain.Context) (domain.Context, error) {
	encryptedStr, ok := envelope[envelopeKey].(string)
	if !ok {
		// Fail secure: plain data in an encrypted store is not trusted.
		return nil, errors.New("context is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt context: %w", err)
	}

	var c domain.Context
	if err := json.Unmarshal(plainText, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted context: %w", err)
	}
	if c == nil {
		c = domain.Context{}
	}
	return c, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
