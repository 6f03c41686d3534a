// Package codec encrypts Temporal payloads so order history, billing details
// and price snapshots are never stored in clear text on the Temporal server.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
)

const (
	// MetadataEncodingEncrypted is the encoding type for encrypted payloads
	MetadataEncodingEncrypted = "binary/encrypted"
	// MetadataEncryptionKeyID records which key sealed a payload
	MetadataEncryptionKeyID = "encryption-key-id"

	metadataEncoding = "encoding"
	keySize          = 32
)

// ErrUnknownKey is returned when a payload was sealed with a key the keyring does not hold
var ErrUnknownKey = errors.New("unknown encryption key")

// Keyring holds every key that may have sealed a stored payload and the one used for new payloads
type Keyring struct {
	active string
	aeads  map[string]cipher.AEAD
}

// NewKeyring builds a keyring from raw AES-256 keys. active must be one of keys.
func NewKeyring(active string, keys map[string][]byte) (*Keyring, error) {
	if _, ok := keys[active]; !ok {
		return nil, fmt.Errorf("active key %q is not in the keyring", active)
	}
	kr := &Keyring{active: active, aeads: make(map[string]cipher.AEAD, len(keys))}
	for id, key := range keys {
		if len(key) != keySize {
			return nil, fmt.Errorf("key %q must be 32 bytes for AES-256, got %d bytes", id, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher for key %q: %w", id, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM for key %q: %w", id, err)
		}
		kr.aeads[id] = gcm
	}
	return kr, nil
}

// ParseKeyring reads "id:base64key,id:base64key" as produced by the key management tooling
func ParseKeyring(spec, active string) (*Keyring, error) {
	keys := map[string][]byte{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, encoded, ok := strings.Cut(part, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed key entry %q", part)
		}
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("key %q is not valid base64: %w", id, err)
		}
		keys[id] = key
	}
	return NewKeyring(active, keys)
}

// ActiveKeyID names the key new payloads are sealed with
func (k *Keyring) ActiveKeyID() string {
	return k.active
}

// EncryptionCodec implements converter.PayloadCodec for encrypting/decrypting workflow data
type EncryptionCodec struct {
	keyring *Keyring
}

// NewEncryptionCodec creates a codec sealing with the keyring's active key
func NewEncryptionCodec(keyring *Keyring) *EncryptionCodec {
	return &EncryptionCodec{keyring: keyring}
}

// Encode encrypts the provided payloads
func (e *EncryptionCodec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))

	for i, payload := range payloads {
		if isEncrypted(payload) {
			result[i] = payload
			continue
		}

		// The whole payload is sealed so its metadata is hidden too.
		origBytes, err := payload.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		encrypted, err := e.seal(origBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}

		result[i] = &commonpb.Payload{
			Metadata: map[string][]byte{
				metadataEncoding:        []byte(MetadataEncodingEncrypted),
				MetadataEncryptionKeyID: []byte(e.keyring.active),
			},
			Data: encrypted,
		}
	}

	return result, nil
}

// Decode decrypts the provided payloads with whichever key sealed them
func (e *EncryptionCodec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))

	for i, payload := range payloads {
		if !isEncrypted(payload) {
			result[i] = payload
			continue
		}

		keyID := string(payload.Metadata[MetadataEncryptionKeyID])
		decrypted, err := e.open(keyID, payload.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt payload: %w", err)
		}

		result[i] = &commonpb.Payload{}
		if err := result[i].Unmarshal(decrypted); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted payload: %w", err)
		}
	}

	return result, nil
}

func (e *EncryptionCodec) seal(plaintext []byte) ([]byte, error) {
	gcm := e.keyring.aeads[e.keyring.active]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	// The key id is bound as additional data so a payload cannot be relabelled.
	return gcm.Seal(nonce, nonce, plaintext, []byte(e.keyring.active)), nil
}

func (e *EncryptionCodec) open(keyID string, ciphertext []byte) ([]byte, error) {
	gcm, ok := e.keyring.aeads[keyID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKey, keyID)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func isEncrypted(p *commonpb.Payload) bool {
	return p.Metadata != nil && string(p.Metadata[metadataEncoding]) == MetadataEncodingEncrypted
}

// NewEncryptionDataConverter creates a data converter with encryption codec
func NewEncryptionDataConverter(keyring *Keyring) converter.DataConverter {
	return converter.NewCodecDataConverter(
		converter.GetDefaultDataConverter(),
		NewEncryptionCodec(keyring),
	)
}
