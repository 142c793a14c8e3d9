// Package pii seals guest contact details at rest.
//
// A Contact is the in-memory form and only exists at the point of use
// (rendering an invitation, showing a guest list to its owner). The stored
// form is a SealedContact: every field is an XChaCha20-Poly1305 blob
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
//
// with the version byte and the field name bound in as additional
// authenticated data, so a sealed email cannot be swapped into the name
// column. The email also carries a keyed BLAKE3 blind index that lets RSVP
// lookups find a guest without decrypting the whole list.
package pii

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of the master key and of every derived key.
const KeySize = 32

const sealedVersion byte = 0x01

// Overhead is the per-field size overhead of a sealed value.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	hkdfInfoFields = []byte("plannova.pii.fields.v1")
	hkdfInfoIndex  = []byte("plannova.pii.email-index.v1")
)

// Field names used as associated data.
const (
	FieldName  = "name"
	FieldEmail = "email"
	FieldPhone = "phone"
)

// ErrMalformed is returned when a sealed value cannot be opened.
var ErrMalformed = errors.New("pii: malformed sealed value")

// Sealed is the at-rest form of one field. A nil Sealed means "absent".
type Sealed []byte

// Contact is the decrypted guest contact.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// SealedContact is the stored guest contact.
type SealedContact struct {
	Name       Sealed
	Email      Sealed
	Phone      Sealed
	EmailIndex []byte
}

// Sealer encrypts and decrypts contact fields under keys derived from one
// master key.
type Sealer struct {
	fieldKey []byte
	indexKey []byte
}

// ParseKey decodes a base64 (standard or URL alphabet) master key.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("pii: master key is %d bytes, want %d", len(key), KeySize)
			}
			return key, nil
		}
	}
	return nil, errors.New("pii: master key is not valid base64")
}

// NewSealer derives the field and index keys from masterKey.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("pii: master key is %d bytes, want %d", len(masterKey), KeySize)
	}
	fieldKey, err := deriveKey(masterKey, hkdfInfoFields)
	if err != nil {
		return nil, err
	}
	indexKey, err := deriveKey(masterKey, hkdfInfoIndex)
	if err != nil {
		return nil, err
	}
	return &Sealer{fieldKey: fieldKey, indexKey: indexKey}, nil
}

// Seal encrypts plaintext for the given field. Empty plaintext seals to nil.
func (s *Sealer) Seal(field, plaintext string) (Sealed, error) {
	if plaintext == "" {
		return nil, nil
	}
	aead, err := chacha20poly1305.NewX(s.fieldKey)
	if err != nil {
		return nil, fmt.Errorf("pii: creating cipher: %w", err)
	}
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("pii: generating nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(plaintext)+aead.Overhead())
	out[0] = sealedVersion
	copy(out[1:], nonce[:])
	out = aead.Seal(out, nonce[:], []byte(plaintext), aad(sealedVersion, field))
	return out, nil
}

// Open decrypts a value sealed for field. A nil value opens to "".
func (s *Sealer) Open(field string, value Sealed) (string, error) {
	if len(value) == 0 {
		return "", nil
	}
	if len(value) < Overhead {
		return "", ErrMalformed
	}
	if value[0] != sealedVersion {
		return "", fmt.Errorf("%w: version %d", ErrMalformed, value[0])
	}
	aead, err := chacha20poly1305.NewX(s.fieldKey)
	if err != nil {
		return "", fmt.Errorf("pii: creating cipher: %w", err)
	}
	nonce := value[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, value[1+chacha20poly1305.NonceSizeX:], aad(value[0], field))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plaintext), nil
}

// Index computes the blind index of an email address.
func (s *Sealer) Index(email string) []byte {
	hasher, err := blake3.NewKeyed(s.indexKey)
	if err != nil {
		panic("pii: blake3 keyed hash requires a 32 byte key: " + err.Error())
	}
	_, _ = hasher.Write([]byte(NormalizeEmail(email)))
	return hasher.Sum(nil)
}

// SealContact seals every field of c and computes its email index.
func (s *Sealer) SealContact(c Contact) (SealedContact, error) {
	name, err := s.Seal(FieldName, c.Name)
	if err != nil {
		return SealedContact{}, err
	}
	email, err := s.Seal(FieldEmail, NormalizeEmail(c.Email))
	if err != nil {
		return SealedContact{}, err
	}
	phone, err := s.Seal(FieldPhone, c.Phone)
	if err != nil {
		return SealedContact{}, err
	}
	return SealedContact{Name: name, Email: email, Phone: phone, EmailIndex: s.Index(c.Email)}, nil
}

// OpenContact decrypts every field of sc.
func (s *Sealer) OpenContact(sc SealedContact) (Contact, error) {
	name, err := s.Open(FieldName, sc.Name)
	if err != nil {
		return Contact{}, fmt.Errorf("open name: %w", err)
	}
	email, err := s.Open(FieldEmail, sc.Email)
	if err != nil {
		return Contact{}, fmt.Errorf("open email: %w", err)
	}
	phone, err := s.Open(FieldPhone, sc.Phone)
	if err != nil {
		return Contact{}, fmt.Errorf("open phone: %w", err)
	}
	return Contact{Name: name, Email: email, Phone: phone}, nil
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SubKey derives an independent 32 byte key for purpose from the master key.
func SubKey(masterKey []byte, purpose string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("pii: master key is %d bytes, want %d", len(masterKey), KeySize)
	}
	return deriveKey(masterKey, []byte("plannova."+purpose+".v1"))
}

func deriveKey(master, info []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, master, nil, info)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("pii: deriving key: %w", err)
	}
	return key, nil
}

func aad(version byte, field string) []byte {
	out := make([]byte, 1+len(field))
	out[0] = version
	copy(out[1:], field)
	return out
}
