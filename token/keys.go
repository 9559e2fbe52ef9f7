// Package token implements the token serializer contract of spec.md §4.7: turning an
// authenticated principal and a set of claims into signed JWTs, and back. Key management is
// adapted from dex's signer/storage package — RSA keys rotated on a schedule, with a grace
// window during which a retired key still verifies tokens it signed.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/jonboulle/clockwork"
)

// ErrAlreadyRotated is returned by KeyStore.Rotate when another caller rotated the keys first.
var ErrAlreadyRotated = errors.New("keys already rotated by another server instance")

// VerificationKey is a retired signing key kept around only to verify tokens it already signed.
type VerificationKey struct {
	PublicKey *jose.JSONWebKey
	Expiry    time.Time
}

// Keys is the active signing key plus every still-valid verification key.
type Keys struct {
	SigningKey       *jose.JSONWebKey
	SigningKeyPub    *jose.JSONWebKey
	VerificationKeys []VerificationKey
	NextRotation     time.Time
}

// KeyStore holds the active and retired signing keys. The default implementation is in-process
// and single-instance; a clustered deployment would back this with the shared store the way dex's
// signer/storage package does, trading the extra schema for avoiding duplicate key material across
// replicas — out of scope here since SPEC_FULL's entity model has no Keys entity.
type KeyStore struct {
	mu               sync.Mutex
	keys             Keys
	clock            clockwork.Clock
	rotationInterval time.Duration
	keyValidFor      time.Duration
}

// NewKeyStore returns a KeyStore that rotates every rotationInterval, keeping retired keys
// verifiable for keyValidFor past their retirement (long enough to outlive any token they signed).
func NewKeyStore(rotationInterval, keyValidFor time.Duration) *KeyStore {
	return &KeyStore{clock: clockwork.NewRealClock(), rotationInterval: rotationInterval, keyValidFor: keyValidFor}
}

// NewStaticKeyStore returns a KeyStore that never rotates, useful for tests and single-key
// deployments.
func NewStaticKeyStore() *KeyStore {
	return NewKeyStore(100*365*24*time.Hour, 100*365*24*time.Hour)
}

// Keys returns the current key set, rotating first if the prior signing key has expired.
func (s *KeyStore) Keys() (Keys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys.SigningKey == nil || !s.clock.Now().Before(s.keys.NextRotation) {
		if err := s.rotateLocked(); err != nil {
			return Keys{}, err
		}
	}
	return s.keys, nil
}

// Rotate forces a key rotation regardless of schedule.
func (s *KeyStore) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

func (s *KeyStore) rotateLocked() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	b := make([]byte, 20)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return err
	}
	keyID := hex.EncodeToString(b)

	priv := &jose.JSONWebKey{Key: key, KeyID: keyID, Algorithm: "RS256", Use: "sig"}
	pub := &jose.JSONWebKey{Key: key.Public(), KeyID: keyID, Algorithm: "RS256", Use: "sig"}

	now := s.clock.Now()
	live := s.keys.VerificationKeys[:0]
	for _, vk := range s.keys.VerificationKeys {
		if now.Before(vk.Expiry) {
			live = append(live, vk)
		}
	}
	if s.keys.SigningKeyPub != nil {
		live = append(live, VerificationKey{PublicKey: s.keys.SigningKeyPub, Expiry: now.Add(s.keyValidFor)})
	}

	s.keys = Keys{
		SigningKey:       priv,
		SigningKeyPub:    pub,
		VerificationKeys: live,
		NextRotation:     now.Add(s.rotationInterval),
	}
	return nil
}

// JWKS returns the public keys (active plus still-verifiable retired ones) in JWK Set form, for
// the /.well-known/jwks endpoint.
func (s *KeyStore) JWKS() (jose.JSONWebKeySet, error) {
	keys, err := s.Keys()
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{*keys.SigningKeyPub}}
	for _, vk := range keys.VerificationKeys {
		set.Keys = append(set.Keys, *vk.PublicKey)
	}
	return set, nil
}
