// Package identity owns the device key pair: an ECDSA P-256 pair whose
// public half is stored as plaintext PEM and whose private half is
// encrypted at rest with the user's passphrase using age's scrypt-based
// passphrase encryption. The integer key id lives in the local store
// under an at-most-one-row constraint.
package identity

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"obs-go/internal/config"
	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// Store implements obs.IdentityStore.
type Store struct {
	publicKeyPath  string
	privateKeyPath string
	database       obs.Database
	clock          obs.Clock
	logger         obs.Logger

	mu sync.Mutex // serializes first-run key creation in-process
}

var _ obs.IdentityStore = (*Store)(nil)

// NewStore creates a Store from configuration.
func NewStore(cfg config.IdentityConfig, database obs.Database, clock obs.Clock, logger obs.Logger) *Store {
	return &Store{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
		database:       database,
		clock:          clock,
		logger:         logger,
	}
}

// EnsureKeyPair returns the existing key pair if present, otherwise
// generates a new ECDSA P-256 pair, persists it, and returns it.
// Idempotent: the in-process mutex serializes callers here, and the
// storage-level uniqueness constraint catches races with other
// processes, so exactly one pair is ever persisted.
func (s *Store) EnsureKeyPair(passphrase string) (*model.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.database.FindIdentityKey()
	if err != nil {
		return nil, &obs.IdentityError{Op: "load", Err: err}
	}
	if existing != nil {
		if !s.keyFilesExist() {
			return nil, &obs.IdentityError{Op: "load", Err: fmt.Errorf("key record exists but key files are missing at %s", s.privateKeyPath)}
		}
		return existing, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, &obs.IdentityError{Op: "generate", Err: err}
	}

	pubPEM, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, &obs.IdentityError{Op: "generate", Err: err}
	}

	// Claim the singleton row before touching disk. A race loser fails
	// here and converges on the winner's pair with the winner's key
	// files untouched; writing files first would leave a private key on
	// disk that does not match the recorded public key.
	pair, err := s.database.CreateIdentityKey(pubPEM, s.clock.Now())
	if err != nil {
		if winner, ferr := s.database.FindIdentityKey(); ferr == nil && winner != nil {
			s.logger.Warn("identity already created concurrently", "kid", winner.KID)
			return winner, nil
		}
		return nil, &obs.IdentityError{Op: "persist", Err: err}
	}

	if err := s.writeKeyFiles(key, pubPEM, passphrase); err != nil {
		return nil, &obs.IdentityError{Op: "persist", Err: err}
	}

	s.logger.Info("identity key pair created", "kid", pair.KID)
	return pair, nil
}

// IsConfigured returns true if both key files exist at configured paths.
func (s *Store) IsConfigured() bool {
	return s.keyFilesExist()
}

func (s *Store) keyFilesExist() bool {
	if _, err := os.Stat(s.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.privateKeyPath); err != nil {
		return false
	}
	return true
}

// writeKeyFiles stores the public key in plaintext PEM and the private
// key PEM encrypted with the passphrase.
func (s *Store) writeKeyFiles(key *ecdsa.PrivateKey, pubPEM, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(s.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(s.publicKeyPath, []byte(pubPEM), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})

	privFile, err := os.OpenFile(s.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(privPEM); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	return nil
}

// Unlock decrypts the private key using the passphrase and returns a
// SigningContext holding the key in memory for the session. The
// decrypted key is never written to disk.
func (s *Store) Unlock(passphrase string) (*SigningContext, error) {
	encData, err := os.ReadFile(s.privateKeyPath)
	if err != nil {
		return nil, &obs.IdentityError{Op: "unlock", Err: fmt.Errorf("reading private key file: %w", err)}
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, &obs.IdentityError{Op: "unlock", Err: err}
	}

	decReader, err := age.Decrypt(bytes.NewReader(encData), identity)
	if err != nil {
		return nil, &obs.IdentityError{Op: "unlock", Err: fmt.Errorf("decrypting private key: %w", err)}
	}

	privPEM, err := io.ReadAll(decReader)
	if err != nil {
		return nil, &obs.IdentityError{Op: "unlock", Err: fmt.Errorf("reading decrypted private key: %w", err)}
	}

	block, _ := pem.Decode(privPEM)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, &obs.IdentityError{Op: "unlock", Err: fmt.Errorf("no EC private key block found")}
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, &obs.IdentityError{Op: "unlock", Err: fmt.Errorf("parsing private key: %w", err)}
	}

	return &SigningContext{key: key}, nil
}

// SigningContext holds an unlocked private key in memory for the
// duration of a session.
type SigningContext struct {
	key *ecdsa.PrivateKey
}

// Sign produces an ASN.1 DER ECDSA signature over digest.
func (c *SigningContext) Sign(digest []byte) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, c.key, digest)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return sig, nil
}

// Public returns the public half of the unlocked key.
func (c *SigningContext) Public() *ecdsa.PublicKey {
	return &c.key.PublicKey
}

func encodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
