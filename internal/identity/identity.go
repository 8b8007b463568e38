// Package identity provides the agent's long-term Ed25519 signing
// identity: generation-or-load, the derived node ID, and sign/verify.
//
// File handling follows the certificate-store convention of
// os.MkdirAll with 0700 and os.WriteFile with 0600 (PEM-free JSON
// envelope here since there is no X.509 chain to carry), but writes are
// staged to a temporary sibling and renamed into place so a crash
// mid-write can never leave a partial identity.json behind.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	fileName = "identity.json"
	dirMode  = 0o700
	fileMode = 0o600
)

// Identity is the agent's long-term signing keypair.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	CreatedAt  time.Time
}

// envelope is the on-disk JSON representation of a stored identity.
type envelope struct {
	PublicKey string    `json:"public_key"`
	SecretKey string    `json:"secret_key"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorKind classifies why loading or creating an identity failed.
type ErrorKind int

const (
	ErrIO ErrorKind = iota
	ErrCorrupt
	ErrPermissions
)

// Error wraps an identity failure. It never carries key material.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LoadOrCreate ensures dir exists with mode 0700 and returns the identity
// stored at dir/identity.json, generating and persisting a fresh Ed25519
// keypair if none exists yet. Two sequential calls on the same dir return
// byte-identical keys, and therefore the same NodeID.
func LoadOrCreate(dir string) (*Identity, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, &Error{Kind: ErrIO, Op: "mkdir", Err: err}
	}

	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return parse(data)
	case os.IsNotExist(err):
		return create(dir, path)
	default:
		return nil, &Error{Kind: ErrIO, Op: "read", Err: err}
	}
}

func create(dir, path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, &Error{Kind: ErrIO, Op: "generate", Err: err}
	}

	id := &Identity{
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  time.Now().UTC(),
	}

	env := envelope{
		PublicKey: base64.StdEncoding.EncodeToString(pub),
		SecretKey: base64.StdEncoding.EncodeToString(priv.Seed()),
		CreatedAt: id.CreatedAt,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, &Error{Kind: ErrIO, Op: "marshal", Err: err}
	}

	if err := atomicWrite(dir, path, data); err != nil {
		return nil, err
	}

	return id, nil
}

// atomicWrite writes data to a temporary sibling of path and renames it
// into place, so a crash mid-write never leaves a partial file.
func atomicWrite(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".identity-*.tmp")
	if err != nil {
		return &Error{Kind: ErrIO, Op: "create-temp", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Kind: ErrIO, Op: "write-temp", Err: err}
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return &Error{Kind: ErrPermissions, Op: "chmod", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Kind: ErrIO, Op: "close-temp", Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &Error{Kind: ErrIO, Op: "rename", Err: err}
	}
	return nil
}

func parse(data []byte) (*Identity, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &Error{Kind: ErrCorrupt, Op: "unmarshal", Err: err}
	}

	pub, err := base64.StdEncoding.DecodeString(env.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, &Error{Kind: ErrCorrupt, Op: "decode-public-key", Err: err}
	}
	seed, err := base64.StdEncoding.DecodeString(env.SecretKey)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, &Error{Kind: ErrCorrupt, Op: "decode-secret-key", Err: err}
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{
		PublicKey:  ed25519.PublicKey(pub),
		PrivateKey: priv,
		CreatedAt:  env.CreatedAt,
	}, nil
}

// NodeID returns the lowercase hex SHA-256 of the public key.
func NodeID(id *Identity) string {
	sum := sha256.Sum256(id.PublicKey)
	return hex.EncodeToString(sum[:])
}

// Sign signs msg with the identity's private key.
func Sign(id *Identity, msg []byte) []byte {
	return ed25519.Sign(id.PrivateKey, msg)
}

// Verify reports whether sig is a valid signature of msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}
