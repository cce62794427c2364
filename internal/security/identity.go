// Package security provides the node's cryptographic identity. Every
// node carries an Ed25519 keypair; the public key hex doubles as the
// node ID exchanged during transport setup. Peer authentication is not
// performed; the identity exists so peers and operators can tell
// nodes apart.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Identity holds the node's Ed25519 keypair.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentity creates a fresh Ed25519 keypair.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Identity{Public: pub, Private: priv}, nil
}

// LoadOrCreateIdentity loads an existing identity from disk, or
// generates and stores a new one on first run. Keys live in home/keys/.
func LoadOrCreateIdentity(home string) (*Identity, error) {
	keyDir := filepath.Join(home, "keys")
	pubPath := filepath.Join(keyDir, "node.pub")
	privPath := filepath.Join(keyDir, "node.key")

	pubBytes, pubErr := os.ReadFile(pubPath)
	privBytes, privErr := os.ReadFile(privPath)

	if pubErr == nil && privErr == nil {
		pub, err := hex.DecodeString(string(pubBytes))
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		priv, err := hex.DecodeString(string(privBytes))
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity files in %s are corrupt", keyDir)
		}
		return &Identity{
			Public:  ed25519.PublicKey(pub),
			Private: ed25519.PrivateKey(priv),
		}, nil
	}

	id, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(id.Public)), 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(id.Private)), 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}

	return id, nil
}

// NodeID returns the public key as a hex string, used as the node's
// identifier on the network.
func (id *Identity) NodeID() string {
	return hex.EncodeToString(id.Public)
}

// ShortID returns a truncated node ID for log lines.
func (id *Identity) ShortID() string {
	full := id.NodeID()
	if len(full) > 16 {
		return full[:16]
	}
	return full
}
