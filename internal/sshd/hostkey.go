package sshd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// LoadHostKey reads the PEM host key at path. A missing key is generated as
// ed25519 and written to path.
func LoadHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		signer, errParse := ssh.ParsePrivateKey(data)
		if errParse != nil {
			return nil, fmt.Errorf("failed to parse host key %s: %w", path, errParse)
		}

		return signer, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read host key %s: %w", path, err)
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(key, "okupy host key")
	if err != nil {
		return nil, fmt.Errorf("failed to encode host key: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create host key directory: %w", err)
	}

	if err = os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("generated ssh host key")

	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to use host key: %w", err)
	}

	return signer, nil
}
