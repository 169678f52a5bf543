package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoCredential is returned when a session has no stored bearer credential.
var ErrNoCredential = errors.New("no credential stored for session")

// LoadCredential reads the opaque bearer credential for a session.
// Token acquisition happens outside the daemon; we only consume the file.
func LoadCredential(name string) (string, error) {
	data, err := os.ReadFile(CredentialPath(name))
	if os.IsNotExist(err) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// SaveCredential stores the bearer credential with 0600 permissions.
func SaveCredential(name, token string) error {
	if err := EnsureDir(name); err != nil {
		return err
	}
	return os.WriteFile(CredentialPath(name), []byte(token+"\n"), 0600)
}
