package config

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
)

// Environment overrides for secrets.json.
const (
	EnvMongoURI        = "EVENTHUB_MONGO_URI"
	EnvAlertWebhookURL = "EVENTHUB_ALERT_WEBHOOK_URL"
)

const (
	passwordLength  = 24
	passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	defaultUsername = "admin"
)

// SecretsLoadStatus indicates how secrets were loaded.
type SecretsLoadStatus int

const (
	// SecretsLoaded means secrets were successfully loaded from file.
	SecretsLoaded SecretsLoadStatus = iota
	// SecretsMissing means the secrets file doesn't exist (safe to create).
	SecretsMissing
	// SecretsFallback means there was an error reading/parsing (unsafe to overwrite).
	SecretsFallback
)

// Secret is a string type that masks its value when printed or logged.
// Use Value() to get the actual string value.
type Secret string

// String returns a masked value for logging safety.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString returns a masked value for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// LogValue masks the secret in structured logs.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s Secret) IsEmpty() bool {
	return s == ""
}

// Secrets holds sensitive application configuration.
// WARNING: Do not log this struct directly as json.Marshal will expose values.
type Secrets struct {
	SchemaVersion int    `json:"schema_version"`
	MongoURI      Secret `json:"mongo_uri"`
	AdminUsername string `json:"admin_username"`
	AdminPassword Secret `json:"admin_password"`

	// AlertWebhookURL is a Discord webhook that receives sync run alerts.
	AlertWebhookURL Secret `json:"alert_webhook_url,omitempty"`
}

// DefaultSecrets returns a Secrets with empty values.
func DefaultSecrets() Secrets {
	return Secrets{SchemaVersion: CurrentSchemaVersion}
}

// LoadSecretsFrom reads secrets from the specified path.
// Returns status to indicate whether it's safe to overwrite the file.
func LoadSecretsFrom(path string) (Secrets, SecretsLoadStatus, error) {
	sec := DefaultSecrets()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sec, SecretsMissing, nil
		}
		slog.Warn("failed to read secrets file, using defaults", "error", err)
		return sec, SecretsFallback, fmt.Errorf("read secrets: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&sec); err != nil {
		slog.Warn("secrets file is corrupt, using defaults", "error", err)
		return DefaultSecrets(), SecretsFallback, fmt.Errorf("decode secrets: %w", err)
	}

	if sec.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("secrets schema version mismatch, using defaults",
			"got", sec.SchemaVersion, "expected", CurrentSchemaVersion)
		return DefaultSecrets(), SecretsFallback, fmt.Errorf("schema mismatch: got %d", sec.SchemaVersion)
	}

	return sec, SecretsLoaded, nil
}

// SaveSecretsTo writes secrets to the specified path atomically.
func SaveSecretsTo(sec Secrets, path string) error {
	sec.SchemaVersion = CurrentSchemaVersion

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sec); err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// ApplySecretEnvOverrides applies environment overrides to secrets.
func ApplySecretEnvOverrides(sec Secrets) Secrets {
	if v := os.Getenv(EnvMongoURI); v != "" {
		sec.MongoURI = Secret(v)
	}
	if v := os.Getenv(EnvAlertWebhookURL); v != "" {
		sec.AlertWebhookURL = Secret(v)
	}
	return sec
}

// GeneratePassword generates a cryptographically secure random password.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("generate password: length must be positive")
	}
	b := make([]byte, length)
	charsetLen := big.NewInt(int64(len(passwordCharset)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = passwordCharset[idx.Int64()]
	}
	return string(b), nil
}

// EnsureAdminAuth ensures admin Basic Auth credentials exist.
// Returns (updated bool, generatedPassword string, error).
// If credentials were generated, generatedPassword contains the plaintext for one-time display.
func EnsureAdminAuth(s *Secrets) (updated bool, generatedPassword string, err error) {
	if s.AdminUsername == "" {
		s.AdminUsername = defaultUsername
		updated = true
	}

	if s.AdminPassword.IsEmpty() {
		pw, err := GeneratePassword(passwordLength)
		if err != nil {
			return false, "", err
		}
		s.AdminPassword = Secret(pw)
		generatedPassword = pw
		updated = true
	}

	return updated, generatedPassword, nil
}

// WritePasswordFile writes the generated password to a file in dir.
// Returns the file path. File is created with 0600 permissions.
func WritePasswordFile(dir, username, password string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, "generated_password.txt")
	content := fmt.Sprintf("Username: %s\nPassword: %s\n\nDelete this file after saving the credentials.\n", username, password)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("write password file: %w", err)
	}
	return path, nil
}
