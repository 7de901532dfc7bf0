package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file parameters.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// Secrets holds decrypted secrets in memory for one agent instance.
type Secrets struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSecrets creates an empty secrets holder.
func NewSecrets() *Secrets {
	return &Secrets{values: make(map[string]string)}
}

// Get returns a secret by name, preferring the decrypted file contents and
// falling back to the environment.
func (s *Secrets) Get(name string) (string, error) {
	s.mu.RLock()
	value, ok := s.values[name]
	s.mu.RUnlock()
	if ok && value != "" {
		return value, nil
	}

	if value := os.Getenv(name); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// Set stores a secret in memory.
func (s *Secrets) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Names returns the stored secret names, never the values.
func (s *Secrets) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	return names
}

// FileExists checks whether an encrypted secrets file exists under dir.
func FileExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, secretsFileName))
	return err == nil
}

// SaveToFile encrypts the in-memory secrets with the password and writes
// them to dir. File layout: [salt][nonce][ciphertext+tag], mode 0600.
func (s *Secrets) SaveToFile(dir, password string) error {
	s.mu.RLock()
	plaintext, err := json.Marshal(s.values)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(password, salt)
	if err != nil {
		return err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}

	path := filepath.Join(dir, secretsFileName)
	if err := os.WriteFile(path, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// LoadFromFile decrypts the secrets file under dir into memory, replacing
// any current values. Lax file permissions are tightened to 0600.
func (s *Secrets) LoadFromFile(dir, password string) error {
	path := filepath.Join(dir, secretsFileName)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix secrets file permissions: %w", err)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	minSize := saltSize + nonceSize + 16 // 16 is the GCM tag size
	if len(fileData) < minSize {
		return fmt.Errorf("secrets file is corrupted or invalid format")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return fmt.Errorf("failed to parse secrets: %w", err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

func deriveKey(password string, salt []byte) ([]byte, error) {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
