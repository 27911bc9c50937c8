package settings

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"golang.org/x/crypto/chacha20poly1305"
)

// EnvMasterKey names the hex-encoded 32-byte key used for sealed token files.
const EnvMasterKey = "MIRADOR_MASTER_KEY"

// ErrNoToken is returned by a TokenSource that has nothing configured.
var ErrNoToken = errors.New("no auth token configured")

// TokenSource resolves the auth token at startup.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token taken verbatim from config or env.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// ParseMasterKey decodes a hex key and checks its length.
func ParseMasterKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// GenerateMasterKey returns a new random key, hex encoded.
func GenerateMasterKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate master key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Seal encrypts a token and returns base64(nonce || ciphertext).
func Seal(key []byte, token string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func Open(key []byte, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", errors.New("sealed token too short")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plain), nil
}

// SealedFile reads a token sealed with Seal from Path.
type SealedFile struct {
	Path string
	Key  []byte
}

func (f SealedFile) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read sealed token %s: %w", f.Path, err)
	}
	return Open(f.Key, string(data))
}

// vaultReader is the part of the Vault client used here.
type vaultReader interface {
	Read(ctx context.Context, path string, options ...vault.RequestOption) (*vault.Response[map[string]interface{}], error)
}

type vaultWrapper struct {
	client *vault.Client
}

func (w vaultWrapper) Read(ctx context.Context, path string, options ...vault.RequestOption) (*vault.Response[map[string]interface{}], error) {
	return w.client.Read(ctx, path, options...)
}

// VaultToken reads the token from a Vault KV secret. Both KV v1 and the
// nested "data" envelope of KV v2 are understood.
type VaultToken struct {
	reader vaultReader
	Path   string
	Key    string
}

// NewVaultToken connects to Vault at addr with a Vault token.
func NewVaultToken(addr, vaultToken, path, key string, timeout time.Duration) (*VaultToken, error) {
	client, err := vault.New(
		vault.WithAddress(addr),
		vault.WithRequestTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if err := client.SetToken(vaultToken); err != nil {
		return nil, fmt.Errorf("set vault token: %w", err)
	}
	if key == "" {
		key = "authToken"
	}
	return &VaultToken{reader: vaultWrapper{client}, Path: path, Key: key}, nil
}

func (v *VaultToken) Token(ctx context.Context) (string, error) {
	resp, err := v.reader.Read(ctx, v.Path)
	if err != nil {
		return "", fmt.Errorf("read vault secret %s: %w", v.Path, err)
	}
	if resp == nil {
		return "", ErrNoToken
	}
	data := resp.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	tok, _ := data[v.Key].(string)
	if tok == "" {
		return "", fmt.Errorf("vault secret %s has no %q: %w", v.Path, v.Key, ErrNoToken)
	}
	return tok, nil
}

// FirstToken tries sources in order and returns the first token found.
// Errors other than ErrNoToken stop the search.
func FirstToken(ctx context.Context, sources ...TokenSource) (string, error) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		tok, err := src.Token(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}
