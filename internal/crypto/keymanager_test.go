package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("  my-api-secret\n", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "my-api-secret")

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptSecretRejectsEmpty(t *testing.T) {
	_, err := EncryptSecret("secret", "")
	assert.Error(t, err)
	_, err = EncryptSecret("   ", "pw")
	assert.Error(t, err)
}

func TestDecryptSecretRejectsVersion(t *testing.T) {
	_, err := DecryptSecret([]byte(`{"version":9}`), "pw")
	assert.ErrorContains(t, err, "unsupported version")
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "raw", EncryptedPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
