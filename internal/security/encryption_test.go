package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncryptor_KeyLength(t *testing.T) {
	_, err := NewEncryptor([]byte("too short"))
	assert.Error(t, err)

	_, err = NewEncryptor([]byte("12345678901234567890123456789012"))
	assert.NoError(t, err)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)

	plaintext := `{"religiosity_indicator":0.82,"traditional_medicine_bias":0.1}`

	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_EmptyStringPassesThrough(t *testing.T) {
	enc, err := NewEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	decrypted, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestEncrypt_NoncesDiffer(t *testing.T) {
	enc, err := NewEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)

	a, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each encryption must use a fresh nonce")
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	enc, err := NewEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)
	other, err := NewEncryptor([]byte("abcdefghijklmnopqrstuvwxyz012345"))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("sensitive indicators")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecrypt_GarbageFails(t *testing.T) {
	enc, err := NewEncryptor([]byte("12345678901234567890123456789012"))
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}
