package decrypt

import (
	"crypto/aes"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"media-extractor-go/pkg/segmenter"
	"media-extractor-go/pkg/types"
)

// Decrypt is the forgiving form of DecryptOpenSSL: any failure, including
// plaintext that is not valid UTF-8, yields "". Callers treat "" as a signal
// to refresh their key.
func Decrypt(ciphertext, password string) string {
	if ciphertext == "" || password == "" {
		return ""
	}
	plain, err := DecryptOpenSSL(ciphertext, password)
	if err != nil || !utf8.ValidString(plain) {
		return ""
	}
	return plain
}

// DecryptWithMaterial applies KeyMaterial to a ciphertext. Index pairs first
// pull the password out of the ciphertext itself.
func DecryptWithMaterial(ciphertext string, km types.KeyMaterial) string {
	switch km.Kind {
	case types.KeyKindSecret:
		return Decrypt(ciphertext, km.Password)
	case types.KeyKindIndexPairs:
		cleaned, password := segmenter.ExtractPassword(ciphertext, km.Pairs)
		return Decrypt(cleaned, password)
	}
	return ""
}

// DecryptCBCHex decrypts an "ivHex:ciphertextHex" envelope with a static
// hex-encoded AES key.
func DecryptCBCHex(envelope, keyHex string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(strings.TrimSpace(envelope), ":")
	if !ok {
		return "", errors.Wrap(ErrBadCiphertextFormat, "missing iv separator")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", errors.Wrap(err, "key")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", errors.Wrap(ErrBadCiphertextFormat, "iv")
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", errors.Wrap(ErrBadCiphertextFormat, "ciphertext")
	}

	plain, err := decryptCBC(ct, key, iv)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptCBCHex builds the envelope DecryptCBCHex reads.
func EncryptCBCHex(plaintext, keyHex string, iv []byte) (string, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", errors.Wrap(err, "key")
	}
	if len(iv) != aes.BlockSize {
		return "", errors.New("iv must be one block")
	}
	ct, err := encryptCBC([]byte(plaintext), key, iv)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}
