// Package decrypt implements the AES schemes video hosts use to hide their
// source lists.
package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrBadCiphertextFormat is returned when a payload lacks the Salted__ envelope.
	ErrBadCiphertextFormat = errors.New("bad ciphertext format")
	// ErrDecryption wraps cipher and padding failures.
	ErrDecryption = errors.New("decryption failed")
)

const (
	saltedMagic = "Salted__"
	keyLen      = 32
	ivLen       = aes.BlockSize
)

// EVPBytesToKey derives a key and IV the way OpenSSL's legacy KDF does:
// D_i = MD5(D_{i-1} || password || salt), concatenated until keyLen+ivLen
// bytes exist.
func EVPBytesToKey(password, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	need := keyLen + ivLen
	out := make([]byte, 0, need+md5.Size)
	var prev []byte
	for len(out) < need {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen:need]
}

// DecryptOpenSSL decrypts a base64 "Salted__" payload produced by
// `openssl enc -aes-256-cbc -md md5` or CryptoJS.AES.encrypt with a passphrase.
func DecryptOpenSSL(b64, password string) (string, error) {
	raw, err := decodeBase64(b64)
	if err != nil {
		return "", errors.Wrap(ErrBadCiphertextFormat, err.Error())
	}
	if len(raw) < 16 || string(raw[:8]) != saltedMagic {
		return "", errors.Wrap(ErrBadCiphertextFormat, "missing Salted__ header")
	}

	salt := raw[8:16]
	body := raw[16:]
	key, iv := EVPBytesToKey([]byte(password), salt, keyLen, ivLen)

	plain, err := decryptCBC(body, key, iv)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptOpenSSL is the inverse of DecryptOpenSSL. A nil salt draws a random one.
func EncryptOpenSSL(plaintext, password string, salt []byte) (string, error) {
	if salt == nil {
		salt = make([]byte, 8)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return "", errors.Wrap(err, "salt")
		}
	}
	if len(salt) != 8 {
		return "", errors.New("salt must be 8 bytes")
	}

	key, iv := EVPBytesToKey([]byte(password), salt, keyLen, ivLen)
	ct, err := encryptCBC([]byte(plaintext), key, iv)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, 16+len(ct))
	out = append(out, saltedMagic...)
	out = append(out, salt...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func decryptCBC(ct, key, iv []byte) ([]byte, error) {
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, errors.Wrapf(ErrDecryption, "ciphertext length %d is not a multiple of the block size", len(ct))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, err.Error())
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	return pkcs7Unpad(plain)
}

func encryptCBC(plain, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "cipher")
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return ct, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+padding)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.Wrap(ErrDecryption, "empty plaintext")
	}
	padding := int(data[n-1])
	if padding == 0 || padding > aes.BlockSize || padding > n {
		return nil, errors.Wrap(ErrDecryption, "invalid padding")
	}
	for _, b := range data[n-padding:] {
		if int(b) != padding {
			return nil, errors.Wrap(ErrDecryption, "invalid padding")
		}
	}
	return data[:n-padding], nil
}
