package realtime

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// Decrypt base64-decodes payload and AES-CBC decrypts it with key and iv,
// removing PKCS7 padding. The key length selects AES-128/192/256.
func Decrypt(payload string, key, iv []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %w", ErrDecrypt, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	if len(iv) != block.BlockSize() {
		return "", fmt.Errorf("%w: iv length %d", ErrDecrypt, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	if !bytes.Equal(data[len(data)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	return data[:len(data)-n], nil
}

type cipherKey struct {
	key []byte
	iv  []byte
}

// keychain holds per-TR cipher keys for the current connection. It is not
// safe for concurrent use; the client guards it with its subscription lock.
type keychain map[TR]cipherKey

func (k keychain) store(tr TR, key, iv string) {
	if IsExecution(tr.ID) {
		tr.Key = ""
	}
	k[tr] = cipherKey{key: []byte(key), iv: []byte(iv)}
}

// lookup finds the key for a pushed frame, which carries only the TR id.
// Several differing keys under one id cannot be told apart, so that is a miss.
func (k keychain) lookup(id string) (cipherKey, error) {
	if ck, ok := k[TR{ID: id}]; ok {
		return ck, nil
	}

	var (
		found cipherKey
		hits  int
	)
	for tr, ck := range k {
		if tr.ID != id {
			continue
		}
		if hits > 0 && (!bytes.Equal(ck.key, found.key) || !bytes.Equal(ck.iv, found.iv)) {
			return cipherKey{}, ErrAmbiguousKey
		}
		found = ck
		hits++
	}
	if hits == 0 {
		return cipherKey{}, ErrMissingKey
	}
	return found, nil
}
