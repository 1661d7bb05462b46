// Package social — seal.go шифрует OAuth-токены перед записью в базу.
// XChaCha20-Poly1305 со случайным 24-байтным nonce в начале шифротекста;
// ID внешнего аккаунта идёт как associated data, поэтому токен нельзя
// переставить в чужую строку.
package social

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedCorrupt — шифротекст повреждён или зашифрован другим ключом.
var ErrSealedCorrupt = errors.New("не удалось расшифровать токен")

// Sealer шифрует и расшифровывает токены.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создаёт Sealer из 32-байтного ключа.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("некорректный ключ шифрования: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal шифрует строку. Пустая строка → nil (NULL в базе).
func (s *Sealer) Seal(plaintext, associated string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associated)), nil
}

// Open расшифровывает результат Seal. nil → пустая строка.
func (s *Sealer) Open(sealed []byte, associated string) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrSealedCorrupt
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, []byte(associated))
	if err != nil {
		return "", ErrSealedCorrupt
	}
	return string(plain), nil
}
