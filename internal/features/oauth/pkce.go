package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// randomToken возвращает n случайных байт в base64url без паддинга.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации случайных данных: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewState генерирует state для ссылки авторизации.
func NewState() (string, error) {
	return randomToken(24)
}

// NewCodeVerifier генерирует code_verifier (43 символа, RFC 7636).
func NewCodeVerifier() (string, error) {
	return randomToken(32)
}

// CodeChallenge считает code_challenge по методу S256.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
