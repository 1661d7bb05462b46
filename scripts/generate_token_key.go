//go:build ignore
// +build ignore

// generate_token_key.go — утилита для генерации ключа шифрования OAuth-токенов.
// Запуск: go run scripts/generate_token_key.go
//
// Результат вставьте в .env как SOCIAL_TOKEN_KEY. После смены ключа
// сохранённые токены не расшифруются, пользователям придётся привязать аккаунт заново.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

func main() {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		fmt.Printf("Ошибка генерации ключа: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Ключ шифрования (вставьте в .env как SOCIAL_TOKEN_KEY):")
	fmt.Println(hex.EncodeToString(key))
}
