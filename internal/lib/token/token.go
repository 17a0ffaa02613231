// Package token содержит примитивы для работы с непрозрачными токенами:
// отпечатки refresh-токенов и одноразовые токены подтверждения почты.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint возвращает SHA-256 отпечаток токена в hex-виде.
// В базе хранится только отпечаток, сам refresh-токен никогда не сохраняется.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewOpaque генерирует одноразовый непрозрачный токен: 32 случайных байта
// в hex-виде. Такой токен сверяется только по точному совпадению в базе
// и не проходит через подпись JWT.
func NewOpaque() (string, error) {
	const op = "token.NewOpaque"
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(b), nil
}
