// Package jwt реализует генерацию и парсинг подписанных токенов с пользовательскими claim полями.
//
// Claims расширяет стандартные claims JWT, добавляя назначение токена (kind).
// Одним ключом подписываются все четыре семейства токенов: access, refresh,
// reset и verify; при проверке вызывающая сторона обязана сверить kind.
package jwt

import (
	"time"
)

// Назначения токенов. Kind зашит в claims и проверяется при каждом парсинге,
// чтобы токен одного назначения нельзя было предъявить вместо другого.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindReset   = "reset"
	KindVerify  = "verify"
)

// Maker описывает интерфейс для генерации и парсинга подписанных токенов.
//
// Методы позволяют создавать токен с указанием субъекта, назначения и времени
// жизни, а также разбирать токен и извлекать из него claims.
type Maker interface {
	// GenerateToken создает токен для субъекта subject с назначением kind и временем жизни ttl.
	GenerateToken(subject, kind string, ttl time.Duration) (string, error)
	// ParseToken возвращает *Claims, если подпись и срок действия корректны.
	ParseToken(tokenStr string) (*Claims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа.
type MakerImpl struct {
	secretKey string // Секретный ключ для подписи токенов.
}

// NewMaker создаёт новый экземпляр MakerImpl на основе секретного ключа.
func NewMaker(secretKey string) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
	}
}
