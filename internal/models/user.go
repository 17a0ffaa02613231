// Package models содержит доменные модели: пользователи, сессии и токены.
package models

import "time"

// User представляет учетную запись пользователя.
//
// Login и Email опциональны по отдельности, но хотя бы одно из них
// должно быть заполнено. Пустая строка означает отсутствие значения.
type User struct {
	UUID              string `json:"uuid"`
	Login             string `json:"login,omitempty"`
	Email             string `json:"email,omitempty"`
	PasswordHash      string `json:"-"`
	IsVerified        bool   `json:"is_verified"`
	VerificationToken string `json:"-"` // пустая строка — подтверждение не ожидается
	// VerificationExpiresAt — срок действия токена подтверждения.
	// Нулевое значение означает, что срок не задан.
	VerificationExpiresAt time.Time `json:"-"`
}

// Session представляет серверную запись о выданном refresh-токене.
// Сам токен не хранится, только его SHA-256 отпечаток.
type Session struct {
	UUID                    string
	UserUID                 string
	RefreshTokenFingerprint string
	ClientLabel             string
	ExpiresAt               time.Time
}

// TokenPair — пара токенов, возвращаемая при регистрации, входе и ротации.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// EmailMessage — сообщение для очереди почтовых уведомлений.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
