package services

import "errors"

// Бизнес-ошибки аутентификации. HTTP-обработчики транслируют их
// в стабильные статусы ответов.
var (
	// ErrInvalidCredentials — неверный идентификатор входа или пароль.
	// Намеренно не различает эти два случая.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginTaken — login уже занят другим пользователем.
	ErrLoginTaken = errors.New("login already taken")
	// ErrEmailTaken — email уже занят другим пользователем.
	ErrEmailTaken = errors.New("email already taken")
	// ErrInvalidToken — токен не прошел проверку подписи, срока действия
	// или назначения, либо одноразовый токен не найден.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionRevoked — refresh-токен корректен, но его сессия уже отозвана.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired — сессия просрочена на стороне сервера.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidPassword — текущий пароль не совпал при подтверждении операции.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoEmail — операция требует привязанный email, а его нет.
	ErrNoEmail = errors.New("user has no email")
	// ErrLoginOrEmailRequired — нарушен инвариант: нужен login или email.
	ErrLoginOrEmailRequired = errors.New("login or email required")
)
