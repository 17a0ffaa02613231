// Package repository реализует хранилище данных на основе PostgreSQL
// для управления пользователями и их сессиями. Предоставляет методы
// создания, чтения, обновления и удаления записей, включая
// транзакционную ротацию refresh-токенов.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Ошибки уровня хранилища. Сервисный слой транслирует их в бизнес-ошибки.
var (
	// ErrUserNotFound возвращается, когда пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound возвращается, когда сессия с таким отпечатком отсутствует.
	ErrSessionNotFound = errors.New("session not found")
	// ErrLoginTaken возвращается при нарушении уникальности login.
	ErrLoginTaken = errors.New("login already taken")
	// ErrEmailTaken возвращается при нарушении уникальности email.
	ErrEmailTaken = errors.New("email already taken")
	// ErrTokenNotFound возвращается, когда токен подтверждения не найден или уже использован.
	ErrTokenNotFound = errors.New("verification token not found")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с пользователями и сессиями.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// mapUniqueViolation транслирует нарушение уникального ограничения
// в ошибку конкретного поля по имени constraint. Проверка на уровне базы
// закрывает гонку двух конкурентных вставок с одинаковым значением.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_login_key":
			return ErrLoginTaken
		case "users_email_key":
			return ErrEmailTaken
		}
	}
	return err
}
