package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/credential-engine/internal/models"
	"github.com/magabrotheeeer/credential-engine/internal/storage/dbx"
)

// nullable преобразует пустую строку в NULL для опциональных колонок.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var login, email, verificationToken sql.NullString
	var verificationExpiresAt sql.NullTime
	if err := row.Scan(&u.UUID, &login, &email, &u.PasswordHash,
		&u.IsVerified, &verificationToken, &verificationExpiresAt); err != nil {
		return nil, err
	}
	u.Login = login.String
	u.Email = email.String
	u.VerificationToken = verificationToken.String
	if verificationExpiresAt.Valid {
		u.VerificationExpiresAt = verificationExpiresAt.Time
	}
	return u, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

const userColumns = `uuid, login, email, password_hash, is_verified, verification_token, verification_expires_at`

// InsertUser сохраняет нового пользователя в базу данных.
func (s *Storage) InsertUser(ctx context.Context, user models.User) error {
	const op = "storage.InsertUser"

	query := `INSERT INTO users (uuid, login, email, password_hash, is_verified, verification_token, verification_expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.DB.ExecContext(ctx, query,
		user.UUID, nullable(user.Login), nullable(user.Email), user.PasswordHash,
		user.IsVerified, nullable(user.VerificationToken), nullableTime(user.VerificationExpiresAt)); err != nil {
		return fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}
	return nil
}

// GetUser возвращает пользователя по его UUID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"

	query := `SELECT ` + userColumns + ` FROM users WHERE uuid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindUserByCredential ищет пользователя по идентификатору входа:
// одним запросом по login или email, без раскрытия, какое поле совпало.
func (s *Storage) FindUserByCredential(ctx context.Context, credential string) (*models.User, error) {
	const op = "storage.FindUserByCredential"

	query := `SELECT ` + userColumns + ` FROM users WHERE login = $1 OR email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, credential))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindUserByEmail возвращает пользователя по адресу электронной почты.
func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.FindUserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateUserIdentity обновляет login, email и состояние подтверждения почты.
func (s *Storage) UpdateUserIdentity(ctx context.Context, user models.User) error {
	const op = "storage.UpdateUserIdentity"

	query := `UPDATE users
			  SET login = $1, email = $2, is_verified = $3, verification_token = $4, verification_expires_at = $5
			  WHERE uuid = $6`
	res, err := s.DB.ExecContext(ctx, query,
		nullable(user.Login), nullable(user.Email), user.IsVerified,
		nullable(user.VerificationToken), nullableTime(user.VerificationExpiresAt), user.UUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// UpdateUserPassword обновляет хэш пароля пользователя, не затрагивая сессии.
func (s *Storage) UpdateUserPassword(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdateUserPassword"

	query := `UPDATE users SET password_hash = $1 WHERE uuid = $2`
	res, err := s.DB.ExecContext(ctx, query, passwordHash, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// UpdatePasswordAndRevokeSessions в одной транзакции меняет хэш пароля
// и удаляет все сессии пользователя. Используется при восстановлении пароля.
func (s *Storage) UpdatePasswordAndRevokeSessions(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdatePasswordAndRevokeSessions"

	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $1 WHERE uuid = $2`, passwordHash, userUID)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrUserNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_uuid = $1`, userUID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetVerificationToken записывает пользователю новый токен подтверждения почты,
// затирая предыдущий.
func (s *Storage) SetVerificationToken(ctx context.Context, userUID, verificationToken string, expiresAt time.Time) error {
	const op = "storage.SetVerificationToken"

	query := `UPDATE users SET verification_token = $1, verification_expires_at = $2 WHERE uuid = $3`
	res, err := s.DB.ExecContext(ctx, query, verificationToken, nullableTime(expiresAt), userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ConfirmEmailByToken отмечает почту подтверждённой по точному совпадению
// токена и одновременно затирает его. Одиночный UPDATE делает токен строго
// одноразовым: повторное предъявление не найдёт строку.
func (s *Storage) ConfirmEmailByToken(ctx context.Context, verificationToken string) (string, error) {
	const op = "storage.ConfirmEmailByToken"

	query := `UPDATE users
			  SET is_verified = TRUE, verification_token = NULL, verification_expires_at = NULL
			  WHERE verification_token = $1
			    AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
			  RETURNING uuid`
	var userUID string
	err := s.DB.QueryRowContext(ctx, query, verificationToken).Scan(&userUID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userUID, nil
}

// DeleteUser удаляет пользователя и все его сессии в одной транзакции.
func (s *Storage) DeleteUser(ctx context.Context, userUID string) error {
	const op = "storage.DeleteUser"

	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE user_uuid = $1`, userUID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE uuid = $1`, userUID)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
