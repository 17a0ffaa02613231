package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/credential-engine/internal/models"
	"github.com/magabrotheeeer/credential-engine/internal/storage/dbx"
)

func insertSession(ctx context.Context, q dbx.DBTX, session models.Session) error {
	query := `INSERT INTO sessions (uuid, user_uuid, refresh_token_hash, client_label, expires_at)
			  VALUES ($1, $2, $3, $4, $5)`
	_, err := q.ExecContext(ctx, query,
		session.UUID, session.UserUID, session.RefreshTokenFingerprint,
		session.ClientLabel, session.ExpiresAt)
	return err
}

// InsertSession сохраняет новую сессию.
func (s *Storage) InsertSession(ctx context.Context, session models.Session) error {
	const op = "storage.InsertSession"
	if err := insertSession(ctx, s.DB, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindSessionByFingerprint возвращает сессию по отпечатку refresh-токена.
func (s *Storage) FindSessionByFingerprint(ctx context.Context, fingerprint string) (*models.Session, error) {
	const op = "storage.FindSessionByFingerprint"

	query := `SELECT uuid, user_uuid, refresh_token_hash, client_label, expires_at
			  FROM sessions
			  WHERE refresh_token_hash = $1`
	session := &models.Session{}
	err := s.DB.QueryRowContext(ctx, query, fingerprint).Scan(
		&session.UUID, &session.UserUID, &session.RefreshTokenFingerprint,
		&session.ClientLabel, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

// DeleteSession удаляет сессию по её UUID.
func (s *Storage) DeleteSession(ctx context.Context, sessionUID string) error {
	const op = "storage.DeleteSession"
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM sessions WHERE uuid = $1`, sessionUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteSessionByFingerprint удаляет сессию по отпечатку refresh-токена.
// Отсутствие строки не считается ошибкой: выход из системы идемпотентен.
func (s *Storage) DeleteSessionByFingerprint(ctx context.Context, fingerprint string) error {
	const op = "storage.DeleteSessionByFingerprint"
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM sessions WHERE refresh_token_hash = $1`, fingerprint); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteSessionsForUser удаляет все сессии пользователя.
func (s *Storage) DeleteSessionsForUser(ctx context.Context, userUID string) error {
	const op = "storage.DeleteSessionsForUser"
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_uuid = $1`, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RotateSession в одной транзакции удаляет сессию со старым отпечатком
// и вставляет новую. Если удалять нечего, транзакция завершается
// ErrSessionNotFound: из N конкурентных ротаций одного токена строку
// удалит ровно одна, остальные получат ноль затронутых строк.
func (s *Storage) RotateSession(ctx context.Context, oldFingerprint string, next models.Session) error {
	const op = "storage.RotateSession"

	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE refresh_token_hash = $1`, oldFingerprint)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrSessionNotFound
		}
		return insertSession(ctx, tx, next)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
