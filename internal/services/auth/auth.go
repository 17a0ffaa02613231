// Package services содержит логику бизнес-уровня для управления учетными
// записями и жизненным циклом сессий: регистрация, вход, ротация
// refresh-токенов, восстановление пароля и подтверждение почты.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/credential-engine/internal/config"
	"github.com/magabrotheeeer/credential-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/credential-engine/internal/lib/password"
	"github.com/magabrotheeeer/credential-engine/internal/lib/sl"
	"github.com/magabrotheeeer/credential-engine/internal/lib/token"
	"github.com/magabrotheeeer/credential-engine/internal/models"
	"github.com/magabrotheeeer/credential-engine/internal/storage/repository"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	InsertUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	FindUserByCredential(ctx context.Context, credential string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserIdentity(ctx context.Context, user models.User) error
	UpdateUserPassword(ctx context.Context, userUID, passwordHash string) error
	UpdatePasswordAndRevokeSessions(ctx context.Context, userUID, passwordHash string) error
	SetVerificationToken(ctx context.Context, userUID, verificationToken string, expiresAt time.Time) error
	ConfirmEmailByToken(ctx context.Context, verificationToken string) (string, error)
	DeleteUser(ctx context.Context, userUID string) error
}

// SessionRepository описывает контракт для работы с сессиями в базе данных.
type SessionRepository interface {
	InsertSession(ctx context.Context, session models.Session) error
	FindSessionByFingerprint(ctx context.Context, fingerprint string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionUID string) error
	DeleteSessionByFingerprint(ctx context.Context, fingerprint string) error
	DeleteSessionsForUser(ctx context.Context, userUID string) error
	RotateSession(ctx context.Context, oldFingerprint string, next models.Session) error
}

// Notifier ставит письмо в очередь отправки.
type Notifier interface {
	Notify(to, subject, body string) error
}

// Cache описывает кэш профилей пользователей.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

const userCacheTTL = time.Hour

// AuthService отвечает за регистрацию, авторизацию, ротацию refresh-токенов
// и управление паролями и подтверждением почты.
type AuthService struct {
	users    UserRepository
	sessions SessionRepository
	jwtMaker jwt.Maker
	notifier Notifier
	cache    Cache
	cfg      config.Tokens
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, sessions SessionRepository, jwtMaker jwt.Maker,
	notifier Notifier, cache Cache, cfg config.Tokens, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		jwtMaker: jwtMaker,
		notifier: notifier,
		cache:    cache,
		cfg:      cfg,
		log:      log,
	}
}

func userCacheKey(userUID string) string {
	return "user:" + userUID
}

// Register создает нового пользователя и сразу открывает для него сессию.
//
// Учетная запись только с login считается подтверждённой; при наличии email
// создается одноразовый токен подтверждения и в очередь ставится письмо.
func (s *AuthService) Register(ctx context.Context, login, email, rawPassword, clientLabel string) (*models.TokenPair, error) {
	const op = "auth.Register"

	if login == "" && email == "" {
		return nil, ErrLoginOrEmailRequired
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		UUID:         uuid.New().String(),
		Login:        login,
		Email:        email,
		PasswordHash: hashed,
		IsVerified:   email == "",
	}
	if email != "" {
		verificationToken, err := token.NewOpaque()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user.VerificationToken = verificationToken
		user.VerificationExpiresAt = time.Now().UTC().Add(s.cfg.VerifyTokenTTL)
	}

	if err := s.users.InsertUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrLoginTaken):
			return nil, ErrLoginTaken
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Email != "" {
		s.sendVerificationMail(user.Email, user.VerificationToken)
	}

	return s.openSession(ctx, user.UUID, clientLabel)
}

// Login проверяет пароль пользователя и открывает новую сессию.
// Несуществующий идентификатор и неверный пароль неразличимы для вызывающего.
func (s *AuthService) Login(ctx context.Context, credential, rawPassword, clientLabel string) (*models.TokenPair, error) {
	const op = "auth.Login"

	user, err := s.users.FindUserByCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, user.UUID, clientLabel)
}

// Refresh обменивает действующий refresh-токен на новую пару токенов,
// атомарно заменяя сессию. Из N конкурентных вызовов с одним токеном
// успеха добьется ровно один, остальные получат ErrSessionRevoked.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh, clientLabel string) (*models.TokenPair, error) {
	const op = "auth.Refresh"

	claims, err := s.jwtMaker.ParseToken(rawRefresh)
	if err != nil || claims.Kind != jwt.KindRefresh {
		return nil, ErrInvalidToken
	}

	fingerprint := token.Fingerprint(rawRefresh)
	session, err := s.sessions.FindSessionByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session.ExpiresAt.Before(time.Now().UTC()) {
		if err := s.sessions.DeleteSession(ctx, session.UUID); err != nil {
			s.log.Warn("failed to purge expired session", sl.Err(err))
		}
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetUser(ctx, session.UserUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, next, err := s.issueTokenPair(user.UUID, clientLabel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.RotateSession(ctx, fingerprint, *next); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// Сессию успел забрать конкурентный вызов.
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// Logout удаляет сессию предъявленного refresh-токена.
// Операция идемпотентна: отсутствие сессии не является ошибкой.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	const op = "auth.Logout"

	fingerprint := token.Fingerprint(rawRefresh)
	if err := s.sessions.DeleteSessionByFingerprint(ctx, fingerprint); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetUser возвращает профиль пользователя, проходя через кэш.
func (s *AuthService) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "auth.GetUser"

	var cached models.User
	found, err := s.cache.Get(ctx, userCacheKey(userUID), &cached)
	if err != nil {
		s.log.Warn("failed to read user from cache", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Set(ctx, userCacheKey(userUID), user, userCacheTTL); err != nil {
		s.log.Warn("failed to cache user", sl.Err(err))
	}
	return user, nil
}

// DeleteAccount удаляет учетную запись после подтверждения текущим паролем.
// Все сессии пользователя удаляются в той же транзакции, что и сам пользователь.
func (s *AuthService) DeleteAccount(ctx context.Context, userUID, rawPassword string) error {
	const op = "auth.DeleteAccount"

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return ErrInvalidPassword
	}

	if err := s.users.DeleteUser(ctx, userUID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateUserCache(ctx, userUID)
	return nil
}

// ForgotPassword ставит в очередь письмо с токеном восстановления пароля.
// Для несуществующего email исход для вызывающего идентичен существующему:
// метод всегда возвращает nil, кроме случая внутренней ошибки генерации.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	resetToken, err := s.jwtMaker.GenerateToken(user.UUID, jwt.KindReset, s.cfg.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.notifier.Notify(user.Email,
		"Восстановление пароля",
		fmt.Sprintf("Для восстановления пароля используйте токен: %s\nТокен действует 15 минут.", resetToken),
	); err != nil {
		s.log.Warn("failed to dispatch password reset mail", sl.Err(err))
	}
	return nil
}

// ResetPassword устанавливает новый пароль по токену восстановления
// и отзывает все сессии пользователя в одной транзакции с обновлением.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	const op = "auth.ResetPassword"

	claims, err := s.jwtMaker.ParseToken(resetToken)
	if err != nil || claims.Kind != jwt.KindReset {
		return ErrInvalidToken
	}

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.UpdatePasswordAndRevokeSessions(ctx, claims.Subject, hashed); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateUserCache(ctx, claims.Subject)
	return nil
}

// ChangePassword меняет пароль после подтверждения текущим.
// Существующие сессии остаются действительными.
func (s *AuthService) ChangePassword(ctx context.Context, userUID, oldPassword, newPassword string) error {
	const op = "auth.ChangePassword"

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, oldPassword); err != nil {
		return ErrInvalidPassword
	}

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdateUserPassword(ctx, userUID, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateUserCache(ctx, userUID)
	return nil
}

// SendVerification выпускает пользователю новый одноразовый токен
// подтверждения почты, затирая предыдущий, и ставит письмо в очередь.
func (s *AuthService) SendVerification(ctx context.Context, userUID string) error {
	const op = "auth.SendVerification"

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.Email == "" {
		return ErrNoEmail
	}

	verificationToken, err := token.NewOpaque()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := time.Now().UTC().Add(s.cfg.VerifyTokenTTL)
	if err := s.users.SetVerificationToken(ctx, userUID, verificationToken, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateUserCache(ctx, userUID)

	s.sendVerificationMail(user.Email, verificationToken)
	return nil
}

// VerifyEmail подтверждает почту по одноразовому токену. Токен сверяется
// только по точному совпадению в базе и гасится первым использованием.
func (s *AuthService) VerifyEmail(ctx context.Context, verificationToken string) error {
	const op = "auth.VerifyEmail"

	userUID, err := s.users.ConfirmEmailByToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateUserCache(ctx, userUID)
	return nil
}

// UpdateProfile обновляет login и/или email пользователя.
// nil означает, что поле не менять. Смена email сбрасывает подтверждение
// и заново запускает процедуру верификации.
func (s *AuthService) UpdateProfile(ctx context.Context, userUID string, newLogin, newEmail *string) (*models.User, error) {
	const op = "auth.UpdateProfile"

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var changed, emailChanged bool
	if newLogin != nil && *newLogin != user.Login {
		user.Login = *newLogin
		changed = true
	}
	if newEmail != nil && *newEmail != user.Email {
		user.Email = *newEmail
		// Учетная запись без email считается подтвержденной.
		user.IsVerified = user.Email == ""
		user.VerificationToken = ""
		user.VerificationExpiresAt = time.Time{}
		emailChanged = true
		changed = true
	}
	if user.Login == "" && user.Email == "" {
		return nil, ErrLoginOrEmailRequired
	}
	if !changed {
		return user, nil
	}

	if emailChanged && user.Email != "" {
		verificationToken, err := token.NewOpaque()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user.VerificationToken = verificationToken
		user.VerificationExpiresAt = time.Now().UTC().Add(s.cfg.VerifyTokenTTL)
	}

	if err := s.users.UpdateUserIdentity(ctx, *user); err != nil {
		switch {
		case errors.Is(err, repository.ErrLoginTaken):
			return nil, ErrLoginTaken
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateUserCache(ctx, userUID)

	if emailChanged && user.Email != "" {
		s.sendVerificationMail(user.Email, user.VerificationToken)
	}
	return user, nil
}

// ValidateResetToken проверяет подпись, срок действия и назначение токена
// восстановления, не меняя пароль. Токен при этом не гасится.
func (s *AuthService) ValidateResetToken(tokenStr string) error {
	claims, err := s.jwtMaker.ParseToken(tokenStr)
	if err != nil || claims.Kind != jwt.KindReset {
		return ErrInvalidToken
	}
	return nil
}

// ValidateAccessToken проверяет access-токен и возвращает UUID пользователя.
func (s *AuthService) ValidateAccessToken(tokenStr string) (string, error) {
	claims, err := s.jwtMaker.ParseToken(tokenStr)
	if err != nil || claims.Kind != jwt.KindAccess {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// openSession выпускает пару токенов и сохраняет новую сессию.
func (s *AuthService) openSession(ctx context.Context, userUID, clientLabel string) (*models.TokenPair, error) {
	const op = "auth.openSession"

	pair, session, err := s.issueTokenPair(userUID, clientLabel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.sessions.InsertSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// issueTokenPair генерирует access и refresh токены и формирует
// серверную запись сессии для refresh-токена.
func (s *AuthService) issueTokenPair(userUID, clientLabel string) (*models.TokenPair, *models.Session, error) {
	accessToken, err := s.jwtMaker.GenerateToken(userUID, jwt.KindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, err := s.jwtMaker.GenerateToken(userUID, jwt.KindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, nil, err
	}

	if clientLabel == "" {
		clientLabel = "Unknown"
	}
	session := &models.Session{
		UUID:                    uuid.New().String(),
		UserUID:                 userUID,
		RefreshTokenFingerprint: token.Fingerprint(refreshToken),
		ClientLabel:             clientLabel,
		ExpiresAt:               time.Now().UTC().Add(s.cfg.RefreshTokenTTL),
	}
	pair := &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}
	return pair, session, nil
}

// invalidateUserCache сбрасывает кэшированный профиль пользователя.
// Сбой кэша не прерывает основную операцию.
func (s *AuthService) invalidateUserCache(ctx context.Context, userUID string) {
	if err := s.cache.Invalidate(ctx, userCacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate user cache", sl.Err(err))
	}
}

// sendVerificationMail ставит в очередь письмо подтверждения почты.
// Сбой доставки не прерывает основную операцию.
func (s *AuthService) sendVerificationMail(email, verificationToken string) {
	if err := s.notifier.Notify(email,
		"Подтверждение адреса электронной почты",
		fmt.Sprintf("Для подтверждения адреса используйте токен: %s\nТокен действует 24 часа.", verificationToken),
	); err != nil {
		s.log.Warn("failed to dispatch verification mail", sl.Err(err))
	}
}
