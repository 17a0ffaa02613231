package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credential-engine/internal/config"
	customjwt "github.com/magabrotheeeer/credential-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/credential-engine/internal/lib/password"
	"github.com/magabrotheeeer/credential-engine/internal/lib/token"
	"github.com/magabrotheeeer/credential-engine/internal/models"
	services "github.com/magabrotheeeer/credential-engine/internal/services/auth"
	"github.com/magabrotheeeer/credential-engine/internal/storage/repository"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) FindUserByCredential(ctx context.Context, credential string) (*models.User, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) UpdateUserIdentity(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) UpdateUserPassword(ctx context.Context, userUID, passwordHash string) error {
	args := m.Called(ctx, userUID, passwordHash)
	return args.Error(0)
}

func (m *UserRepoMock) UpdatePasswordAndRevokeSessions(ctx context.Context, userUID, passwordHash string) error {
	args := m.Called(ctx, userUID, passwordHash)
	return args.Error(0)
}

func (m *UserRepoMock) SetVerificationToken(ctx context.Context, userUID, verificationToken string, expiresAt time.Time) error {
	args := m.Called(ctx, userUID, verificationToken, expiresAt)
	return args.Error(0)
}

func (m *UserRepoMock) ConfirmEmailByToken(ctx context.Context, verificationToken string) (string, error) {
	args := m.Called(ctx, verificationToken)
	return args.String(0), args.Error(1)
}

func (m *UserRepoMock) DeleteUser(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

// Мок для SessionRepository
type SessionRepoMock struct {
	mock.Mock
}

func (m *SessionRepoMock) InsertSession(ctx context.Context, session models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionRepoMock) FindSessionByFingerprint(ctx context.Context, fingerprint string) (*models.Session, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *SessionRepoMock) DeleteSession(ctx context.Context, sessionUID string) error {
	args := m.Called(ctx, sessionUID)
	return args.Error(0)
}

func (m *SessionRepoMock) DeleteSessionByFingerprint(ctx context.Context, fingerprint string) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

func (m *SessionRepoMock) DeleteSessionsForUser(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func (m *SessionRepoMock) RotateSession(ctx context.Context, oldFingerprint string, next models.Session) error {
	args := m.Called(ctx, oldFingerprint, next)
	return args.Error(0)
}

// Мок для Notifier
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

// Мок для Cache
type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var testTokensCfg = config.Tokens{
	JWTSecretKey:    "test-secret",
	AccessTokenTTL:  15 * time.Minute,
	RefreshTokenTTL: 168 * time.Hour,
	ResetTokenTTL:   15 * time.Minute,
	VerifyTokenTTL:  24 * time.Hour,
}

type serviceMocks struct {
	users    *UserRepoMock
	sessions *SessionRepoMock
	notifier *NotifierMock
	cache    *CacheMock
}

func newTestService() (*services.AuthService, *serviceMocks) {
	m := &serviceMocks{
		users:    new(UserRepoMock),
		sessions: new(SessionRepoMock),
		notifier: new(NotifierMock),
		cache:    new(CacheMock),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	maker := customjwt.NewMaker(testTokensCfg.JWTSecretKey)
	svc := services.NewAuthService(m.users, m.sessions, maker, m.notifier, m.cache, testTokensCfg, logger)
	return svc, m
}

func strPtr(s string) *string { return &s }

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name       string
		login      string
		email      string
		setupMocks func(m *serviceMocks)
		wantErr    error
		wantPair   bool
	}{
		{
			name:  "login only is verified immediately",
			login: "testuser",
			setupMocks: func(m *serviceMocks) {
				m.users.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
					return u.Login == "testuser" && u.Email == "" &&
						u.IsVerified && u.VerificationToken == "" && u.PasswordHash != ""
				})).Return(nil).Once()
				m.sessions.On("InsertSession", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantPair: true,
		},
		{
			name:  "email starts verification",
			email: "test@example.com",
			setupMocks: func(m *serviceMocks) {
				m.users.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
					return u.Email == "test@example.com" && !u.IsVerified &&
						u.VerificationToken != "" && !u.VerificationExpiresAt.IsZero()
				})).Return(nil).Once()
				m.notifier.On("Notify", "test@example.com", mock.Anything, mock.Anything).Return(nil).Once()
				m.sessions.On("InsertSession", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantPair: true,
		},
		{
			name:  "login taken",
			login: "testuser",
			setupMocks: func(m *serviceMocks) {
				m.users.On("InsertUser", mock.Anything, mock.Anything).Return(repository.ErrLoginTaken).Once()
			},
			wantErr: services.ErrLoginTaken,
		},
		{
			name:  "email taken",
			email: "test@example.com",
			setupMocks: func(m *serviceMocks) {
				m.users.On("InsertUser", mock.Anything, mock.Anything).Return(repository.ErrEmailTaken).Once()
				m.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
			},
			wantErr: services.ErrEmailTaken,
		},
		{
			name:       "login and email both empty",
			setupMocks: func(_ *serviceMocks) {},
			wantErr:    services.ErrLoginOrEmailRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService()
			tt.setupMocks(m)

			pair, err := svc.Register(context.Background(), tt.login, tt.email, "password123", "test-client")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, pair)
			} else {
				require.NoError(t, err)
				require.NotNil(t, pair)
				assert.NotEmpty(t, pair.AccessToken)
				assert.NotEmpty(t, pair.RefreshToken)
				assert.Equal(t, "bearer", pair.TokenType)
			}

			m.users.AssertExpectations(t)
			m.sessions.AssertExpectations(t)
			m.notifier.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	rawPassword := "correctpassword"
	hashed, err := password.GetHash(rawPassword)
	require.NoError(t, err)

	testUser := &models.User{
		UUID:         "uid-1",
		Login:        "testuser",
		PasswordHash: hashed,
		IsVerified:   true,
	}

	tests := []struct {
		name       string
		credential string
		password   string
		setupMocks func(m *serviceMocks)
		wantErr    error
	}{
		{
			name:       "successful login",
			credential: "testuser",
			password:   rawPassword,
			setupMocks: func(m *serviceMocks) {
				m.users.On("FindUserByCredential", mock.Anything, "testuser").Return(testUser, nil).Once()
				m.sessions.On("InsertSession", mock.Anything, mock.MatchedBy(func(s models.Session) bool {
					return s.UserUID == "uid-1" && s.RefreshTokenFingerprint != ""
				})).Return(nil).Once()
			},
		},
		{
			name:       "unknown credential",
			credential: "nonexistent",
			password:   rawPassword,
			setupMocks: func(m *serviceMocks) {
				m.users.On("FindUserByCredential", mock.Anything, "nonexistent").
					Return(nil, repository.ErrUserNotFound).Once()
			},
			wantErr: services.ErrInvalidCredentials,
		},
		{
			name:       "wrong password",
			credential: "testuser",
			password:   "wrongpassword",
			setupMocks: func(m *serviceMocks) {
				m.users.On("FindUserByCredential", mock.Anything, "testuser").Return(testUser, nil).Once()
			},
			wantErr: services.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService()
			tt.setupMocks(m)

			pair, err := svc.Login(context.Background(), tt.credential, tt.password, "test-client")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, pair)
			} else {
				require.NoError(t, err)
				require.NotNil(t, pair)
				assert.NotEmpty(t, pair.AccessToken)
				assert.NotEmpty(t, pair.RefreshToken)
			}

			m.users.AssertExpectations(t)
			m.sessions.AssertExpectations(t)
		})
	}
}

func TestAuthService_Refresh(t *testing.T) {
	maker := customjwt.NewMaker(testTokensCfg.JWTSecretKey)

	newRefreshToken := func(t *testing.T) string {
		t.Helper()
		raw, err := maker.GenerateToken("uid-1", customjwt.KindRefresh, time.Hour)
		require.NoError(t, err)
		return raw
	}
	activeSession := func(fingerprint string) *models.Session {
		return &models.Session{
			UUID:                    "session-1",
			UserUID:                 "uid-1",
			RefreshTokenFingerprint: fingerprint,
			ClientLabel:             "test-client",
			ExpiresAt:               time.Now().UTC().Add(time.Hour),
		}
	}
	testUser := &models.User{UUID: "uid-1", Login: "testuser", IsVerified: true}

	t.Run("successful rotation", func(t *testing.T) {
		svc, m := newTestService()
		raw := newRefreshToken(t)
		fingerprint := token.Fingerprint(raw)

		m.sessions.On("FindSessionByFingerprint", mock.Anything, fingerprint).
			Return(activeSession(fingerprint), nil).Once()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.sessions.On("RotateSession", mock.Anything, fingerprint, mock.MatchedBy(func(s models.Session) bool {
			return s.UserUID == "uid-1" && s.RefreshTokenFingerprint != fingerprint
		})).Return(nil).Once()

		pair, err := svc.Refresh(context.Background(), raw, "test-client")
		require.NoError(t, err)
		require.NotNil(t, pair)
		assert.NotEqual(t, raw, pair.RefreshToken)

		m.sessions.AssertExpectations(t)
		m.users.AssertExpectations(t)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		svc, m := newTestService()
		raw, err := maker.GenerateToken("uid-1", customjwt.KindAccess, time.Hour)
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), raw, "test-client")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
		m.sessions.AssertNotCalled(t, "FindSessionByFingerprint", mock.Anything, mock.Anything)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.Refresh(context.Background(), "not-a-jwt", "test-client")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("unknown session means revoked", func(t *testing.T) {
		svc, m := newTestService()
		raw := newRefreshToken(t)

		m.sessions.On("FindSessionByFingerprint", mock.Anything, token.Fingerprint(raw)).
			Return(nil, repository.ErrSessionNotFound).Once()

		_, err := svc.Refresh(context.Background(), raw, "test-client")
		assert.ErrorIs(t, err, services.ErrSessionRevoked)
		m.sessions.AssertExpectations(t)
	})

	t.Run("expired session is purged", func(t *testing.T) {
		svc, m := newTestService()
		raw := newRefreshToken(t)
		fingerprint := token.Fingerprint(raw)
		expired := activeSession(fingerprint)
		expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)

		m.sessions.On("FindSessionByFingerprint", mock.Anything, fingerprint).Return(expired, nil).Once()
		m.sessions.On("DeleteSession", mock.Anything, "session-1").Return(nil).Once()

		_, err := svc.Refresh(context.Background(), raw, "test-client")
		assert.ErrorIs(t, err, services.ErrSessionExpired)
		m.sessions.AssertExpectations(t)
	})

	t.Run("losing the rotation race means revoked", func(t *testing.T) {
		svc, m := newTestService()
		raw := newRefreshToken(t)
		fingerprint := token.Fingerprint(raw)

		m.sessions.On("FindSessionByFingerprint", mock.Anything, fingerprint).
			Return(activeSession(fingerprint), nil).Once()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.sessions.On("RotateSession", mock.Anything, fingerprint, mock.Anything).
			Return(repository.ErrSessionNotFound).Once()

		_, err := svc.Refresh(context.Background(), raw, "test-client")
		assert.ErrorIs(t, err, services.ErrSessionRevoked)
		m.sessions.AssertExpectations(t)
	})
}

func TestAuthService_Logout(t *testing.T) {
	svc, m := newTestService()
	fingerprint := token.Fingerprint("some-refresh-token")

	// Повторный logout с тем же токеном тоже успешен.
	m.sessions.On("DeleteSessionByFingerprint", mock.Anything, fingerprint).Return(nil).Twice()

	assert.NoError(t, svc.Logout(context.Background(), "some-refresh-token"))
	assert.NoError(t, svc.Logout(context.Background(), "some-refresh-token"))
	m.sessions.AssertExpectations(t)
}

func TestAuthService_GetUser(t *testing.T) {
	testUser := &models.User{UUID: "uid-1", Login: "testuser", IsVerified: true}

	t.Run("cache hit skips repository", func(t *testing.T) {
		svc, m := newTestService()
		m.cache.On("Get", mock.Anything, "user:uid-1", mock.Anything).
			Run(func(args mock.Arguments) {
				*(args.Get(2).(*models.User)) = *testUser
			}).Return(true, nil).Once()

		got, err := svc.GetUser(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.Equal(t, testUser, got)
		m.users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	})

	t.Run("cache miss fills cache", func(t *testing.T) {
		svc, m := newTestService()
		m.cache.On("Get", mock.Anything, "user:uid-1", mock.Anything).Return(false, nil).Once()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.cache.On("Set", mock.Anything, "user:uid-1", testUser, time.Hour).Return(nil).Once()

		got, err := svc.GetUser(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.Equal(t, testUser, got)
		m.users.AssertExpectations(t)
		m.cache.AssertExpectations(t)
	})

	t.Run("user not found", func(t *testing.T) {
		svc, m := newTestService()
		m.cache.On("Get", mock.Anything, "user:missing", mock.Anything).Return(false, nil).Once()
		m.users.On("GetUser", mock.Anything, "missing").Return(nil, repository.ErrUserNotFound).Once()

		_, err := svc.GetUser(context.Background(), "missing")
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})

	t.Run("cache failure falls back to repository", func(t *testing.T) {
		svc, m := newTestService()
		m.cache.On("Get", mock.Anything, "user:uid-1", mock.Anything).
			Return(false, errors.New("redis down")).Once()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.cache.On("Set", mock.Anything, "user:uid-1", testUser, time.Hour).
			Return(errors.New("redis down")).Once()

		got, err := svc.GetUser(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.Equal(t, testUser, got)
	})
}

func TestAuthService_DeleteAccount(t *testing.T) {
	rawPassword := "correctpassword"
	hashed, err := password.GetHash(rawPassword)
	require.NoError(t, err)
	testUser := &models.User{UUID: "uid-1", Login: "testuser", PasswordHash: hashed}

	t.Run("successful delete", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.users.On("DeleteUser", mock.Anything, "uid-1").Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()

		require.NoError(t, svc.DeleteAccount(context.Background(), "uid-1", rawPassword))
		m.users.AssertExpectations(t)
		m.cache.AssertExpectations(t)
	})

	t.Run("wrong confirmation password", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()

		err := svc.DeleteAccount(context.Background(), "uid-1", "wrongpassword")
		assert.ErrorIs(t, err, services.ErrInvalidPassword)
		m.users.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
	})

	t.Run("user not found", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "missing").Return(nil, repository.ErrUserNotFound).Once()

		err := svc.DeleteAccount(context.Background(), "missing", rawPassword)
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})
}

func TestAuthService_ForgotPassword(t *testing.T) {
	testUser := &models.User{UUID: "uid-1", Email: "test@example.com"}

	t.Run("known email dispatches mail", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("FindUserByEmail", mock.Anything, "test@example.com").Return(testUser, nil).Once()
		m.notifier.On("Notify", "test@example.com", mock.Anything, mock.Anything).Return(nil).Once()

		assert.NoError(t, svc.ForgotPassword(context.Background(), "test@example.com"))
		m.notifier.AssertExpectations(t)
	})

	t.Run("unknown email is indistinguishable", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("FindUserByEmail", mock.Anything, "ghost@example.com").
			Return(nil, repository.ErrUserNotFound).Once()

		assert.NoError(t, svc.ForgotPassword(context.Background(), "ghost@example.com"))
		m.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mail failure does not leak to caller", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("FindUserByEmail", mock.Anything, "test@example.com").Return(testUser, nil).Once()
		m.notifier.On("Notify", "test@example.com", mock.Anything, mock.Anything).
			Return(errors.New("broker down")).Once()

		assert.NoError(t, svc.ForgotPassword(context.Background(), "test@example.com"))
	})
}

func TestAuthService_ResetPassword(t *testing.T) {
	maker := customjwt.NewMaker(testTokensCfg.JWTSecretKey)

	t.Run("valid token revokes all sessions", func(t *testing.T) {
		svc, m := newTestService()
		resetToken, err := maker.GenerateToken("uid-1", customjwt.KindReset, time.Minute)
		require.NoError(t, err)

		m.users.On("UpdatePasswordAndRevokeSessions", mock.Anything, "uid-1",
			mock.MatchedBy(func(hash string) bool {
				return password.CompareHash(hash, "newpassword123") == nil
			})).Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()

		require.NoError(t, svc.ResetPassword(context.Background(), resetToken, "newpassword123"))
		m.users.AssertExpectations(t)
	})

	t.Run("wrong token kind is rejected", func(t *testing.T) {
		svc, m := newTestService()
		accessToken, err := maker.GenerateToken("uid-1", customjwt.KindAccess, time.Minute)
		require.NoError(t, err)

		err = svc.ResetPassword(context.Background(), accessToken, "newpassword123")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
		m.users.AssertNotCalled(t, "UpdatePasswordAndRevokeSessions", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("deleted user", func(t *testing.T) {
		svc, m := newTestService()
		resetToken, err := maker.GenerateToken("gone", customjwt.KindReset, time.Minute)
		require.NoError(t, err)

		m.users.On("UpdatePasswordAndRevokeSessions", mock.Anything, "gone", mock.Anything).
			Return(repository.ErrUserNotFound).Once()

		err = svc.ResetPassword(context.Background(), resetToken, "newpassword123")
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	oldPassword := "oldpassword"
	hashed, err := password.GetHash(oldPassword)
	require.NoError(t, err)
	testUser := &models.User{UUID: "uid-1", Login: "testuser", PasswordHash: hashed}

	t.Run("successful change keeps sessions", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.users.On("UpdateUserPassword", mock.Anything, "uid-1", mock.Anything).Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()

		require.NoError(t, svc.ChangePassword(context.Background(), "uid-1", oldPassword, "newpassword123"))
		m.sessions.AssertNotCalled(t, "DeleteSessionsForUser", mock.Anything, mock.Anything)
		m.users.AssertNotCalled(t, "UpdatePasswordAndRevokeSessions", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wrong old password", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()

		err := svc.ChangePassword(context.Background(), "uid-1", "wrongpassword", "newpassword123")
		assert.ErrorIs(t, err, services.ErrInvalidPassword)
		m.users.AssertNotCalled(t, "UpdateUserPassword", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuthService_SendVerification(t *testing.T) {
	t.Run("issues fresh token and dispatches mail", func(t *testing.T) {
		svc, m := newTestService()
		testUser := &models.User{UUID: "uid-1", Email: "test@example.com"}

		m.users.On("GetUser", mock.Anything, "uid-1").Return(testUser, nil).Once()
		m.users.On("SetVerificationToken", mock.Anything, "uid-1", mock.Anything, mock.Anything).Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()
		m.notifier.On("Notify", "test@example.com", mock.Anything, mock.Anything).Return(nil).Once()

		require.NoError(t, svc.SendVerification(context.Background(), "uid-1"))
		m.users.AssertExpectations(t)
		m.notifier.AssertExpectations(t)
	})

	t.Run("user without email", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UUID: "uid-1", Login: "testuser"}, nil).Once()

		err := svc.SendVerification(context.Background(), "uid-1")
		assert.ErrorIs(t, err, services.ErrNoEmail)
		m.users.AssertNotCalled(t, "SetVerificationToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuthService_VerifyEmail(t *testing.T) {
	t.Run("successful confirmation", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("ConfirmEmailByToken", mock.Anything, "opaque-token").Return("uid-1", nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()

		require.NoError(t, svc.VerifyEmail(context.Background(), "opaque-token"))
		m.cache.AssertExpectations(t)
	})

	t.Run("unknown or spent token", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("ConfirmEmailByToken", mock.Anything, "spent-token").
			Return("", repository.ErrTokenNotFound).Once()

		err := svc.VerifyEmail(context.Background(), "spent-token")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})
}

func TestAuthService_UpdateProfile(t *testing.T) {
	baseUser := func() *models.User {
		return &models.User{
			UUID:       "uid-1",
			Login:      "testuser",
			Email:      "old@example.com",
			IsVerified: true,
		}
	}

	t.Run("email change reopens verification", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(baseUser(), nil).Once()
		m.users.On("UpdateUserIdentity", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "new@example.com" && !u.IsVerified &&
				u.VerificationToken != "" && !u.VerificationExpiresAt.IsZero()
		})).Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()
		m.notifier.On("Notify", "new@example.com", mock.Anything, mock.Anything).Return(nil).Once()

		got, err := svc.UpdateProfile(context.Background(), "uid-1", nil, strPtr("new@example.com"))
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", got.Email)
		assert.False(t, got.IsVerified)
		m.users.AssertExpectations(t)
		m.notifier.AssertExpectations(t)
	})

	t.Run("login change does not touch verification", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(baseUser(), nil).Once()
		m.users.On("UpdateUserIdentity", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Login == "newlogin" && u.IsVerified
		})).Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()

		got, err := svc.UpdateProfile(context.Background(), "uid-1", strPtr("newlogin"), nil)
		require.NoError(t, err)
		assert.Equal(t, "newlogin", got.Login)
		assert.True(t, got.IsVerified)
		m.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("login conflict", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(baseUser(), nil).Once()
		m.users.On("UpdateUserIdentity", mock.Anything, mock.Anything).
			Return(repository.ErrLoginTaken).Once()

		_, err := svc.UpdateProfile(context.Background(), "uid-1", strPtr("taken"), nil)
		assert.ErrorIs(t, err, services.ErrLoginTaken)
	})

	t.Run("clearing email keeps account verified", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(baseUser(), nil).Once()
		m.users.On("UpdateUserIdentity", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "" && u.IsVerified && u.VerificationToken == ""
		})).Return(nil).Once()
		m.cache.On("Invalidate", mock.Anything, "user:uid-1").Return(nil).Once()

		got, err := svc.UpdateProfile(context.Background(), "uid-1", nil, strPtr(""))
		require.NoError(t, err)
		assert.Empty(t, got.Email)
		assert.True(t, got.IsVerified, "account without email is verified by policy")
		m.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("clearing both identifiers is forbidden", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(baseUser(), nil).Once()

		_, err := svc.UpdateProfile(context.Background(), "uid-1", strPtr(""), strPtr(""))
		assert.ErrorIs(t, err, services.ErrLoginOrEmailRequired)
		m.users.AssertNotCalled(t, "UpdateUserIdentity", mock.Anything, mock.Anything)
	})

	t.Run("no changes is a no-op", func(t *testing.T) {
		svc, m := newTestService()
		m.users.On("GetUser", mock.Anything, "uid-1").Return(baseUser(), nil).Once()

		got, err := svc.UpdateProfile(context.Background(), "uid-1", strPtr("testuser"), nil)
		require.NoError(t, err)
		assert.Equal(t, "testuser", got.Login)
		m.users.AssertNotCalled(t, "UpdateUserIdentity", mock.Anything, mock.Anything)
	})
}

func TestAuthService_ValidateResetToken(t *testing.T) {
	svc, _ := newTestService()
	maker := customjwt.NewMaker(testTokensCfg.JWTSecretKey)

	resetToken, err := maker.GenerateToken("uid-1", customjwt.KindReset, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, svc.ValidateResetToken(resetToken))

	// Проверка не гасит токен: повторная проверка тоже успешна.
	assert.NoError(t, svc.ValidateResetToken(resetToken))

	accessToken, err := maker.GenerateToken("uid-1", customjwt.KindAccess, time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ValidateResetToken(accessToken), services.ErrInvalidToken)

	assert.ErrorIs(t, svc.ValidateResetToken("garbage"), services.ErrInvalidToken)
}

func TestAuthService_ValidateAccessToken(t *testing.T) {
	svc, _ := newTestService()
	maker := customjwt.NewMaker(testTokensCfg.JWTSecretKey)

	accessToken, err := maker.GenerateToken("uid-1", customjwt.KindAccess, time.Minute)
	require.NoError(t, err)
	refreshToken, err := maker.GenerateToken("uid-1", customjwt.KindRefresh, time.Minute)
	require.NoError(t, err)

	uid, err := svc.ValidateAccessToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	_, err = svc.ValidateAccessToken(refreshToken)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	_, err = svc.ValidateAccessToken("garbage")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}
