package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/verify"
)

type accountEnv struct {
	svc      *AccountService
	db       *gorm.DB
	store    *verify.Store
	sessions *auth.SessionService
	mailer   *captureMailer
	clock    *testClock
}

func newAccountEnv(t *testing.T) *accountEnv {
	t.Helper()

	db := openTestDB(t)
	clock := newTestClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := verify.NewStore(verify.WithClock(clock.Now))

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "test-secret",
		Issuer: "tradepost-test",
		Clock:  clock.Now,
	})
	require.NoError(t, err)

	sessions, err := auth.NewSessionService(db, jwtSvc, auth.SessionConfig{Clock: clock.Now})
	require.NoError(t, err)

	mailer := &captureMailer{}
	svc, err := NewAccountService(db, store, sessions, mailer, AccountConfig{Clock: clock.Now})
	require.NoError(t, err)

	return &accountEnv{svc: svc, db: db, store: store, sessions: sessions, mailer: mailer, clock: clock}
}

func (e *accountEnv) register(t *testing.T, email, username string) *models.User {
	t.Helper()

	user, err := e.svc.Register(context.Background(), RegisterInput{
		Email:    email,
		Username: username,
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func (e *accountEnv) storedCode(t *testing.T, ns verify.Namespace, email string) string {
	t.Helper()

	entry, ok := e.store.Get(ns, email)
	require.True(t, ok, "expected a stored code for %s", email)
	return entry.Secret
}

func TestRegisterAndVerify(t *testing.T) {
	env := newAccountEnv(t)

	user := env.register(t, "Alice@Example.com ", "alice")
	require.Equal(t, "alice@example.com", user.Email)
	require.False(t, user.IsVerified)
	require.Equal(t, models.RoleBuyer, user.Role)
	require.Equal(t, 1, env.mailer.count())

	code := env.storedCode(t, verify.RegistrationCodes, "alice@example.com")
	require.Len(t, code, 6)

	// Wrong code leaves the entry in place for a retry.
	err := env.svc.VerifyRegistration(context.Background(), "alice@example.com", "000000")
	require.ErrorIs(t, err, verify.ErrCodeMismatch)

	// Case and whitespace differences in the email must not matter.
	require.NoError(t, env.svc.VerifyRegistration(context.Background(), " ALICE@example.com", code))

	fresh, err := env.svc.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, fresh.IsVerified)

	// The code is single use.
	err = env.svc.VerifyRegistration(context.Background(), "alice@example.com", code)
	require.ErrorIs(t, err, verify.ErrCodeNotFound)
}

func TestRegisterDuplicates(t *testing.T) {
	env := newAccountEnv(t)
	env.register(t, "alice@example.com", "alice")

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Username: "alice2",
		Password: "password123",
	})
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = env.svc.Register(context.Background(), RegisterInput{
		Email:    "other@example.com",
		Username: "alice",
		Password: "password123",
	})
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestResendRegistrationCodeReplacesPrevious(t *testing.T) {
	env := newAccountEnv(t)
	env.register(t, "alice@example.com", "alice")

	require.NoError(t, env.svc.ResendRegistrationCode(context.Background(), "alice@example.com"))
	second := env.storedCode(t, verify.RegistrationCodes, "alice@example.com")

	// Reissuing overwrites in place; only one entry exists per email.
	require.Equal(t, 1, env.store.Len(verify.RegistrationCodes))
	require.Equal(t, 2, env.mailer.count())
	require.NoError(t, env.svc.VerifyRegistration(context.Background(), "alice@example.com", second))
}

func TestLogin(t *testing.T) {
	env := newAccountEnv(t)
	env.register(t, "alice@example.com", "alice")

	_, _, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrNotVerified)

	code := env.storedCode(t, verify.RegistrationCodes, "alice@example.com")
	require.NoError(t, env.svc.VerifyRegistration(context.Background(), "alice@example.com", code))

	pair, user, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "alice", user.Username)

	_, _, err = env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown emails fail identically to wrong passwords.
	_, _, err = env.svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()

	env.register(t, "alice@example.com", "alice")
	code := env.storedCode(t, verify.RegistrationCodes, "alice@example.com")
	require.NoError(t, env.svc.VerifyRegistration(ctx, "alice@example.com", code))

	pair, _, err := env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@example.com"))
	resetCode := env.storedCode(t, verify.ResetCodes, "alice@example.com")

	token, err := env.svc.VerifyResetCode(ctx, "alice@example.com", resetCode)
	require.NoError(t, err)
	require.Len(t, token, 64)

	// The code was consumed by the handoff; presenting it again fails.
	_, err = env.svc.VerifyResetCode(ctx, "alice@example.com", resetCode)
	require.ErrorIs(t, err, verify.ErrCodeNotFound)

	require.NoError(t, env.svc.ResetPassword(ctx, token, "newpassword456"))

	// The token is single use too.
	err = env.svc.ResetPassword(ctx, token, "another")
	require.ErrorIs(t, err, verify.ErrCodeNotFound)

	_, _, err = env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "newpassword456"})
	require.NoError(t, err)

	// Sessions opened before the reset are dead.
	_, _, err = env.sessions.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrSessionExpired)
}

func TestPasswordResetCodeExpires(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()
	createTestUser(t, env.db, "alice@example.com", "alice", models.RoleBuyer)

	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@example.com"))
	resetCode := env.storedCode(t, verify.ResetCodes, "alice@example.com")

	env.clock.Advance(verify.DefaultCodeTTL + time.Second)

	_, err := env.svc.VerifyResetCode(ctx, "alice@example.com", resetCode)
	require.ErrorIs(t, err, verify.ErrCodeExpired)

	// The expired entry was purged; a second attempt is indistinguishable
	// from never having requested a reset.
	_, err = env.svc.VerifyResetCode(ctx, "alice@example.com", resetCode)
	require.ErrorIs(t, err, verify.ErrCodeNotFound)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	env := newAccountEnv(t)

	require.NoError(t, env.svc.ForgotPassword(context.Background(), "nobody@example.com"))
	require.Equal(t, 0, env.mailer.count())
	require.Equal(t, 0, env.store.Len(verify.ResetCodes))
}

func TestEmailChangeFlow(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()
	user := createTestUser(t, env.db, "alice@example.com", "alice", models.RoleBuyer)

	token, err := env.svc.RequestEmailChange(ctx, user.ID, "Alice.New@Example.com")
	require.NoError(t, err)
	require.Len(t, token, 64)
	require.Equal(t, 1, env.mailer.count())

	updated, err := env.svc.ConfirmEmailChange(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "alice.new@example.com", updated.Email)

	_, err = env.svc.ConfirmEmailChange(ctx, token)
	require.ErrorIs(t, err, verify.ErrCodeNotFound)
}

func TestEmailChangeRejectsTakenAddress(t *testing.T) {
	env := newAccountEnv(t)
	user := createTestUser(t, env.db, "alice@example.com", "alice", models.RoleBuyer)
	createTestUser(t, env.db, "bob@example.com", "bob", models.RoleBuyer)

	_, err := env.svc.RequestEmailChange(context.Background(), user.ID, "bob@example.com")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestChangeUsernameOnce(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()
	user := createTestUser(t, env.db, "alice@example.com", "alice", models.RoleBuyer)

	updated, err := env.svc.ChangeUsername(ctx, user.ID, "alice_renamed")
	require.NoError(t, err)
	require.Equal(t, "alice_renamed", updated.Username)
	require.NotNil(t, updated.UsernameChangedAt)

	_, err = env.svc.ChangeUsername(ctx, user.ID, "alice_again")
	require.ErrorIs(t, err, ErrUsernameChangeUsed)
}

func TestChangeUsernameTaken(t *testing.T) {
	env := newAccountEnv(t)
	user := createTestUser(t, env.db, "alice@example.com", "alice", models.RoleBuyer)
	createTestUser(t, env.db, "bob@example.com", "bob", models.RoleBuyer)

	_, err := env.svc.ChangeUsername(context.Background(), user.ID, "bob")
	require.ErrorIs(t, err, ErrUsernameTaken)
}
