package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/verify"
	"github.com/tradepost/tradepost/pkg/crypto"
	"github.com/tradepost/tradepost/pkg/logger"
	"github.com/tradepost/tradepost/pkg/mail"
	"github.com/tradepost/tradepost/pkg/metrics"
)

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("account: email already registered")
	// ErrUsernameTaken indicates the username is already in use.
	ErrUsernameTaken = errors.New("account: username already in use")
	// ErrUserNotFound indicates no account matches the identifier.
	ErrUserNotFound = errors.New("account: user not found")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrNotVerified indicates the account email was never confirmed.
	ErrNotVerified = errors.New("account: email not verified")
	// ErrUsernameChangeUsed indicates the one-time username change was already spent.
	ErrUsernameChangeUsed = errors.New("account: username already changed once")
)

// AccountConfig customises verification lifetimes and the clock.
type AccountConfig struct {
	CodeTTL        time.Duration
	ResetTokenTTL  time.Duration
	EmailChangeTTL time.Duration
	Clock          func() time.Time
}

// AccountService owns registration, login, password reset, and email/username
// change flows. All short-lived secrets live in the injected verify.Store;
// user records live in the database.
type AccountService struct {
	db       *gorm.DB
	store    *verify.Store
	sessions *auth.SessionService
	mailer   mail.Mailer
	log      *zap.Logger
	now      func() time.Time

	codeTTL        time.Duration
	resetTokenTTL  time.Duration
	emailChangeTTL time.Duration
}

// NewAccountService constructs an AccountService with the provided dependencies.
func NewAccountService(db *gorm.DB, store *verify.Store, sessions *auth.SessionService, mailer mail.Mailer, cfg AccountConfig) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if store == nil {
		return nil, errors.New("account service: verification store is required")
	}

	svc := &AccountService{
		db:             db,
		store:          store,
		sessions:       sessions,
		mailer:         mailer,
		log:            logger.WithModule("account"),
		now:            time.Now,
		codeTTL:        verify.DefaultCodeTTL,
		resetTokenTTL:  verify.DefaultResetTokenTTL,
		emailChangeTTL: verify.DefaultEmailChangeTTL,
	}

	if cfg.CodeTTL > 0 {
		svc.codeTTL = cfg.CodeTTL
	}
	if cfg.ResetTokenTTL > 0 {
		svc.resetTokenTTL = cfg.ResetTokenTTL
	}
	if cfg.EmailChangeTTL > 0 {
		svc.emailChangeTTL = cfg.EmailChangeTTL
	}
	if cfg.Clock != nil {
		svc.now = cfg.Clock
	}

	return svc, nil
}

// RegisterInput carries attributes for a new account.
type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	DisplayName string
	Role        models.UserRole
}

// Register creates an unverified account and emails a 6-digit confirmation
// code. The code email is best effort: a delivery failure never rolls back
// the registration.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := verify.NormalizeKey(input.Email)
	username := strings.TrimSpace(input.Username)
	if email == "" {
		return nil, errors.New("account service: email is required")
	}
	if username == "" {
		return nil, errors.New("account service: username is required")
	}
	if input.Password == "" {
		return nil, errors.New("account service: password is required")
	}

	role := input.Role
	if role == "" {
		role = models.RoleBuyer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("account service: invalid role %q", input.Role)
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		Username:     username,
		DisplayName:  strings.TrimSpace(defaultIfEmpty(input.DisplayName, username)),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			var existing models.User
			if lookupErr := s.db.WithContext(ctx).Take(&existing, "username = ?", username).Error; lookupErr == nil {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account service: create user: %w", err)
	}

	if err := s.issueCode(ctx, verify.RegistrationCodes, email, "Confirm your Tradepost account",
		"Your Tradepost confirmation code is %s. It expires in %d minutes."); err != nil {
		return nil, err
	}

	return &user, nil
}

// ResendRegistrationCode issues a fresh confirmation code, replacing any
// previous one for the email.
func (s *AccountService) ResendRegistrationCode(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	email = verify.NormalizeKey(email)

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}

	return s.issueCode(ctx, verify.RegistrationCodes, email, "Confirm your Tradepost account",
		"Your Tradepost confirmation code is %s. It expires in %d minutes.")
}

// VerifyRegistration consumes a registration code and marks the account verified.
func (s *AccountService) VerifyRegistration(ctx context.Context, email, code string) error {
	ctx = ensureContext(ctx)
	email = verify.NormalizeKey(email)

	if _, err := s.consume(verify.RegistrationCodes, email, code); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Update("is_verified", true)
	if result.Error != nil {
		return fmt.Errorf("account service: mark verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LoginInput carries credentials plus request metadata.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// Login checks the password against the stored bcrypt hash and opens a
// session. Unknown emails and wrong passwords are indistinguishable to the
// caller.
func (s *AccountService) Login(ctx context.Context, input LoginInput) (auth.TokenPair, *models.User, error) {
	ctx = ensureContext(ctx)
	email := verify.NormalizeKey(input.Email)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return auth.TokenPair{}, nil, ErrInvalidCredentials
		}
		return auth.TokenPair{}, nil, fmt.Errorf("account service: lookup user: %w", err)
	}

	if !user.IsActive || !crypto.VerifyPassword(user.PasswordHash, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.TokenPair{}, nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.TokenPair{}, nil, ErrNotVerified
	}

	now := s.now()
	updates := map[string]any{"last_login_at": now, "last_login_ip": input.IPAddress}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		s.log.Warn("record last login failed", zap.Error(err))
	}

	pair, _, err := s.sessions.CreateSession(&user, auth.SessionMetadata{
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return auth.TokenPair{}, nil, fmt.Errorf("account service: create session: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return pair, &user, nil
}

// ForgotPassword issues a reset code when the email is registered. The
// response is identical either way so the endpoint cannot be used to probe
// which emails exist.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	email = verify.NormalizeKey(email)

	if _, err := s.findUserByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.store.Sweep(s.now())
			return nil
		}
		return err
	}

	return s.issueCode(ctx, verify.ResetCodes, email, "Your Tradepost password reset code",
		"Your password reset code is %s. It expires in %d minutes. If you did not request this, ignore this message.")
}

// VerifyResetCode consumes a reset code and mints the short-lived reset
// token that alone authorizes the actual password change. The human-typed
// code never reaches the reset step directly; the handoff narrows the
// brute-force window on the most sensitive operation.
func (s *AccountService) VerifyResetCode(ctx context.Context, email, code string) (string, error) {
	email = verify.NormalizeKey(email)

	if _, err := s.consume(verify.ResetCodes, email, code); err != nil {
		return "", err
	}

	token, err := verify.GenerateToken()
	if err != nil {
		return "", err
	}

	s.store.Put(verify.ResetTokens, token, verify.Entry{
		Secret:  token,
		Subject: email,
	}, s.resetTokenTTL)

	return token, nil
}

// ResetPassword consumes a reset token and overwrites the password hash.
// All open sessions are revoked so stolen refresh tokens die with the old
// password.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx = ensureContext(ctx)
	if newPassword == "" {
		return errors.New("account service: new password is required")
	}

	entry, err := s.consume(verify.ResetTokens, token, token)
	if err != nil {
		return err
	}

	user, err := s.findUserByEmail(ctx, entry.Subject)
	if err != nil {
		return err
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("account service: update password: %w", err)
	}

	if s.sessions != nil {
		if _, err := s.sessions.RevokeAllForUser(user.ID); err != nil {
			s.log.Warn("revoke sessions after reset failed", zap.Error(err))
		}
	}

	return nil
}

// RequestEmailChange issues a 24h confirmation token and mails it to the
// new address. The returned token feeds the confirmation link.
func (s *AccountService) RequestEmailChange(ctx context.Context, userID, newEmail string) (string, error) {
	ctx = ensureContext(ctx)
	newEmail = verify.NormalizeKey(newEmail)
	if newEmail == "" {
		return "", errors.New("account service: new email is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("account service: lookup user: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", newEmail).Count(&count).Error; err != nil {
		return "", fmt.Errorf("account service: check email: %w", err)
	}
	if count > 0 {
		return "", ErrEmailTaken
	}

	token, err := verify.GenerateToken()
	if err != nil {
		return "", err
	}

	s.store.Sweep(s.now())
	s.store.Put(verify.EmailChangeTokens, token, verify.Entry{
		Secret:   token,
		OldEmail: user.Email,
		NewEmail: newEmail,
	}, s.emailChangeTTL)

	s.sendMail(ctx, newEmail, "Confirm your new Tradepost email address",
		fmt.Sprintf("Use this token to confirm your new email address: %s\nThe token expires in %d hours.",
			token, int(s.emailChangeTTL.Hours())))

	return token, nil
}

// ConfirmEmailChange consumes an email-change token and moves the account
// to the new address.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, token string) (*models.User, error) {
	ctx = ensureContext(ctx)

	entry, err := s.consume(verify.EmailChangeTokens, token, token)
	if err != nil {
		return nil, err
	}

	user, err := s.findUserByEmail(ctx, entry.OldEmail)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("email", entry.NewEmail).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account service: update email: %w", err)
	}

	user.Email = entry.NewEmail
	return user, nil
}

// ChangeUsername renames the account. A username may be changed at most
// once over the account's lifetime; UsernameChangedAt only ever moves from
// nil to set.
func (s *AccountService) ChangeUsername(ctx context.Context, userID, newUsername string) (*models.User, error) {
	ctx = ensureContext(ctx)
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return nil, errors.New("account service: username is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("account service: lookup user: %w", err)
	}

	if user.UsernameChangedAt != nil {
		return nil, ErrUsernameChangeUsed
	}
	if user.Username == newUsername {
		return &user, nil
	}

	now := s.now()
	updates := map[string]any{"username": newUsername, "username_changed_at": now}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("account service: change username: %w", err)
	}

	user.Username = newUsername
	user.UsernameChangedAt = &now
	return &user, nil
}

// GetUser loads an account by id.
func (s *AccountService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("account service: lookup user: %w", err)
	}
	return &user, nil
}

// issueCode sweeps the store, writes a fresh code for the email, and mails
// it. Mail failures are logged and swallowed.
func (s *AccountService) issueCode(ctx context.Context, ns verify.Namespace, email, subject, bodyFormat string) error {
	code, err := verify.GenerateCode()
	if err != nil {
		return err
	}

	s.store.Sweep(s.now())
	s.store.Put(ns, email, verify.Entry{Secret: code, Subject: email}, s.codeTTL)

	s.sendMail(ctx, email, subject, fmt.Sprintf(bodyFormat, code, int(s.codeTTL.Minutes())))
	return nil
}

// consume runs the store verification and records the outcome.
func (s *AccountService) consume(ns verify.Namespace, key, presented string) (verify.Entry, error) {
	entry, err := s.store.Verify(ns, key, presented)

	result := "match"
	switch {
	case errors.Is(err, verify.ErrCodeNotFound):
		result = "not_found"
	case errors.Is(err, verify.ErrCodeExpired):
		result = "expired"
	case errors.Is(err, verify.ErrCodeMismatch):
		result = "mismatch"
	}
	metrics.VerificationResults.WithLabelValues(string(ns), result).Inc()

	return entry, err
}

func (s *AccountService) findUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "email = ?", verify.NormalizeKey(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("account service: lookup user: %w", err)
	}
	return &user, nil
}

func (s *AccountService) sendMail(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		return
	}

	err := s.mailer.Send(ctx, mail.Message{To: []string{to}, Subject: subject, Body: body})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		// Outbound email is best effort; the state transition already
		// happened and must not be rolled back.
		s.log.Warn("send email failed", zap.String("subject", subject), zap.Error(err))
	}
}
