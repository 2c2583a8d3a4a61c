package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatdeck/api/internal/config"
	"chatdeck/api/internal/ids"
	"chatdeck/api/internal/mail"
	"chatdeck/api/internal/models"
	"chatdeck/api/internal/repository"
	"chatdeck/api/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrEmailTaken         = errors.New("email already registered")
	ErrCodeInvalid        = errors.New("verification code invalid or expired")
)

type AuthService struct {
	users   *repository.UserRepository
	devices *repository.DeviceSessionRepository
	pending *repository.PendingRepository
	mailer  mail.Sender
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewAuthService(
	users *repository.UserRepository,
	devices *repository.DeviceSessionRepository,
	pending *repository.PendingRepository,
	mailer mail.Sender,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		devices: devices,
		pending: pending,
		mailer:  mailer,
		cfg:     cfg,
		log:     log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Register stores a pending signup and mails the verification code. No user
// row exists until the code is verified. Registering again before the TTL
// runs out overwrites the previous pending record.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) error {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return fmt.Errorf("email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return err
	}

	code, codeHash, err := security.GenerateOTP()
	if err != nil {
		return err
	}

	pending := models.PendingSignup{
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		OTPHash:      codeHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.pending.SaveSignup(ctx, pending, s.cfg.Security.PendingTTL); err != nil {
		return err
	}

	if err := s.mailer.SendSignupCode(email, code); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}

	s.log.Info().Str("email", email).Msg("signup pending, code mailed")
	return nil
}

type VerifyInput struct {
	Email      string
	Code       string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	DeviceID     string
}

// VerifyEmail turns a pending signup into a real user and signs the device in.
func (s *AuthService) VerifyEmail(ctx context.Context, input VerifyInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)

	pending, err := s.pending.GetSignup(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrPendingNotFound) {
			return AuthResult{}, ErrCodeInvalid
		}
		return AuthResult{}, err
	}

	if !security.VerifyOTP(input.Code, pending.OTPHash) {
		return AuthResult{}, ErrCodeInvalid
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: pending.PasswordHash,
		DisplayName:  pending.DisplayName,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}

	if err := s.pending.DeleteSignup(ctx, email); err != nil {
		s.log.Warn().Err(err).Str("email", email).Msg("delete pending signup failed")
	}

	return s.signInDevice(ctx, user, input.DeviceID, input.DeviceName, input.IPAddress, input.UserAgent)
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	// External-identity accounts carry no password hash and cannot log in
	// with one.
	if len(user.PasswordHash) == 0 {
		return AuthResult{}, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.signInDevice(ctx, user, input.DeviceID, input.DeviceName, input.IPAddress, input.UserAgent)
}

type RefreshInput struct {
	UserID       string
	DeviceID     string
	RefreshToken string
}

func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	hash := security.HashRefreshToken(input.RefreshToken)
	session, err := s.devices.FindByRefreshHash(ctx, input.UserID, hash)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	if session.DeviceID != input.DeviceID {
		return AuthResult{}, ErrInvalidCredentials
	}
	if session.ExpiresAt.Before(time.Now()) {
		_ = s.devices.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.signInDevice(ctx, user, session.DeviceID, session.DeviceName, session.IPAddress, session.UserAgent)
}

func (s *AuthService) Logout(ctx context.Context, userID, deviceID string) error {
	return s.devices.DeleteByDevice(ctx, userID, deviceID)
}

// RequestPasswordReset mails a reset code when the account exists. It reports
// success either way so the endpoint cannot be used to probe for emails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	code, codeHash, err := security.GenerateOTP()
	if err != nil {
		return err
	}

	pending := models.PendingReset{
		UserID:    user.ID,
		Email:     user.Email,
		OTPHash:   codeHash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.pending.SaveReset(ctx, pending, s.cfg.Security.ResetTTL); err != nil {
		return err
	}

	if err := s.mailer.SendResetCode(user.Email, code); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrCodeInvalid
		}
		return err
	}

	pending, err := s.pending.GetReset(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPendingNotFound) {
			return ErrCodeInvalid
		}
		return err
	}

	if !security.VerifyOTP(code, pending.OTPHash) {
		return ErrCodeInvalid
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	if err := s.pending.DeleteReset(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("delete pending reset failed")
	}

	// Every device has to sign in again with the new password.
	return s.devices.DeleteOldestSessions(ctx, user.ID, 0)
}

func (s *AuthService) signInDevice(ctx context.Context, user models.User, deviceID, deviceName, ip, userAgent string) (AuthResult, error) {
	if deviceID == "" {
		deviceID = ids.New()
	}
	if deviceName == "" {
		deviceName = "Unknown Device"
	}

	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.DeviceSession{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		RefreshTokenHash: refreshHash,
		IPAddress:        ip,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.Security.RefreshTTL),
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		deviceID,
		string(user.Role),
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.devices.Upsert(ctx, session); err != nil {
		return AuthResult{}, err
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     deviceID,
	}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	count, err := s.devices.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Security.MaxSessions {
		return nil
	}
	return s.devices.DeleteOldestSessions(ctx, userID, s.cfg.Security.MaxSessions)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
