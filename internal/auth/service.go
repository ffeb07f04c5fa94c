package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
)

// AuditPort records login activity.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	cost   int
}

// NewService constructs a new Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// dummyHash is compared against when the account does not exist so the
// response time does not reveal which e-mails are registered.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("stockbook-timing-guard"), bcrypt.MinCost)

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("find user", slog.Any("error", err))
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive || !rbac.ValidRole(user.Role) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// CreateUser hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, in NewUserInput) (int64, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if errs := shared.FieldErrors(in); len(errs) > 0 {
		return 0, shared.Invalid(fmt.Sprintf("invalid user: %v", errs))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return 0, err
	}
	return s.repo.CreateUser(ctx, in, string(hash))
}

// RegisterSession persists the session metadata in postgres and audits the login.
func (s *Service) RegisterSession(ctx context.Context, info SessionInfo) error {
	if err := s.repo.CreateSession(ctx, info); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  info.UserID,
			Action:   "auth.login",
			Entity:   "user",
			EntityID: strconv.FormatInt(info.UserID, 10),
			Meta:     map[string]any{"ip": info.IP},
		}); err != nil {
			s.logger.Warn("audit login", slog.Any("error", err))
		}
	}
	return nil
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeSessions drops expired session rows.
func (s *Service) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.PurgeExpiredSessions(ctx, now)
}
