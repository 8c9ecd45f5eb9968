package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// AuthUsecase — вход в панель по одноразовому коду. Входить могут только
// пользователи с типом admin.
type AuthUsecase struct {
	records *RecordUsecase
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthUsecase создает usecase входа.
func NewAuthUsecase(records *RecordUsecase, logger *zap.Logger) *AuthUsecase {
	return &AuthUsecase{records: records, logger: logger, now: time.Now}
}

// lookup ищет пользователя по идентификатору (телефон или email).
func (u *AuthUsecase) lookup(ctx context.Context, identifier string) (*domain.User, error) {
	q := domain.Query{Filters: []domain.Filter{domain.Eq("identifier", identifier)}}
	var users []domain.Record
	err := u.records.call(ctx, func(ctx context.Context) error {
		return u.records.Backend().Get(ctx, "/users", q.Values(), &users)
	})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user found with %s: %w", identifier, domain.ErrNotFound)
	}
	return domain.Decode[domain.User](domain.CollectionUsers, users[0])
}

// SendOTP проверяет, что пользователь существует и является админом,
// и просит бэкенд отправить код.
func (u *AuthUsecase) SendOTP(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.NewValidationError("identifier", "is required")
	}

	user, err := u.lookup(ctx, identifier)
	if err != nil {
		return err
	}
	if user.Type != domain.RoleAdmin {
		u.logger.Warn("попытка входа не администратора", zap.Int64("user_id", user.ID))
		return fmt.Errorf("only admins can log in: %w", domain.ErrForbidden)
	}

	var out struct {
		Success bool `json:"success"`
	}
	err = u.records.call(ctx, func(ctx context.Context) error {
		return u.records.Backend().Post(ctx, "/otp/send", map[string]string{"identifier": identifier}, &out)
	})
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("%w: failed to send OTP", domain.ErrBackend)
	}
	u.logger.Info("код входа отправлен", zap.Int64("user_id", user.ID))
	return nil
}

// VerifyOTP проверяет код и возвращает сессию администратора.
// ID сессии назначает хранилище сессий.
func (u *AuthUsecase) VerifyOTP(ctx context.Context, identifier, otp string) (domain.Session, error) {
	identifier = strings.TrimSpace(identifier)
	otp = strings.TrimSpace(otp)
	if identifier == "" {
		return domain.Session{}, domain.NewValidationError("identifier", "is required")
	}
	if otp == "" {
		return domain.Session{}, domain.NewValidationError("otp", "is required")
	}

	var out struct {
		JWT  string        `json:"jwt"`
		User domain.Record `json:"user"`
	}
	err := u.records.call(ctx, func(ctx context.Context) error {
		return u.records.Backend().Post(ctx, "/otp/verify", map[string]string{"identifier": identifier, "otp": otp}, &out)
	})
	if err != nil {
		return domain.Session{}, err
	}
	if out.JWT == "" || out.User == nil {
		return domain.Session{}, fmt.Errorf("%w: otp verify returned no token", domain.ErrShapeMismatch)
	}

	user, err := domain.Decode[domain.User](domain.CollectionUsers, out.User)
	if err != nil {
		return domain.Session{}, err
	}
	if user.Type != domain.RoleAdmin {
		return domain.Session{}, fmt.Errorf("only admins can log in: %w", domain.ErrForbidden)
	}

	name := user.FullName()
	if name == "" {
		name = user.Username
	}
	return domain.Session{
		Token:      out.JWT,
		UserID:     user.ID,
		DocumentID: user.DocumentID,
		Identifier: identifier,
		Name:       name,
		Role:       user.Type,
		IssuedAt:   u.now(),
	}, nil
}
