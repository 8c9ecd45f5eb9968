package usecases

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/events"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
)

// Типы пользователей
const (
	UserTypeAdmin    = domain.RoleAdmin
	UserTypeStaff    = "staff"
	UserTypeCustomer = "customer"
)

var userTypes = []string{UserTypeAdmin, UserTypeStaff, UserTypeCustomer}

// Поля пользователя, которые можно менять из панели
var editableUserFields = map[string]bool{
	"firstname":   true,
	"lastname":    true,
	"email":       true,
	"phone":       true,
	"type":        true,
	"isGymMember": true,
	"blocked":     true,
}

// UserInput — форма создания пользователя
type UserInput struct {
	Firstname   string `json:"firstname"`
	Lastname    string `json:"lastname"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Type        string `json:"type"`
	IsGymMember bool   `json:"isGymMember"`
}

// Validate проверяет обязательные поля
func (in *UserInput) Validate() error {
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Firstname == "" {
		return domain.NewValidationError("firstname", "is required")
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return domain.NewValidationError("email", "must be a valid email address")
	}
	if in.Phone == "" {
		return domain.NewValidationError("phone", "is required")
	}
	if in.Type == "" {
		in.Type = UserTypeCustomer
	}
	return oneOf(map[string]interface{}{"type": in.Type}, "type", userTypes)
}

// SubscriptionInput — оформление абонемента по плану
type SubscriptionInput struct {
	UserID         int64     `json:"userId"`
	PlanDocumentID string    `json:"planId"`
	PaidAmount     float64   `json:"paidAmount"`
	StartDate      time.Time `json:"startDate"`
}

// PaymentInput — платеж по абонементу
type PaymentInput struct {
	UserID                 int64   `json:"userId"`
	SubscriptionDocumentID string  `json:"subscriptionId"`
	Amount                 float64 `json:"amount"`
}

// MembershipUsecase — пользователи, абонементы и платежи.
type MembershipUsecase struct {
	records *RecordUsecase
	uploads *upload.Helper
	logger  *zap.Logger
	now     func() time.Time
}

// NewMembershipUsecase создает usecase пользователей.
func NewMembershipUsecase(records *RecordUsecase, uploads *upload.Helper, logger *zap.Logger) *MembershipUsecase {
	return &MembershipUsecase{records: records, uploads: uploads, logger: logger, now: time.Now}
}

func userPath(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
}

// CreateUser создает пользователя так же, как это делает CMS:
// 1. Загрузка аватара (если есть).
// 2. Регистрация через /auth/local/register (логин — телефон).
// 3. Дозапись профиля через PUT /users/{id}.
// Если шаг 3 не удался, зарегистрированный пользователь удаляется.
// Ответы на запись возвращаются как есть: связи в них приходят id, а не
// объектами.
func (u *MembershipUsecase) CreateUser(ctx context.Context, in UserInput, avatar []domain.FileUpload) (domain.Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(avatar) > 1 {
		return nil, domain.NewValidationError("profile", "only one file is accepted")
	}

	backend := u.records.Backend()
	var created domain.Record
	_, err := u.uploads.WithUploads(ctx, avatar, func(ids []int64) error {
		var registered struct {
			JWT  string        `json:"jwt"`
			User domain.Record `json:"user"`
		}
		err := u.records.call(ctx, func(ctx context.Context) error {
			return backend.Post(ctx, "/auth/local/register", map[string]interface{}{
				"username": in.Phone,
				"email":    in.Email,
				"password": uuid.NewString(),
			}, &registered)
		})
		if err != nil {
			return err
		}
		userID := registered.User.ID()
		if userID == 0 {
			return fmt.Errorf("%w: register returned no user id", domain.ErrShapeMismatch)
		}

		profile := map[string]interface{}{
			"firstname":   in.Firstname,
			"lastname":    in.Lastname,
			"phone":       in.Phone,
			"type":        in.Type,
			"isGymMember": in.IsGymMember,
		}
		if len(ids) > 0 {
			profile["profile"] = ids[0]
		}

		err = u.records.call(ctx, func(ctx context.Context) error {
			return backend.Put(ctx, userPath(userID), profile, &created)
		})
		if err != nil {
			u.removeUser(ctx, userID)
			return err
		}
		if created.DocumentID() == "" {
			return fmt.Errorf("%w: user %d has no documentId", domain.ErrShapeMismatch, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.records.Changed(ctx, domain.CollectionUsers, created.DocumentID(), events.OpCreate)
	u.logger.Info("пользователь создан", zap.Int64("user_id", created.ID()))
	return created, nil
}

func (u *MembershipUsecase) removeUser(ctx context.Context, id int64) {
	ctx = context.WithoutCancel(ctx)
	if err := u.records.Backend().DeletePath(ctx, userPath(id)); err != nil {
		u.logger.Warn("не удалось удалить недосозданного пользователя", zap.Int64("user_id", id), zap.Error(err))
	}
}

// UpdateUser меняет разрешенные поля профиля и, при наличии, аватар.
func (u *MembershipUsecase) UpdateUser(ctx context.Context, id int64, fields map[string]interface{}, avatar []domain.FileUpload) (domain.Record, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("id", "is required")
	}
	data := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if !editableUserFields[k] {
			return nil, domain.NewValidationError(k, "cannot be changed here")
		}
		data[k] = v
	}
	if err := oneOf(data, "type", userTypes); err != nil {
		return nil, err
	}
	for _, k := range []string{"firstname", "email", "phone"} {
		if _, ok := data[k]; ok {
			if err := requireString(data, k, true); err != nil {
				return nil, err
			}
		}
	}
	if len(avatar) > 1 {
		return nil, domain.NewValidationError("profile", "only one file is accepted")
	}
	if len(data) == 0 && len(avatar) == 0 {
		return nil, domain.NewValidationError("", "nothing to update")
	}

	var updated domain.Record
	_, err := u.uploads.WithUploads(ctx, avatar, func(ids []int64) error {
		if len(ids) > 0 {
			data["profile"] = ids[0]
		}
		return u.records.call(ctx, func(ctx context.Context) error {
			return u.records.Backend().Put(ctx, userPath(id), data, &updated)
		})
	})
	if err != nil {
		return nil, err
	}

	u.records.Changed(ctx, domain.CollectionUsers, updated.DocumentID(), events.OpUpdate)
	return updated, nil
}

// DeleteUser удаляет пользователя по числовому id.
func (u *MembershipUsecase) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.NewValidationError("id", "is required")
	}
	err := u.records.call(ctx, func(ctx context.Context) error {
		return u.records.Backend().DeletePath(ctx, userPath(id))
	})
	if err != nil {
		return err
	}
	u.records.Changed(ctx, domain.CollectionUsers, "", events.OpDelete)
	u.logger.Info("пользователь удален", zap.Int64("user_id", id))
	return nil
}

// UserByDocumentID читает пользователя с профилем, абонементами, планами
// и счетами. Плагин пользователей отвечает голым массивом.
func (u *MembershipUsecase) UserByDocumentID(ctx context.Context, documentID string) (*domain.User, error) {
	if documentID == "" {
		return nil, domain.NewValidationError("documentId", "is required")
	}
	q := domain.Query{
		Filters:  []domain.Filter{domain.Eq("documentId", documentID)},
		Populate: []string{"profile", "subscriptions.plan", "subscriptions.invoices"},
	}
	var users []domain.Record
	err := u.records.call(ctx, func(ctx context.Context) error {
		return u.records.Backend().Get(ctx, "/users", q.Values(), &users)
	})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %s: %w", documentID, domain.ErrNotFound)
	}
	return domain.Decode[domain.User](domain.CollectionUsers, users[0])
}

// AddSubscription оформляет абонемент: дата окончания = начало + срок
// плана в месяцах. Оплаченная сумма от 0 до цены плана; если она больше
// нуля, сразу создается счет.
func (u *MembershipUsecase) AddSubscription(ctx context.Context, in SubscriptionInput) (domain.Record, error) {
	if in.UserID <= 0 {
		return nil, domain.NewValidationError("userId", "is required")
	}
	if in.PlanDocumentID == "" {
		return nil, domain.NewValidationError("planId", "please select a plan")
	}
	if in.PaidAmount < 0 {
		return nil, domain.NewValidationError("paidAmount", "cannot be negative")
	}

	plan, err := findOne[domain.GymPlan](ctx, u.records, domain.CollectionPlans, in.PlanDocumentID)
	if err != nil {
		return nil, err
	}
	if in.PaidAmount > plan.Price {
		return nil, domain.NewValidationError("paidAmount", fmt.Sprintf("cannot pay more than plan price %g", plan.Price))
	}

	start := in.StartDate
	if start.IsZero() {
		start = u.now()
	}
	months := plan.Duration
	if months < 1 {
		months = 1
	}
	end := start.AddDate(0, months, 0)

	rec, err := u.records.Create(ctx, domain.CollectionSubscriptions, map[string]interface{}{
		"user":              in.UserID,
		"plan":              plan.ID,
		"startDate":         start.Format(time.RFC3339),
		"endDate":           end.Format(time.RFC3339),
		"currentPlanAmount": plan.Price,
		"paidAmount":        in.PaidAmount,
		"paid":              in.PaidAmount >= plan.Price,
	})
	if err != nil {
		return nil, err
	}

	if in.PaidAmount > 0 {
		_, err := u.records.Create(ctx, domain.CollectionInvoices, map[string]interface{}{
			"user":         in.UserID,
			"subscription": rec.ID(),
			"amount":       in.PaidAmount,
			"paymentDate":  u.now().Format(time.RFC3339),
		})
		if err != nil {
			// Абонемент уже создан; счет можно добавить платежом.
			u.logger.Warn("абонемент создан без счета",
				zap.String("subscription", rec.DocumentID()),
				zap.Error(err),
			)
			return rec, err
		}
	}
	return rec, nil
}

// AddPayment проводит платеж: 0 < сумма <= остаток. Создает счет и
// обновляет оплаченную сумму, флаг paid и список счетов абонемента.
func (u *MembershipUsecase) AddPayment(ctx context.Context, in PaymentInput) (domain.Record, error) {
	if in.Amount <= 0 {
		return nil, domain.NewValidationError("amount", "must be greater than 0")
	}

	sub, err := findOne[domain.Subscription](ctx, u.records, domain.CollectionSubscriptions, in.SubscriptionDocumentID, "invoices", "user")
	if err != nil {
		return nil, err
	}
	pending := sub.Pending()
	if in.Amount > pending {
		return nil, domain.NewValidationError("amount", fmt.Sprintf("cannot pay more than pending %g", pending))
	}
	userID := in.UserID
	if userID == 0 && sub.User != nil {
		userID = sub.User.ID
	}

	inv, err := u.records.Create(ctx, domain.CollectionInvoices, map[string]interface{}{
		"user":         userID,
		"subscription": sub.ID,
		"amount":       in.Amount,
		"paymentDate":  u.now().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	paid := sub.PaidAmount + in.Amount
	return u.records.Update(ctx, domain.CollectionSubscriptions, sub.DocumentID, map[string]interface{}{
		"paidAmount": paid,
		"paid":       paid >= sub.CurrentPlanAmount,
		"invoices":   append(sub.InvoiceIDs(), inv.ID()),
	})
}
