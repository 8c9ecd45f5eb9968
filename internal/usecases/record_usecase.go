package usecases

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/events"
)

// Invalidator сбрасывает закэшированные страницы коллекции
type Invalidator interface {
	Invalidate(ctx context.Context, collection string) error
}

// RecordUsecase — общие мутации записей любой коллекции.
// Порядок всегда один:
// 1. Локальная проверка полей (ошибка — запрос не уходит).
// 2. Запрос на бэкенд под семафором.
// 3. Сброс кэша коллекции и событие collection_changed, чтобы открытые
// списки перечитались.
type RecordUsecase struct {
	backend     domain.Backend
	invalidator Invalidator
	bus         *events.EventBus
	logger      *zap.Logger
	rateLimiter *RateLimiter

	mu         sync.RWMutex
	validators map[string]Validator
	// Коллекции, которые устаревают вместе с ключевой
	related map[string][]string
}

// NewRecordUsecase создает usecase со стандартными проверками коллекций.
// invalidator и bus могут быть nil.
func NewRecordUsecase(
	backend domain.Backend,
	invalidator Invalidator,
	bus *events.EventBus,
	logger *zap.Logger,
	maxConcurrentOps int,
) *RecordUsecase {
	return &RecordUsecase{
		backend:     backend,
		invalidator: invalidator,
		bus:         bus,
		logger:      logger,
		rateLimiter: NewRateLimiter(maxConcurrentOps),
		validators:  defaultValidators(),
		related: map[string][]string{
			domain.CollectionUsers:         {domain.CollectionPaginatedUsers},
			domain.CollectionSubscriptions: {domain.CollectionUsers, domain.CollectionPaginatedUsers},
			domain.CollectionInvoices:      {domain.CollectionSubscriptions, domain.CollectionUsers},
			domain.CollectionProducts:      {domain.CollectionCategories},
			domain.CollectionOrders:        {domain.CollectionUsers},
		},
	}
}

// RegisterValidator заменяет проверку коллекции.
func (u *RecordUsecase) RegisterValidator(collection string, v Validator) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.validators[collection] = v
}

// Validate прогоняет проверку коллекции над копией полей и возвращает
// нормализованную копию.
func (u *RecordUsecase) Validate(collection string, fields map[string]interface{}, partial bool) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	u.mu.RLock()
	v, ok := u.validators[collection]
	u.mu.RUnlock()
	if !ok {
		return out, nil
	}
	if err := v(out, partial); err != nil {
		return nil, err
	}
	return out, nil
}

// Create создает запись и возвращает ее в том виде, в каком ее сохранил бэкенд.
func (u *RecordUsecase) Create(ctx context.Context, collection string, fields map[string]interface{}) (domain.Record, error) {
	data, err := u.Validate(collection, fields, false)
	if err != nil {
		return nil, err
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	rec, err := u.backend.Create(ctx, collection, data)
	if err != nil {
		u.logger.Warn("ошибка создания записи",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil, err
	}

	u.Changed(ctx, collection, rec.DocumentID(), events.OpCreate)
	u.logger.Info("запись создана",
		zap.String("collection", collection),
		zap.String("document_id", rec.DocumentID()),
	)
	return rec, nil
}

// Update применяет частичный набор полей к записи.
func (u *RecordUsecase) Update(ctx context.Context, collection, documentID string, fields map[string]interface{}) (domain.Record, error) {
	if documentID == "" {
		return nil, domain.NewValidationError("documentId", "is required")
	}
	data, err := u.Validate(collection, fields, true)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.NewValidationError("", "nothing to update")
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	rec, err := u.backend.Update(ctx, collection, documentID, data)
	if err != nil {
		u.logger.Warn("ошибка обновления записи",
			zap.String("collection", collection),
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return nil, err
	}

	u.Changed(ctx, collection, documentID, events.OpUpdate)
	u.logger.Info("запись обновлена",
		zap.String("collection", collection),
		zap.String("document_id", documentID),
	)
	return rec, nil
}

// Delete удаляет запись.
func (u *RecordUsecase) Delete(ctx context.Context, collection, documentID string) error {
	if documentID == "" {
		return domain.NewValidationError("documentId", "is required")
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	if err := u.backend.Delete(ctx, collection, documentID); err != nil {
		u.logger.Warn("ошибка удаления записи",
			zap.String("collection", collection),
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return err
	}

	u.Changed(ctx, collection, documentID, events.OpDelete)
	u.logger.Info("запись удалена",
		zap.String("collection", collection),
		zap.String("document_id", documentID),
	)
	return nil
}

// Changed сбрасывает кэш коллекции (и связанных) синхронно, до ответа
// клиенту, и публикует событие для открытых представлений.
func (u *RecordUsecase) Changed(ctx context.Context, collection, documentID string, op events.Op) {
	collections := append([]string{collection}, u.related[collection]...)
	for _, c := range collections {
		if u.invalidator != nil {
			if err := u.invalidator.Invalidate(ctx, c); err != nil {
				u.logger.Warn("не удалось сбросить кэш",
					zap.String("collection", c),
					zap.Error(err),
				)
			}
		}
		if u.bus != nil {
			id := documentID
			if c != collection {
				id = ""
			}
			u.bus.PublishCollectionChanged(c, id, op)
		}
	}
}

// Backend дает доступ к бэкенду для нестандартных эндпоинтов.
func (u *RecordUsecase) Backend() domain.Backend {
	return u.backend
}

// call выполняет произвольное обращение к бэкенду под семафором.
func (u *RecordUsecase) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()
	return fn(ctx)
}

// findOne читает одну запись по documentId напрямую с бэкенда, минуя кэш.
func findOne[T any, PT interface {
	*T
	domain.Shape
}](ctx context.Context, u *RecordUsecase, collection, documentID string, populate ...string) (*T, error) {
	if documentID == "" {
		return nil, domain.NewValidationError("documentId", "is required")
	}
	q := domain.Query{
		Filters:    []domain.Filter{domain.Eq("documentId", documentID)},
		Populate:   populate,
		Pagination: &domain.Pagination{Page: 1, PageSize: 1},
	}

	var res *domain.CollectionResult
	err := u.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = u.backend.Find(ctx, collection, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, documentID, domain.ErrNotFound)
	}
	return domain.Decode[T, PT](collection, res.Records[0])
}
