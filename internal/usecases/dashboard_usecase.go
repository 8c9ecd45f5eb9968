package usecases

import (
	"context"

	"go.uber.org/zap"
)

// DashboardUsecase отдает сводку для главной панели как есть.
type DashboardUsecase struct {
	records *RecordUsecase
	logger  *zap.Logger
}

// NewDashboardUsecase создает usecase аналитики.
func NewDashboardUsecase(records *RecordUsecase, logger *zap.Logger) *DashboardUsecase {
	return &DashboardUsecase{records: records, logger: logger}
}

// Analytics читает /analytics/dashboard.
func (u *DashboardUsecase) Analytics(ctx context.Context) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	err := u.records.call(ctx, func(ctx context.Context) error {
		return u.records.Backend().Get(ctx, "/analytics/dashboard", nil, &out)
	})
	if err != nil {
		u.logger.Warn("не удалось получить аналитику", zap.Error(err))
		return nil, err
	}
	return out, nil
}
