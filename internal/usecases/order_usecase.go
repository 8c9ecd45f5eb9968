package usecases

import (
	"context"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
)

// OrderUsecase меняет статусы заказов. Сами заказы создает магазин.
type OrderUsecase struct {
	records *RecordUsecase
	uploads *upload.Helper
	logger  *zap.Logger
}

// NewOrderUsecase создает usecase заказов.
func NewOrderUsecase(records *RecordUsecase, uploads *upload.Helper, logger *zap.Logger) *OrderUsecase {
	return &OrderUsecase{records: records, uploads: uploads, logger: logger}
}

// UpdateStatus меняет статус доставки заказа.
func (u *OrderUsecase) UpdateStatus(ctx context.Context, documentID, status string) (domain.Record, error) {
	if status == "" {
		return nil, domain.NewValidationError("orderStatus", "is required")
	}
	return u.records.Update(ctx, domain.CollectionOrders, documentID, map[string]interface{}{
		"orderStatus": status,
	})
}

// UpdatePayment меняет статус оплаты. При отметке "paid" можно приложить
// подтверждение оплаты: файл загружается первым и ставится в поле document.
func (u *OrderUsecase) UpdatePayment(ctx context.Context, documentID, status string, proof []domain.FileUpload) (domain.Record, error) {
	fields := map[string]interface{}{"paymentStatus": status}
	if status == "" {
		return nil, domain.NewValidationError("paymentStatus", "is required")
	}
	if _, err := u.records.Validate(domain.CollectionOrders, fields, true); err != nil {
		return nil, err
	}
	if len(proof) > 0 && status != "paid" {
		return nil, domain.NewValidationError("document", "payment proof is only accepted when marking an order paid")
	}
	if len(proof) > 1 {
		return nil, domain.NewValidationError("document", "only one file is accepted")
	}

	var updated domain.Record
	_, err := u.uploads.WithUploads(ctx, proof, func(ids []int64) error {
		if len(ids) > 0 {
			fields["document"] = ids[0]
		}
		var err error
		updated, err = u.records.Update(ctx, domain.CollectionOrders, documentID, fields)
		return err
	})
	return updated, err
}
