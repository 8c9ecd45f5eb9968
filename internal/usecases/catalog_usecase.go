package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
)

// CatalogUsecase — категории и товары: мутации с загрузкой изображений.
// Поля всегда проверяются до загрузки файлов, чтобы неверная форма
// не оставляла файлы в медиатеке.
type CatalogUsecase struct {
	records *RecordUsecase
	uploads *upload.Helper
	logger  *zap.Logger
}

// NewCatalogUsecase создает usecase каталога.
func NewCatalogUsecase(records *RecordUsecase, uploads *upload.Helper, logger *zap.Logger) *CatalogUsecase {
	return &CatalogUsecase{records: records, uploads: uploads, logger: logger}
}

// CreateCategory создает категорию. Slug генерируется из названия, если
// не передан; миниатюра (не более одного файла) загружается первой.
func (u *CatalogUsecase) CreateCategory(ctx context.Context, fields map[string]interface{}, thumbnail []domain.FileUpload) (domain.Record, error) {
	data, err := u.records.Validate(domain.CollectionCategories, fields, false)
	if err != nil {
		return nil, err
	}
	if len(thumbnail) > 1 {
		return nil, domain.NewValidationError("thumbnail", "only one file is accepted")
	}
	if slug, _ := data["slug"].(string); slug == "" {
		slug, err := GenerateSlug(data["name"].(string))
		if err != nil {
			return nil, err
		}
		data["slug"] = slug
	}

	var created domain.Record
	_, err = u.uploads.WithUploads(ctx, thumbnail, func(ids []int64) error {
		if len(ids) > 0 {
			data["thumbnail"] = ids[0]
		}
		var err error
		created, err = u.records.Create(ctx, domain.CollectionCategories, data)
		return err
	})
	return created, err
}

// UpdateCategory обновляет категорию; новая миниатюра заменяет старую.
func (u *CatalogUsecase) UpdateCategory(ctx context.Context, documentID string, fields map[string]interface{}, thumbnail []domain.FileUpload) (domain.Record, error) {
	data, err := u.records.Validate(domain.CollectionCategories, fields, true)
	if err != nil {
		return nil, err
	}
	if len(thumbnail) > 1 {
		return nil, domain.NewValidationError("thumbnail", "only one file is accepted")
	}

	var updated domain.Record
	_, err = u.uploads.WithUploads(ctx, thumbnail, func(ids []int64) error {
		if len(ids) > 0 {
			data["thumbnail"] = ids[0]
		}
		var err error
		updated, err = u.records.Update(ctx, domain.CollectionCategories, documentID, data)
		return err
	})
	return updated, err
}

// CreateProduct загружает изображения и создает товар с их id в порядке загрузки.
func (u *CatalogUsecase) CreateProduct(ctx context.Context, fields map[string]interface{}, images []domain.FileUpload) (domain.Record, error) {
	data, err := u.records.Validate(domain.CollectionProducts, fields, false)
	if err != nil {
		return nil, err
	}

	var created domain.Record
	_, err = u.uploads.WithUploads(ctx, images, func(ids []int64) error {
		if len(ids) > 0 {
			data["images"] = ids
		}
		var err error
		created, err = u.records.Create(ctx, domain.CollectionProducts, data)
		return err
	})
	return created, err
}

// UpdateProduct обновляет товар. Новые изображения добавляются после
// существующих. Если в fields передан список "images", он считается
// списком оставленных изображений и заменяет текущий.
func (u *CatalogUsecase) UpdateProduct(ctx context.Context, documentID string, fields map[string]interface{}, images []domain.FileUpload) (domain.Record, error) {
	data, err := u.records.Validate(domain.CollectionProducts, fields, true)
	if err != nil {
		return nil, err
	}

	var keep []int64
	if raw, ok := data["images"]; ok {
		if keep, err = idList(raw); err != nil {
			return nil, err
		}
	} else if len(images) > 0 {
		current, err := findOne[domain.Product](ctx, u.records, domain.CollectionProducts, documentID, "images")
		if err != nil {
			return nil, err
		}
		keep = current.ImageIDs()
	}

	var updated domain.Record
	_, err = u.uploads.WithUploads(ctx, images, func(ids []int64) error {
		if keep != nil || len(ids) > 0 {
			data["images"] = append(append([]int64{}, keep...), ids...)
		}
		var err error
		updated, err = u.records.Update(ctx, domain.CollectionProducts, documentID, data)
		return err
	})
	return updated, err
}

// idList разбирает список id из JSON или формы.
func idList(raw interface{}) ([]int64, error) {
	switch v := raw.(type) {
	case []int64:
		return v, nil
	case []interface{}:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			id, err := idValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil
	case []string:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			id, err := idValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil
	case nil:
		return []int64{}, nil
	}
	return nil, domain.NewValidationError("images", "must be a list of file ids")
}

func idValue(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case json.Number:
		return t.Int64()
	case string:
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, domain.NewValidationError("images", fmt.Sprintf("invalid file id %q", t))
		}
		return id, nil
	}
	return 0, domain.NewValidationError("images", "must be a list of file ids")
}
