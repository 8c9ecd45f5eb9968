package usecases

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/events"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
)

// Разделы главной страницы
const (
	SectionBanners = "banners"
	SectionAbout   = "about"
	SectionReviews = "reviews"
)

// SectionInput — новое содержимое раздела. Для banners/about — id
// изображений в порядке показа, для reviews — список отзывов.
type SectionInput struct {
	ImageIDs []int64        `json:"imageIds"`
	Reviews  []domain.Review `json:"reviews"`
}

// HomeUsecase редактирует single type "home-page" по разделам.
type HomeUsecase struct {
	records *RecordUsecase
	uploads *upload.Helper
	logger  *zap.Logger
}

// NewHomeUsecase создает usecase главной страницы.
func NewHomeUsecase(records *RecordUsecase, uploads *upload.Helper, logger *zap.Logger) *HomeUsecase {
	return &HomeUsecase{records: records, uploads: uploads, logger: logger}
}

// Get читает главную страницу со всеми связями.
func (u *HomeUsecase) Get(ctx context.Context) (*domain.HomePage, error) {
	var rec domain.Record
	err := u.records.call(ctx, func(ctx context.Context) error {
		var err error
		rec, err = u.records.Backend().FindSingle(ctx, domain.SingleHomePage, domain.Query{Populate: domain.PopulateAll})
		return err
	})
	if err != nil {
		return nil, err
	}
	return domain.Decode[domain.HomePage](domain.SingleHomePage, rec)
}

// sectionPayload строит частичное обновление одного раздела.
func sectionPayload(section string, in SectionInput) (map[string]interface{}, error) {
	switch section {
	case SectionBanners:
		return map[string]interface{}{"top_banners": nonNilIDs(in.ImageIDs)}, nil
	case SectionAbout:
		return map[string]interface{}{"about_images": nonNilIDs(in.ImageIDs)}, nil
	case SectionReviews:
		reviews := make([]map[string]interface{}, 0, len(in.Reviews))
		for i, r := range in.Reviews {
			if r.Stars < 0 || r.Stars > 5 {
				return nil, domain.NewValidationError(fmt.Sprintf("reviews[%d].stars", i), "must be between 0 and 5")
			}
			if strings.TrimSpace(r.Name) == "" {
				return nil, domain.NewValidationError(fmt.Sprintf("reviews[%d].name", i), "is required")
			}
			reviews = append(reviews, map[string]interface{}{
				"name":        strings.TrimSpace(r.Name),
				"description": r.Description,
				"stars":       r.Stars,
			})
		}
		return map[string]interface{}{"reviews": reviews}, nil
	}
	return nil, domain.NewValidationError("section", fmt.Sprintf("unknown section %q", section))
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// SaveSection сохраняет один раздел, остальные не трогает.
func (u *HomeUsecase) SaveSection(ctx context.Context, section string, in SectionInput) error {
	payload, err := sectionPayload(section, in)
	if err != nil {
		return err
	}

	err = u.records.call(ctx, func(ctx context.Context) error {
		_, err := u.records.Backend().UpdateSingle(ctx, domain.SingleHomePage, payload)
		return err
	})
	if err != nil {
		u.logger.Warn("ошибка сохранения раздела", zap.String("section", section), zap.Error(err))
		return err
	}

	u.records.Changed(ctx, domain.SingleHomePage, "", events.OpUpdate)
	u.logger.Info("раздел главной страницы сохранен", zap.String("section", section))
	return nil
}

// UploadSectionImages загружает изображения и добавляет их в конец раздела
// banners или about. Если сохранение не удалось, файлы удаляются.
func (u *HomeUsecase) UploadSectionImages(ctx context.Context, section string, files []domain.FileUpload) (*domain.HomePage, error) {
	if section != SectionBanners && section != SectionAbout {
		return nil, domain.NewValidationError("section", "images can only be added to banners or about")
	}
	if len(files) == 0 {
		return nil, domain.NewValidationError("files", "at least one file is required")
	}

	page, err := u.Get(ctx)
	if err != nil {
		return nil, err
	}
	current := page.TopBanners
	if section == SectionAbout {
		current = page.AboutImages
	}
	ids := make([]int64, 0, len(current)+len(files))
	for _, m := range current {
		ids = append(ids, m.ID)
	}

	_, err = u.uploads.WithUploads(ctx, files, func(uploaded []int64) error {
		return u.SaveSection(ctx, section, SectionInput{ImageIDs: append(ids, uploaded...)})
	})
	if err != nil {
		return nil, err
	}
	return u.Get(ctx)
}
