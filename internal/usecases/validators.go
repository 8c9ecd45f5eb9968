package usecases

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// Validator проверяет поля записи до отправки на бэкенд и при необходимости
// нормализует их на месте. partial=true для обновления: проверяются только
// переданные поля.
type Validator func(fields map[string]interface{}, partial bool) error

// Допустимые статусы заказа и оплаты
var (
	OrderStatuses   = []string{"pending", "processing", "shipped", "delivered", "cancelled"}
	PaymentStatuses = []string{"pending", "paid", "failed", "refunded"}
)

const (
	couponCodeLength   = 6
	couponCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// defaultValidators — проверки по коллекциям
func defaultValidators() map[string]Validator {
	return map[string]Validator{
		domain.CollectionCoupons:       validateCoupon,
		domain.CollectionPlans:         validatePlan,
		domain.CollectionCategories:    validateCategory,
		domain.CollectionProducts:      validateProduct,
		domain.CollectionOrders:        validateOrder,
		domain.CollectionSubscriptions: validateSubscription,
		domain.CollectionInvoices:      validateInvoice,
	}
}

// NormalizeCouponCode приводит код к верхнему регистру и проверяет формат.
func NormalizeCouponCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !couponCodePattern.MatchString(code) {
		return "", domain.NewValidationError("code", "coupon code must be 6 characters (A-Z, 0-9)")
	}
	return code, nil
}

// GenerateCode возвращает случайный код купона из 6 символов A-Z0-9.
func GenerateCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(couponCodeAlphabet)))
	for i := 0; i < couponCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("генерация кода купона: %w", err)
		}
		sb.WriteByte(couponCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateSlug строит slug из названия с 6 случайными символами на конце,
// чтобы одинаковые названия не конфликтовали.
func GenerateSlug(name string) (string, error) {
	base := slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	base = strings.Trim(base, "-")

	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(alphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("генерация slug: %w", err)
		}
		suffix[i] = alphabet[n.Int64()]
	}
	if base == "" {
		return string(suffix), nil
	}
	return base + "-" + string(suffix), nil
}

// DiscountedPrice — цена после скидки в процентах, округленная до копеек.
// Только для отображения; реальную цену считает бэкенд.
func DiscountedPrice(price, discountPercent float64) float64 {
	if discountPercent < 0 {
		discountPercent = 0
	}
	if discountPercent > 100 {
		discountPercent = 100
	}
	return math.Round((price-price*discountPercent/100)*100) / 100
}

// numberField читает числовое поле: число или строка с числом.
// NaN и бесконечности числом не считаются: JSON их не передаст.
func numberField(fields map[string]interface{}, key string) (float64, bool, error) {
	v, ok, err := parseNumberField(fields, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, true, domain.NewValidationError(key, "must be a number")
	}
	return v, true, nil
}

func parseNumberField(fields map[string]interface{}, key string) (float64, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, true, domain.NewValidationError(key, "must be a number")
		}
		return f, true, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, true, domain.NewValidationError(key, "must be a number")
		}
		return f, true, nil
	}
	return 0, true, domain.NewValidationError(key, "must be a number")
}

// requireNumber проверяет и нормализует числовое поле в float64.
func requireNumber(fields map[string]interface{}, key string, partial bool, min, max float64) error {
	v, ok, err := numberField(fields, key)
	if err != nil {
		return err
	}
	if !ok {
		if partial {
			return nil
		}
		return domain.NewValidationError(key, "is required")
	}
	if v < min || v > max {
		return domain.NewValidationError(key, fmt.Sprintf("must be between %g and %g", min, max))
	}
	fields[key] = v
	return nil
}

func optionalNumber(fields map[string]interface{}, key string, min, max float64) error {
	return requireNumber(fields, key, true, min, max)
}

func requireString(fields map[string]interface{}, key string, partial bool) error {
	raw, ok := fields[key]
	if !ok {
		if partial {
			return nil
		}
		return domain.NewValidationError(key, "is required")
	}
	s, isString := raw.(string)
	if !isString || strings.TrimSpace(s) == "" {
		return domain.NewValidationError(key, "is required")
	}
	fields[key] = strings.TrimSpace(s)
	return nil
}

func oneOf(fields map[string]interface{}, key string, allowed []string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	s, _ := raw.(string)
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return domain.NewValidationError(key, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")))
}

func validateCoupon(fields map[string]interface{}, partial bool) error {
	if err := requireString(fields, "title", partial); err != nil {
		return err
	}
	if raw, ok := fields["code"]; ok || !partial {
		s, _ := raw.(string)
		code, err := NormalizeCouponCode(s)
		if err != nil {
			return err
		}
		fields["code"] = code
	}
	return optionalNumber(fields, "discount", 0, 100)
}

func validatePlan(fields map[string]interface{}, partial bool) error {
	if err := requireString(fields, "title", partial); err != nil {
		return err
	}
	if err := requireNumber(fields, "duration", partial, 1, math.MaxInt32); err != nil {
		return err
	}
	if v, ok := fields["duration"].(float64); ok {
		if v != math.Trunc(v) {
			return domain.NewValidationError("duration", "must be a whole number of months")
		}
		fields["duration"] = int(v)
	}
	return requireNumber(fields, "price", partial, 0, math.MaxFloat64)
}

func validateCategory(fields map[string]interface{}, partial bool) error {
	return requireString(fields, "name", partial)
}

func validateProduct(fields map[string]interface{}, partial bool) error {
	if err := requireString(fields, "name", partial); err != nil {
		return err
	}
	if err := requireNumber(fields, "price", partial, 0, math.MaxFloat64); err != nil {
		return err
	}
	if err := optionalNumber(fields, "discount", 0, 100); err != nil {
		return err
	}
	return optionalNumber(fields, "stock", 0, math.MaxInt32)
}

func validateOrder(fields map[string]interface{}, _ bool) error {
	if err := oneOf(fields, "orderStatus", OrderStatuses); err != nil {
		return err
	}
	return oneOf(fields, "paymentStatus", PaymentStatuses)
}

func validateSubscription(fields map[string]interface{}, _ bool) error {
	if err := optionalNumber(fields, "paidAmount", 0, math.MaxFloat64); err != nil {
		return err
	}
	return optionalNumber(fields, "currentPlanAmount", 0, math.MaxFloat64)
}

func validateInvoice(fields map[string]interface{}, partial bool) error {
	if err := requireNumber(fields, "amount", partial, 0, math.MaxFloat64); err != nil {
		return err
	}
	if v, ok := fields["amount"].(float64); ok && v <= 0 {
		return domain.NewValidationError("amount", "must be greater than 0")
	}
	return nil
}
