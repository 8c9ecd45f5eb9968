package listview

import (
	"strings"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// Badge is a label with a tone the client maps to a color
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

// Tones
const (
	ToneWarning   = "warning"
	ToneInfo      = "info"
	ToneAccent    = "accent"
	ToneSuccess   = "success"
	ToneDanger    = "danger"
	ToneMuted     = "muted"
	ToneSecondary = "secondary"
)

var orderStatusBadges = map[string]Badge{
	"pending":    {Label: "Pending", Tone: ToneWarning},
	"processing": {Label: "Processing", Tone: ToneInfo},
	"shipped":    {Label: "Shipped", Tone: ToneAccent},
	"delivered":  {Label: "Delivered", Tone: ToneSuccess},
	"cancelled":  {Label: "Cancelled", Tone: ToneDanger},
}

var paymentStatusBadges = map[string]Badge{
	"paid":     {Label: "Paid", Tone: ToneSuccess},
	"pending":  {Label: "Pending", Tone: ToneWarning},
	"failed":   {Label: "Failed", Tone: ToneDanger},
	"refunded": {Label: "Refunded", Tone: ToneMuted},
}

var userTypeBadges = map[string]Badge{
	"admin":    {Label: "Admin", Tone: ToneAccent},
	"staff":    {Label: "Staff", Tone: ToneInfo},
	"customer": {Label: "Customer", Tone: ToneInfo},
}

// lookup falls back to the raw value on a neutral badge
func lookup(table map[string]Badge, value string) Badge {
	if b, ok := table[strings.ToLower(value)]; ok {
		return b
	}
	if value == "" {
		value = "unknown"
	}
	return Badge{Label: value, Tone: ToneSecondary}
}

func OrderStatusBadge(status string) Badge   { return lookup(orderStatusBadges, status) }
func PaymentStatusBadge(status string) Badge { return lookup(paymentStatusBadges, status) }
func UserTypeBadge(userType string) Badge    { return lookup(userTypeBadges, userType) }

// SubscriptionBadge marks a subscription active or expired
func SubscriptionBadge(expired bool) Badge {
	if expired {
		return Badge{Label: "Expired", Tone: ToneDanger}
	}
	return Badge{Label: "Active", Tone: ToneSuccess}
}

// CouponBadge marks whether a coupon can still be used
func CouponBadge(expired bool) Badge {
	if expired {
		return Badge{Label: "Expired", Tone: ToneMuted}
	}
	return Badge{Label: "Valid", Tone: ToneSuccess}
}

// badgesFor computes the badges a collection shows on each row
func badgesFor(collection string, rec domain.Record) map[string]Badge {
	switch collection {
	case domain.CollectionOrders:
		return map[string]Badge{
			"orderStatus":   OrderStatusBadge(rec.String("orderStatus")),
			"paymentStatus": PaymentStatusBadge(rec.String("paymentStatus")),
		}
	case domain.CollectionUsers, domain.CollectionPaginatedUsers:
		return map[string]Badge{"type": UserTypeBadge(rec.String("type"))}
	case domain.CollectionSubscriptions:
		return map[string]Badge{"expired": SubscriptionBadge(rec.Bool("expired"))}
	case domain.CollectionCoupons:
		return map[string]Badge{"isExpired": CouponBadge(rec.Bool("isExpired"))}
	}
	return nil
}
