package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Collection names as exposed by the backend REST API
const (
	CollectionProducts       = "products"
	CollectionCategories     = "categories"
	CollectionOrders         = "orders"
	CollectionUsers          = "users"
	CollectionPaginatedUsers = "paginated-users"
	CollectionSubscriptions  = "subscriptions"
	CollectionCoupons        = "coupons"
	CollectionPlans          = "gym-plans"
	CollectionInvoices       = "invoices"
	SingleHomePage           = "home-page"
)

// Shape is implemented by typed records that can check what the backend sent
type Shape interface {
	CheckShape() error
}

// Decode converts a loosely typed record into T and checks its shape.
// A mismatch is reported as *ShapeError naming the collection and field.
func Decode[T any, PT interface {
	*T
	Shape
}](collection string, r Record) (*T, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, &ShapeError{Collection: collection, Field: "*", Reason: err.Error()}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		field := "*"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field = typeErr.Field
		}
		return nil, &ShapeError{Collection: collection, Field: field, Reason: err.Error()}
	}
	if err := PT(&out).CheckShape(); err != nil {
		var shapeErr *ShapeError
		if errors.As(err, &shapeErr) && shapeErr.Collection == "" {
			shapeErr.Collection = collection
		}
		return nil, err
	}
	return &out, nil
}

// DecodeAll decodes every record on a page
func DecodeAll[T any, PT interface {
	*T
	Shape
}](collection string, records []Record) ([]*T, error) {
	out := make([]*T, 0, len(records))
	for _, r := range records {
		v, err := Decode[T, PT](collection, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func requireDocumentID(id string) error {
	if id == "" {
		return &ShapeError{Field: "documentId", Reason: "missing"}
	}
	return nil
}

// Timestamp accepts both RFC 3339 timestamps and bare dates
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Media is a file from the media library
type Media struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Mime string `json:"mime,omitempty"`
}

// Category groups products
type Category struct {
	ID           int64     `json:"id"`
	DocumentID   string    `json:"documentId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Slug         string    `json:"slug"`
	Thumbnail    *Media    `json:"thumbnail"`
	ProductCount int       `json:"productCount"`
	CreatedAt    Timestamp `json:"createdAt"`
	UpdatedAt    Timestamp `json:"updatedAt"`
}

func (c *Category) CheckShape() error {
	if err := requireDocumentID(c.DocumentID); err != nil {
		return err
	}
	if c.Name == "" {
		return &ShapeError{Field: "name", Reason: "missing"}
	}
	return nil
}

// Product is a shop item
type Product struct {
	ID             int64     `json:"id"`
	DocumentID     string    `json:"documentId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          float64   `json:"price"`
	Discount       float64   `json:"discount"`
	Stock          int       `json:"stock"`
	Images         []Media   `json:"images"`
	Thumbnail      *Media    `json:"thumbnail"`
	Category       *Category `json:"category"`
	Tags           []string  `json:"tags"`
	CollectionType string    `json:"collectionType"`
	IsVeg          bool      `json:"isVeg"`
	CreatedAt      Timestamp `json:"createdAt"`
	UpdatedAt      Timestamp `json:"updatedAt"`
}

func (p *Product) CheckShape() error {
	if err := requireDocumentID(p.DocumentID); err != nil {
		return err
	}
	if p.Price < 0 {
		return &ShapeError{Field: "price", Reason: "negative"}
	}
	return nil
}

// ImageIDs lists the ids of the attached images in order
func (p *Product) ImageIDs() []int64 {
	ids := make([]int64, len(p.Images))
	for i, m := range p.Images {
		ids[i] = m.ID
	}
	return ids
}

// User is a member, staff or admin account
type User struct {
	ID            int64          `json:"id"`
	DocumentID    string         `json:"documentId"`
	Username      string         `json:"username"`
	Email         string         `json:"email"`
	Firstname     string         `json:"firstname"`
	Lastname      string         `json:"lastname"`
	Phone         string         `json:"phone"`
	Identifier    string         `json:"identifier"`
	Type          string         `json:"type"`
	IsGymMember   bool           `json:"isGymMember"`
	Blocked       bool           `json:"blocked"`
	Profile       *Media         `json:"profile"`
	Subscriptions []Subscription `json:"subscriptions"`
	CreatedAt     Timestamp      `json:"createdAt"`
}

func (u *User) CheckShape() error {
	return requireDocumentID(u.DocumentID)
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// GymPlan is a membership plan; Duration is in months
type GymPlan struct {
	ID         int64   `json:"id"`
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Duration   int     `json:"duration"`
	Price      float64 `json:"price"`
}

func (p *GymPlan) CheckShape() error {
	if err := requireDocumentID(p.DocumentID); err != nil {
		return err
	}
	if p.Title == "" {
		return &ShapeError{Field: "title", Reason: "missing"}
	}
	return nil
}

// Invoice is one payment against a subscription
type Invoice struct {
	ID          int64     `json:"id"`
	DocumentID  string    `json:"documentId"`
	Amount      float64   `json:"amount"`
	PaymentDate Timestamp `json:"paymentDate"`
}

func (i *Invoice) CheckShape() error {
	return requireDocumentID(i.DocumentID)
}

// Subscription ties a user to a plan for a period
type Subscription struct {
	ID                int64     `json:"id"`
	DocumentID        string    `json:"documentId"`
	StartDate         Timestamp `json:"startDate"`
	EndDate           Timestamp `json:"endDate"`
	CurrentPlanAmount float64   `json:"currentPlanAmount"`
	PaidAmount        float64   `json:"paidAmount"`
	Paid              bool      `json:"paid"`
	Expired           bool      `json:"expired"`
	Plan              *GymPlan  `json:"plan"`
	User              *User     `json:"user"`
	Invoices          []Invoice `json:"invoices"`
}

func (s *Subscription) CheckShape() error {
	return requireDocumentID(s.DocumentID)
}

// Pending is what remains to be paid on the subscription
func (s *Subscription) Pending() float64 {
	return s.CurrentPlanAmount - s.PaidAmount
}

// InvoiceIDs lists the ids of the subscription's invoices
func (s *Subscription) InvoiceIDs() []int64 {
	ids := make([]int64, len(s.Invoices))
	for i, inv := range s.Invoices {
		ids[i] = inv.ID
	}
	return ids
}

// Order is a shop order
type Order struct {
	ID            int64     `json:"id"`
	DocumentID    string    `json:"documentId"`
	Amount        float64   `json:"amount"`
	Quantity      int       `json:"quantity"`
	OrderStatus   string    `json:"orderStatus"`
	PaymentStatus string    `json:"paymentStatus"`
	User          *User     `json:"user"`
	Product       *Product  `json:"product"`
	Document      *Media    `json:"document"`
	CreatedAt     Timestamp `json:"createdAt"`
}

func (o *Order) CheckShape() error {
	return requireDocumentID(o.DocumentID)
}

// Coupon is a discount code
type Coupon struct {
	ID         int64   `json:"id"`
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Code       string  `json:"code"`
	Discount   float64 `json:"discount"`
	UsageCount int     `json:"usageCount"`
	IsExpired  bool    `json:"isExpired"`
}

func (c *Coupon) CheckShape() error {
	if err := requireDocumentID(c.DocumentID); err != nil {
		return err
	}
	if c.Code == "" {
		return &ShapeError{Field: "code", Reason: "missing"}
	}
	return nil
}

// Review is a testimonial on the home page
type Review struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
}

// HomePage is the home page single type
type HomePage struct {
	ID          int64    `json:"id"`
	DocumentID  string   `json:"documentId"`
	TopBanners  []Media  `json:"top_banners"`
	AboutImages []Media  `json:"about_images"`
	Reviews     []Review `json:"reviews"`
}

func (h *HomePage) CheckShape() error {
	for i, r := range h.Reviews {
		if r.Stars < 0 || r.Stars > 5 {
			return &ShapeError{Field: fmt.Sprintf("reviews[%d].stars", i), Reason: "out of range"}
		}
	}
	return nil
}

// Relations that were not populated arrive as bare numeric ids. These
// decoders accept both forms so a write response or a shallow read still
// decodes.

func bareID(b []byte) (int64, bool) {
	s := strings.TrimSpace(string(b))
	if s == "" || (s[0] < '0' || s[0] > '9') {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Media) UnmarshalJSON(b []byte) error {
	if id, ok := bareID(b); ok {
		*m = Media{ID: id}
		return nil
	}
	type plain Media
	return json.Unmarshal(b, (*plain)(m))
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Category) UnmarshalJSON(b []byte) error {
	if id, ok := bareID(b); ok {
		*c = Category{ID: id}
		return nil
	}
	type plain Category
	return json.Unmarshal(b, (*plain)(c))
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Product) UnmarshalJSON(b []byte) error {
	if id, ok := bareID(b); ok {
		*p = Product{ID: id}
		return nil
	}
	type plain Product
	return json.Unmarshal(b, (*plain)(p))
}

// UnmarshalJSON implements json.Unmarshaler
func (u *User) UnmarshalJSON(b []byte) error {
	if id, ok := bareID(b); ok {
		*u = User{ID: id}
		return nil
	}
	type plain User
	return json.Unmarshal(b, (*plain)(u))
}

// UnmarshalJSON implements json.Unmarshaler
func (p *GymPlan) UnmarshalJSON(b []byte) error {
	if id, ok := bareID(b); ok {
		*p = GymPlan{ID: id}
		return nil
	}
	type plain GymPlan
	return json.Unmarshal(b, (*plain)(p))
}

// UnmarshalJSON implements json.Unmarshaler
func (i *Invoice) UnmarshalJSON(b []byte) error {
	if id, ok := bareID(b); ok {
		*i = Invoice{ID: id}
		return nil
	}
	type plain Invoice
	return json.Unmarshal(b, (*plain)(i))
}
