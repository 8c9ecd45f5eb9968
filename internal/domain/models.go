package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is a backend record as a field map. The backend assigns "id" and
// "documentId"; the dashboard never sets them itself.
type Record map[string]interface{}

// DocumentID returns the stable external identifier
func (r Record) DocumentID() string {
	return r.String("documentId")
}

// ID returns the internal numeric handle, 0 if missing
func (r Record) ID() int64 {
	return r.Int("id")
}

// String returns a string field, "" if missing or not a string
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer field, 0 if missing or not numeric
func (r Record) Int(field string) int64 {
	switch v := r[field].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Float returns a numeric field, 0 if missing
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

// Bool returns a boolean field, false if missing
func (r Record) Bool(field string) bool {
	v, _ := r[field].(bool)
	return v
}

// Meta is the pagination block of a collection response
type Meta struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// PageCountFor returns ceil(total / pageSize)
func PageCountFor(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// CollectionResult is one page of a collection
type CollectionResult struct {
	Records []Record `json:"data"`
	Meta    Meta     `json:"meta"`
}

// CheckInvariants verifies the page against its metadata
func (r *CollectionResult) CheckInvariants() error {
	if r.Meta.PageSize > 0 && len(r.Records) > r.Meta.PageSize {
		return fmt.Errorf("%w: %d records exceed pageSize %d", ErrShapeMismatch, len(r.Records), r.Meta.PageSize)
	}
	if want := PageCountFor(r.Meta.Total, r.Meta.PageSize); r.Meta.PageSize > 0 && r.Meta.PageCount != want {
		return fmt.Errorf("%w: pageCount %d, expected %d", ErrShapeMismatch, r.Meta.PageCount, want)
	}
	return nil
}

// Contains reports whether a record with documentID is on the page
func (r *CollectionResult) Contains(documentID string) bool {
	for _, rec := range r.Records {
		if rec.DocumentID() == documentID {
			return true
		}
	}
	return false
}

// FileUpload is a file selected for upload
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadedFile is a file stored in the backend media library
type UploadedFile struct {
	ID   int64   `json:"id"`
	URL  string  `json:"url"`
	Name string  `json:"name"`
	Mime string  `json:"mime,omitempty"`
	Size float64 `json:"size,omitempty"` // kilobytes, as the media library reports it
}

// UploadIDs extracts ids preserving order
func UploadIDs(files []UploadedFile) []int64 {
	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}
