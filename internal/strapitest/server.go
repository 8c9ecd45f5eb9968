// Package strapitest runs an in-memory stand-in for the content backend.
// It speaks the same REST dialect the repository client uses and records
// every request, so tests can assert both results and traffic.
package strapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// Token is the bearer token the fake accepts
const Token = "test-token"

// Request is one request the fake received
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

type failure struct {
	status  int
	message string
	times   int
}

// Server is the fake backend
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string][]domain.Record
	singles     map[string]domain.Record
	uploads     map[int64]domain.UploadedFile
	otps        map[string]string
	analytics   map[string]interface{}
	failures    map[string]*failure
	requests    []Request
	nextID      int64
	healthy     bool
}

// New starts a fake backend that is closed when the test ends
func New(t testing.TB) *Server {
	s := &Server{
		collections: make(map[string][]domain.Record),
		singles:     make(map[string]domain.Record),
		uploads:     make(map[int64]domain.UploadedFile),
		otps:        make(map[string]string),
		analytics:   map[string]interface{}{"totalUsers": 0, "totalOrders": 0},
		failures:    make(map[string]*failure),
		healthy:     true,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Get("/_health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth)
		r.Use(s.inject)

		r.Post("/upload", s.upload)
		r.Delete("/upload/files/{id}", s.deleteUpload)

		r.Post("/otp/send", s.sendOTP)
		r.Post("/otp/verify", s.verifyOTP)
		r.Post("/auth/local/register", s.register)
		r.Get("/analytics/dashboard", s.dashboard)

		r.Get("/users", s.listUsers)
		r.Get("/users/{id}", s.getUser)
		r.Put("/users/{id}", s.updateUser)
		r.Delete("/users/{id}", s.deleteUser)
		r.Get("/paginated-users", s.paginatedUsers)

		r.Get("/{collection}", s.find)
		r.Post("/{collection}", s.create)
		r.Put("/{collection}", s.updateSingle)
		r.Get("/{collection}/{documentId}", s.findOne)
		r.Put("/{collection}/{documentId}", s.update)
		r.Delete("/{collection}/{documentId}", s.delete)
	})
	return r
}

// Seed stores records in a collection, assigning id and documentId when missing
func (s *Server) Seed(collection string, records ...domain.Record) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		rec = s.stamp(copyRecord(rec))
		s.collections[collection] = append(s.collections[collection], rec)
		out = append(out, copyRecord(rec))
	}
	return out
}

// SeedN stores n generated records
func (s *Server) SeedN(collection string, n int, build func(i int) domain.Record) {
	for i := 0; i < n; i++ {
		rec := domain.Record{}
		if build != nil {
			rec = build(i)
		}
		s.Seed(collection, rec)
	}
}

// SetSingle stores a single type
func (s *Server) SetSingle(name string, rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singles[name] = copyRecord(rec)
}

// Single returns a single type as stored
func (s *Server) Single(name string) domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecord(s.singles[name])
}

// SetOTP fixes the code the fake expects for identifier
func (s *Server) SetOTP(identifier, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[identifier] = code
}

// SetAnalytics replaces the dashboard payload
func (s *Server) SetAnalytics(data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = data
}

// SetHealthy toggles the health endpoint
func (s *Server) SetHealthy(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = ok
}

// Fail makes the next times requests matching method and path answer status.
// path matches as a prefix of the request path.
func (s *Server) Fail(method, path string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &failure{status: status, message: message, times: times}
}

// Records returns a copy of a collection
func (s *Server) Records(collection string) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, len(s.collections[collection]))
	for i, r := range s.collections[collection] {
		out[i] = copyRecord(r)
	}
	return out
}

// Uploads returns the stored files ordered by id
func (s *Server) Uploads() []domain.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UploadedFile, 0, len(s.uploads))
	for _, f := range s.uploads {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Requests returns every request received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path prefix
func (s *Server) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if (method == "" || r.Method == method) && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) stamp(rec domain.Record) domain.Record {
	s.nextID++
	if _, ok := rec["id"]; !ok {
		rec["id"] = float64(s.nextID)
	}
	if rec.DocumentID() == "" {
		rec["documentId"] = fmt.Sprintf("doc%d", s.nextID)
	}
	if _, ok := rec["createdAt"]; !ok {
		rec["createdAt"] = fmt.Sprintf("2024-01-%02dT10:00:00.000Z", s.nextID%28+1)
	}
	return rec
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "UnauthorizedError", "Missing or invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var hit *failure
		for key, f := range s.failures {
			method, path, _ := strings.Cut(key, " ")
			if method == r.Method && strings.HasPrefix(r.URL.Path, path) && f.times > 0 {
				f.times--
				hit = &failure{status: f.status, message: f.message}
				break
			}
		}
		s.mu.Unlock()
		if hit != nil {
			writeError(w, hit.status, http.StatusText(hit.status), hit.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.healthy
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	s.mu.Lock()
	if single, ok := s.singles[name]; ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": single, "meta": map[string]interface{}{}})
		return
	}
	all := copyRecords(s.collections[name])
	s.mu.Unlock()
	writePage(w, r.URL.Query(), all)
}

func (s *Server) paginatedUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	all := copyRecords(s.collections[domain.CollectionUsers])
	s.mu.Unlock()
	writePage(w, r.URL.Query(), all)
}

func (s *Server) findOne(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(chi.URLParam(r, "collection"), chi.URLParam(r, "documentId"))
	if !ok {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": rec, "meta": map[string]interface{}{}})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data domain.Record `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "Missing \"data\" payload in the request body")
		return
	}
	created := s.Seed(chi.URLParam(r, "collection"), body.Data)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": created[0], "meta": map[string]interface{}{}})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data domain.Record `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "Missing \"data\" payload in the request body")
		return
	}
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "documentId")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.collections[collection] {
		if rec.DocumentID() == id {
			for k, v := range body.Data {
				rec[k] = v
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": copyRecord(rec), "meta": map[string]interface{}{}})
			return
		}
	}
	writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "documentId")

	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.collections[collection]
	for i, rec := range records {
		if rec.DocumentID() == id {
			s.collections[collection] = append(records[:i:i], records[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
}

func (s *Server) updateSingle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data domain.Record `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "Missing \"data\" payload in the request body")
		return
	}
	name := chi.URLParam(r, "collection")

	s.mu.Lock()
	rec, ok := s.singles[name]
	if !ok {
		rec = domain.Record{"id": float64(1), "documentId": name}
		s.singles[name] = rec
	}
	for k, v := range body.Data {
		rec[k] = v
	}
	out := copyRecord(rec)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out, "meta": map[string]interface{}{}})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "Files are empty")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "ValidationError", "Files are empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UploadedFile, 0, len(headers))
	for _, h := range headers {
		s.nextID++
		f := domain.UploadedFile{
			ID:   s.nextID,
			URL:  "/uploads/" + h.Filename,
			Name: h.Filename,
			Mime: h.Header.Get("Content-Type"),
			Size: float64(h.Size) / 1024,
		}
		s.uploads[f.ID] = f
		out = append(out, f)
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) deleteUpload(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.uploads[id]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFoundError", "file not found")
		return
	}
	delete(s.uploads, id)
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	all := copyRecords(s.collections[domain.CollectionUsers])
	s.mu.Unlock()

	matched := filterRecords(all, r.URL.Query())
	writeJSON(w, http.StatusOK, matched)
}

func (s *Server) userByID(id string) (domain.Record, int) {
	n, _ := strconv.ParseInt(id, 10, 64)
	for i, rec := range s.collections[domain.CollectionUsers] {
		if rec.ID() == n {
			return rec, i
		}
	}
	return nil, -1
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _ := s.userByID(chi.URLParam(r, "id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, copyRecord(rec))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var fields domain.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _ := s.userByID(chi.URLParam(r, "id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	for k, v := range fields {
		rec[k] = v
	}
	writeJSON(w, http.StatusOK, copyRecord(rec))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, i := s.userByID(chi.URLParam(r, "id"))
	if rec == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	users := s.collections[domain.CollectionUsers]
	s.collections[domain.CollectionUsers] = append(users[:i:i], users[i+1:]...)
	writeJSON(w, http.StatusOK, copyRecord(rec))
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var fields domain.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid body")
		return
	}
	email := fields.String("email")
	for _, u := range s.Records(domain.CollectionUsers) {
		if email != "" && u.String("email") == email {
			writeError(w, http.StatusBadRequest, "ApplicationError", "Email or Username are already taken")
			return
		}
	}
	delete(fields, "password")
	created := s.Seed(domain.CollectionUsers, fields)
	writeJSON(w, http.StatusOK, map[string]interface{}{"jwt": "jwt-" + created[0].DocumentID(), "user": created[0]})
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Identifier == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "identifier is required")
		return
	}
	s.mu.Lock()
	if _, ok := s.otps[body.Identifier]; !ok {
		s.otps[body.Identifier] = "123456"
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		OTP        string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid body")
		return
	}
	s.mu.Lock()
	want, ok := s.otps[body.Identifier]
	s.mu.Unlock()
	if !ok || want != body.OTP {
		writeError(w, http.StatusBadRequest, "ValidationError", "Invalid or expired OTP")
		return
	}

	var user domain.Record
	for _, u := range s.Records(domain.CollectionUsers) {
		if u.String("identifier") == body.Identifier {
			user = u
			break
		}
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jwt": "jwt-" + user.DocumentID(), "user": user})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := s.analytics
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) lookup(collection, documentID string) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.collections[collection] {
		if rec.DocumentID() == documentID {
			return copyRecord(rec), true
		}
	}
	return nil, false
}

func writePage(w http.ResponseWriter, q url.Values, all []domain.Record) {
	matched := filterRecords(all, q)
	sortRecords(matched, q)

	page := atoiOr(q.Get("pagination[page]"), 1)
	pageSize := atoiOr(q.Get("pagination[pageSize]"), 25)

	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": append([]domain.Record{}, matched[start:end]...),
		"meta": map[string]interface{}{
			"pagination": domain.Meta{
				Page:      page,
				PageSize:  pageSize,
				PageCount: domain.PageCountFor(len(matched), pageSize),
				Total:     len(matched),
			},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]interface{}{
		"data": nil,
		"error": map[string]interface{}{
			"status":  status,
			"name":    name,
			"message": message,
			"details": map[string]interface{}{},
		},
	})
}

func atoiOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func copyRecords(in []domain.Record) []domain.Record {
	out := make([]domain.Record, len(in))
	for i, r := range in {
		out[i] = copyRecord(r)
	}
	return out
}

func copyRecord(r domain.Record) domain.Record {
	if r == nil {
		return nil
	}
	raw, _ := json.Marshal(r)
	var out domain.Record
	_ = json.Unmarshal(raw, &out)
	return out
}
