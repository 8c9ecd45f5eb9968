package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

const (
	// Ограничения на повторы чтения. Ждать долго нет смысла: админ смотрит на экран.
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	defaultTimeout      = 15 * time.Second

	// Больше этого ответ бэкенда не читаем, чтобы не съесть всю память.
	maxResponseBytes = 16 << 20
)

// HealthStatus хранит последнее известное состояние бэкенда.
type HealthStatus struct {
	IsHealthy bool
	LastCheck time.Time
	LastError error
}

// Options описывает подключение к CMS.
type Options struct {
	BaseURL     string // http://cms:1337
	Prefix      string // /api
	Token       string // статический bearer-токен
	HealthPath  string // /_health
	Timeout     time.Duration
	ReadRetries int
	HTTPClient  *http.Client // для тестов; по умолчанию собственный клиент
}

// StrapiRepository — клиент REST API headless CMS.
// Сам он ничего не хранит: все записи живут на стороне CMS, а мы только
// формируем запросы, разбираем ответы и следим за здоровьем соединения.
//
// Повторы делаются только для GET (чтение и health check). Мутации никогда
// не повторяются автоматически: повторный POST мог бы создать дубликат.
type StrapiRepository struct {
	baseURL    string
	apiBase    string
	token      string
	healthPath string
	client     *retryablehttp.Client
	logger     *zap.Logger

	// Атомарное хранилище статуса здоровья, чтобы /health читал его без блокировок.
	healthStatus atomic.Value // хранит *HealthStatus
}

// NewStrapiRepository создает клиент. Соединение не проверяется:
// этим занимается процесс старта через CheckConnection.
func NewStrapiRepository(opts Options, logger *zap.Logger) *StrapiRepository {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}
	if opts.HealthPath == "" {
		opts.HealthPath = "/_health"
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	prefix := strings.Trim(opts.Prefix, "/")
	apiBase := base
	if prefix != "" {
		apiBase = base + "/" + prefix
	}

	client := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	}
	client.HTTPClient.Timeout = opts.Timeout
	client.RetryMax = opts.ReadRetries
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.CheckRetry = readOnlyRetryPolicy
	// Отдаем последний ответ как есть, чтобы разобрать сообщение об ошибке из тела.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = &retryLogger{logger: logger.Sugar()}

	repo := &StrapiRepository{
		baseURL:    base,
		apiBase:    apiBase,
		token:      opts.Token,
		healthPath: "/" + strings.TrimLeft(opts.HealthPath, "/"),
		client:     client,
		logger:     logger,
	}

	// Пока не проверили, считаем бэкенд недоступным.
	repo.healthStatus.Store(&HealthStatus{IsHealthy: false, LastCheck: time.Now()})
	return repo
}

type idempotentKey struct{}

// readOnlyRetryPolicy пропускает к стандартной политике только запросы,
// помеченные как идемпотентные. Для остальных первая же ошибка окончательная.
func readOnlyRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if ok, _ := ctx.Value(idempotentKey{}).(bool); !ok {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *zap.SugaredLogger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}

// request описывает один вызов API.
type request struct {
	method      string
	path        string // относительно apiBase, начинается с "/"
	query       string
	body        []byte
	contentType string
	absolute    bool // path уже содержит полный URL
}

// envelope — стандартная обертка ответа CMS.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Pagination *domain.Meta `json:"pagination"`
	} `json:"meta"`
}

// errorBody — формат ошибки CMS: {"error": {"status", "name", "message"}}.
type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// do выполняет запрос и при out != nil декодирует тело ответа.
func (r *StrapiRepository) do(ctx context.Context, req request, out interface{}) error {
	target := r.apiBase + req.path
	if req.absolute {
		target = req.path
	}
	if req.query != "" {
		target += "?" + req.query
	}

	if req.method == http.MethodGet {
		ctx = context.WithValue(ctx, idempotentKey{}, true)
	}

	var payload interface{}
	if req.body != nil {
		payload = req.body
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.method, target, payload)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s %s: %w", req.method, req.path, err)
	}
	if r.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.token)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		r.logger.Warn("запрос к бэкенду не выполнен",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		r.updateHealthStatus(false, err)
		return fmt.Errorf("%w: %s %s: %w", domain.ErrBackend, req.method, req.path, err)
	}
	defer resp.Body.Close()
	r.updateHealthStatus(true, nil)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: чтение ответа %s %s: %w", domain.ErrBackend, req.method, req.path, err)
	}

	r.logger.Debug("запрос к бэкенду",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseAPIError(req.method, req.path, resp.StatusCode, raw)
		if resp.StatusCode >= http.StatusInternalServerError {
			r.logger.Error("бэкенд вернул ошибку", zap.Error(apiErr))
		} else {
			r.logger.Warn("бэкенд отклонил запрос", zap.Error(apiErr))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: ответ %s %s не разобран: %v", domain.ErrShapeMismatch, req.method, req.path, err)
	}
	return nil
}

// parseAPIError достает сообщение сервера, если оно есть.
func parseAPIError(method, path string, status int, raw []byte) *domain.APIError {
	apiErr := &domain.APIError{Method: method, Path: path, Status: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Name = body.Error.Name
		apiErr.Message = body.Error.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

func jsonBody(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации тела запроса: %w", err)
	}
	return b, nil
}

func collectionPath(collection string) string {
	return "/" + url.PathEscape(strings.Trim(collection, "/"))
}

// Find возвращает одну страницу коллекции.
// Номер страницы за пределами данных передается бэкенду как есть:
// он вернет пустой список и сам номер страницы в meta.
func (r *StrapiRepository) Find(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := r.do(ctx, request{method: http.MethodGet, path: collectionPath(collection), query: q.Encode()}, &raw); err != nil {
		return nil, err
	}

	result, err := decodeCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("коллекция %s: %w", collection, err)
	}
	if err := result.CheckInvariants(); err != nil {
		r.logger.Warn("ответ не сходится с метаданными страницы",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil, fmt.Errorf("коллекция %s: %w", collection, err)
	}
	return result, nil
}

// decodeCollection понимает и обертку {data, meta}, и голый массив,
// который отдает плагин пользователей.
func decodeCollection(raw json.RawMessage) (*domain.CollectionResult, error) {
	trimmed := bytes.TrimSpace(raw)
	var records []domain.Record
	var meta *domain.Meta

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrShapeMismatch, err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrShapeMismatch, err)
		}
		if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
			if err := json.Unmarshal(env.Data, &records); err != nil {
				return nil, fmt.Errorf("%w: data is not a list: %v", domain.ErrShapeMismatch, err)
			}
		}
		meta = env.Meta.Pagination
	}

	if records == nil {
		records = []domain.Record{}
	}
	if meta == nil {
		// Без метаданных считаем, что все пришло одной страницей.
		meta = &domain.Meta{Page: 1, PageSize: len(records), Total: len(records)}
		meta.PageCount = domain.PageCountFor(meta.Total, meta.PageSize)
	}
	return &domain.CollectionResult{Records: records, Meta: *meta}, nil
}

func decodeRecord(raw json.RawMessage) (domain.Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrShapeMismatch, err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, domain.ErrNotFound
	}
	var rec domain.Record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return nil, fmt.Errorf("%w: data is not an object: %v", domain.ErrShapeMismatch, err)
	}
	return rec, nil
}

func (r *StrapiRepository) writeData(ctx context.Context, method, path string, fields map[string]interface{}) (domain.Record, error) {
	body, err := jsonBody(map[string]interface{}{"data": fields})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := r.do(ctx, request{method: method, path: path, body: body, contentType: "application/json"}, &raw); err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// Create создает запись и возвращает ее в том виде, в каком ее сохранил бэкенд.
func (r *StrapiRepository) Create(ctx context.Context, collection string, fields map[string]interface{}) (domain.Record, error) {
	return r.writeData(ctx, http.MethodPost, collectionPath(collection), fields)
}

// Update применяет частичный набор полей к записи.
func (r *StrapiRepository) Update(ctx context.Context, collection, documentID string, fields map[string]interface{}) (domain.Record, error) {
	if documentID == "" {
		return nil, domain.NewValidationError("documentId", "is required")
	}
	return r.writeData(ctx, http.MethodPut, collectionPath(collection)+"/"+url.PathEscape(documentID), fields)
}

// Delete удаляет запись.
func (r *StrapiRepository) Delete(ctx context.Context, collection, documentID string) error {
	if documentID == "" {
		return domain.NewValidationError("documentId", "is required")
	}
	return r.do(ctx, request{method: http.MethodDelete, path: collectionPath(collection) + "/" + url.PathEscape(documentID)}, nil)
}

// Upload отправляет файлы одним multipart-запросом в поле "files".
// Бэкенд возвращает описания файлов в порядке отправки.
func (r *StrapiRepository) Upload(ctx context.Context, files []domain.FileUpload) ([]domain.UploadedFile, error) {
	if len(files) == 0 {
		return nil, domain.NewValidationError("files", "at least one file is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("ошибка формирования multipart: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("ошибка записи файла %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка формирования multipart: %w", err)
	}

	var uploaded []domain.UploadedFile
	err := r.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, &uploaded)
	if err != nil {
		return nil, err
	}
	if len(uploaded) != len(files) {
		return uploaded, fmt.Errorf("%w: отправлено %d файлов, сохранено %d", domain.ErrShapeMismatch, len(files), len(uploaded))
	}
	return uploaded, nil
}

// DeleteUpload удаляет файл из медиатеки.
func (r *StrapiRepository) DeleteUpload(ctx context.Context, id int64) error {
	return r.do(ctx, request{method: http.MethodDelete, path: "/upload/files/" + strconv.FormatInt(id, 10)}, nil)
}

// FindSingle читает single type, например "home-page".
func (r *StrapiRepository) FindSingle(ctx context.Context, singleType string, q domain.Query) (domain.Record, error) {
	var raw json.RawMessage
	if err := r.do(ctx, request{method: http.MethodGet, path: collectionPath(singleType), query: q.Encode()}, &raw); err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// UpdateSingle записывает single type целиком или частично.
func (r *StrapiRepository) UpdateSingle(ctx context.Context, singleType string, fields map[string]interface{}) (domain.Record, error) {
	return r.writeData(ctx, http.MethodPut, collectionPath(singleType), fields)
}

// Get обращается к нестандартному эндпоинту (otp, плагин пользователей, аналитика).
func (r *StrapiRepository) Get(ctx context.Context, path string, params url.Values, out interface{}) error {
	query := ""
	if params != nil {
		query = params.Encode()
	}
	return r.do(ctx, request{method: http.MethodGet, path: "/" + strings.TrimLeft(path, "/"), query: query}, out)
}

// Post отправляет JSON на нестандартный эндпоинт.
func (r *StrapiRepository) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return r.sendJSON(ctx, http.MethodPost, path, body, out)
}

// Put отправляет JSON методом PUT.
func (r *StrapiRepository) Put(ctx context.Context, path string, body interface{}, out interface{}) error {
	return r.sendJSON(ctx, http.MethodPut, path, body, out)
}

// DeletePath отправляет DELETE на нестандартный эндпоинт.
func (r *StrapiRepository) DeletePath(ctx context.Context, path string) error {
	return r.do(ctx, request{method: http.MethodDelete, path: "/" + strings.TrimLeft(path, "/")}, nil)
}

func (r *StrapiRepository) sendJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	payload, err := jsonBody(body)
	if err != nil {
		return err
	}
	return r.do(ctx, request{
		method:      method,
		path:        "/" + strings.TrimLeft(path, "/"),
		body:        payload,
		contentType: "application/json",
	}, out)
}

// CheckConnection проверяет, что бэкенд отвечает на health-эндпоинте.
func (r *StrapiRepository) CheckConnection(ctx context.Context) error {
	err := r.do(ctx, request{method: http.MethodGet, path: r.baseURL + r.healthPath, absolute: true}, nil)
	if err != nil {
		r.updateHealthStatus(false, err)
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("проверка связи не прошла: %w", err)
		}
		return fmt.Errorf("бэкенд недоступен: %w", err)
	}
	r.updateHealthStatus(true, nil)
	return nil
}

// Health возвращает последнее известное состояние.
func (r *StrapiRepository) Health() HealthStatus {
	if status, ok := r.healthStatus.Load().(*HealthStatus); ok && status != nil {
		return *status
	}
	return HealthStatus{}
}

func (r *StrapiRepository) updateHealthStatus(isHealthy bool, err error) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy: isHealthy,
		LastCheck: time.Now(),
		LastError: err,
	})
}

// Проверка интерфейсов (compile-time check).
var (
	_ domain.Backend       = (*StrapiRepository)(nil)
	_ domain.HealthChecker = (*StrapiRepository)(nil)
)
