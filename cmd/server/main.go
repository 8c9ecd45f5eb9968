package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/cache"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/config"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/events"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/handlers"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/listview"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/pagination"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/processor"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/query"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/repositories"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/session"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/usecases"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/pkg/logger"
)

const (
	// Проверка связи с CMS при старте.
	// CMS в docker-compose обычно поднимается дольше нас, поэтому ждем.
	healthCheckRetries    = 5
	healthCheckRetryDelay = 2 * time.Second

	// Как часто фоновый монитор опрашивает CMS.
	healthMonitorInterval = 30 * time.Second

	// Очистка просроченных сессий.
	sessionCleanupInterval = 10 * time.Minute

	// Время на аккуратное завершение работы (доделать текущие запросы).
	shutdownTimeout = 30 * time.Second

	eventBufferSize = 100
	processorQueue  = 100
)

// App держит вместе все зависимости панели, чтобы их не приходилось
// передавать глобально, и управляет их жизненным циклом (старт/стоп).
type App struct {
	configPath string

	config    *config.Config
	logger    *zap.Logger
	repo      *repositories.StrapiRepository
	cache     *cache.ShardedCache
	bus       *events.EventBus
	query     *query.Client
	processor *processor.OrderedProcessor
	sessions  *session.Store
	server    *http.Server

	// Гарантия однократной инициализации.
	initOnce sync.Once
	initErr  error

	// Состояние связи с CMS для монитора: когда пропала и пропала ли.
	backendMu   sync.Mutex
	backendDown time.Time

	// Фоновые задачи останавливаются разом через cancel.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp создает "пустую" заготовку приложения.
// Основная настройка произойдет позже в методе Initialize().
func NewApp(configPath string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize собирает все компоненты. Все или ничего: если что-то
// сломалось, возвращаем ошибку.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// loadConfig читает конфиг из файла, а если файла нет, берет значения по
// умолчанию и переменные окружения.
func (a *App) loadConfig() error {
	if err := config.Load(a.configPath); err != nil {
		if a.configPath == "" {
			return fmt.Errorf("критическая ошибка конфигурации: %w", err)
		}
		fmt.Fprintf(os.Stderr, "не удалось загрузить %s, используем значения по умолчанию и ENV: %v\n", a.configPath, err)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("критическая ошибка конфигурации: %w", err)
		}
	}
	a.config = config.Get()
	return nil
}

// doInitialize — сборочный цех приложения. Порядок важен:
// конфиг -> логгер -> CMS -> кэш и события -> usecase'ы -> HTTP.
func (a *App) doInitialize() error {
	// 1. Конфиг нужен раньше логгера: уровень логирования берется из него.
	if err := a.loadConfig(); err != nil {
		return err
	}

	// 2. Логгер.
	if err := logger.Init(a.config.Log.Level, a.config.Log.Development); err != nil {
		return fmt.Errorf("не удалось инициализировать логгер: %w", err)
	}
	a.logger = logger.Get()
	a.logger.Info("конфигурация загружена",
		zap.String("server_host", a.config.Server.Host),
		zap.Int("server_port", a.config.Server.Port),
		zap.String("strapi", a.config.Strapi.APIBase()),
	)

	// 3. Подключаемся к CMS (с повторами).
	if err := a.initializeRepository(); err != nil {
		return fmt.Errorf("ошибка инициализации репозитория: %w", err)
	}

	// 4. Кэш страниц коллекций и шина событий.
	a.cache = cache.NewShardedCache(
		a.config.Cache.Shards,
		time.Duration(a.config.Cache.TTL)*time.Second,
		time.Duration(a.config.Cache.StaleTTL)*time.Second,
	)
	a.cache.StartCleanupWorker()
	a.bus = events.NewEventBus(eventBufferSize, logger.Named("events"))

	// 5. Клиент запросов: кэш + дедупликация + перечитывание открытых списков.
	a.query = query.NewClient(a.repo, a.cache, a.bus, logger.Named("query"))
	a.query.Start()

	// 6. Пул воркеров: загрузка файлов по одному и превью описаний.
	a.processor = processor.NewOrderedProcessor(a.config.Concurrency.UploadWorkers, processorQueue, logger.Named("processor"))
	a.processor.Start()

	// 7. Сессии админов.
	a.sessions = session.NewStore(session.Options{
		CookieName: a.config.Session.CookieName,
		HashKey:    []byte(a.config.Session.HashKey),
		BlockKey:   []byte(a.config.Session.BlockKey),
		TTL:        time.Duration(a.config.Session.TTL) * time.Second,
		Secure:     a.config.Session.Secure,
	}, logger.Named("session"))

	// 8. HTTP.
	if err := a.initializeServer(); err != nil {
		return fmt.Errorf("ошибка настройки сервера: %w", err)
	}

	a.logger.Info("приложение готово к работе")
	return nil
}

// initializeRepository создает клиент CMS и ждет, пока она ответит.
func (a *App) initializeRepository() error {
	repo := repositories.NewStrapiRepository(repositories.Options{
		BaseURL:     a.config.Strapi.BaseURL,
		Prefix:      a.config.Strapi.Prefix,
		Token:       a.config.Strapi.Token,
		HealthPath:  a.config.Strapi.HealthPath,
		Timeout:     a.config.Strapi.TimeoutDuration(),
		ReadRetries: a.config.Strapi.ReadRetries,
	}, logger.Named("strapi"))

	var err error
	for attempt := 0; attempt < healthCheckRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("повторная попытка подключения к CMS",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", healthCheckRetryDelay),
			)
			time.Sleep(healthCheckRetryDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = repo.CheckConnection(ctx)
		cancel()
		if err != nil {
			a.logger.Warn("нет связи с CMS",
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		a.repo = repo
		a.logger.Info("связь с CMS установлена", zap.Int("попыток_затрачено", attempt+1))
		return nil
	}

	return fmt.Errorf("не удалось подключиться к CMS после %d попыток: %w", healthCheckRetries, err)
}

// initializeServer собирает usecase'ы и HTTP-роутинг.
func (a *App) initializeServer() error {
	uploads := upload.NewHelper(a.repo, a.processor, upload.Options{
		MaxFiles:       a.config.Upload.MaxFiles,
		MaxFileBytes:   a.config.Upload.MaxFileBytes,
		CleanupOrphans: a.config.Upload.CleanupOrphans,
	}, logger.Named("upload"))

	// Все мутации идут через RecordUsecase: проверка, семафор, сброс кэша.
	records := usecases.NewRecordUsecase(a.repo, a.query, a.bus, logger.Named("usecases"), a.config.Concurrency.BackendMaxConcurrent)

	deps := handlers.Deps{
		Query:      a.query,
		Records:    records,
		Catalog:    usecases.NewCatalogUsecase(records, uploads, logger.Named("catalog")),
		Orders:     usecases.NewOrderUsecase(records, uploads, logger.Named("orders")),
		Membership: usecases.NewMembershipUsecase(records, uploads, logger.Named("membership")),
		Home:       usecases.NewHomeUsecase(records, uploads, logger.Named("home")),
		Dashboard:  usecases.NewDashboardUsecase(records, logger.Named("dashboard")),
		Auth:       usecases.NewAuthUsecase(records, logger.Named("auth")),
		Uploads:    uploads,
		Sessions:   a.sessions,
		Previews:   listview.NewPreviewer(a.processor, logger.Named("listview")),
	}

	var csrfKey []byte
	if a.config.Session.CSRFKey != "" {
		csrfKey = []byte(a.config.Session.CSRFKey)
	} else {
		a.logger.Warn("session.csrf_key не задан, CSRF-проверка форм отключена")
	}

	r := handlers.NewRouter(deps, handlers.Options{
		Pagination: pagination.Options{
			DefaultPageSize: a.config.Pagination.DefaultPageSize,
			MaxPageSize:     a.config.Pagination.MaxPageSize,
		},
		RequestTimeout: a.config.Server.RequestTimeoutDuration(),
		RateLimit:      a.config.Concurrency.HTTPMaxWorkers,
		RateWindow:     time.Minute,
		CSRFKey:        csrfKey,
		SecureCookies:  a.config.Session.Secure,
		MaxMemory:      a.config.Upload.MaxFileBytes,
	}, a.logger)

	// /health — без middleware, чтобы отвечать быстро и всегда.
	r.Get("/health", a.healthCheckHandler)

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.config.Server.RequestTimeoutDuration() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// healthCheckHandler отвечает оркестратору: жив ли сервис и видит ли он CMS.
func (a *App) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}
	status := http.StatusOK

	if a.repo != nil {
		if err := a.repo.CheckConnection(ctx); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "unhealthy"
			health["error"] = err.Error()
		} else {
			health["backend"] = "connected"
		}
	}
	if a.query != nil {
		health["open_views"] = a.query.OpenViews("")
	}
	if a.sessions != nil {
		health["sessions"] = a.sessions.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(health)
}

// StartBackgroundJobs запускает фоновые процессы.
func (a *App) StartBackgroundJobs() {
	a.wg.Add(1)
	go a.periodicHealthCheck()

	a.sessions.StartCleanupWorker(sessionCleanupInterval)
}

// periodicHealthCheck опрашивает CMS и сообщает о переходах состояния.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(healthMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("фоновая проверка здоровья остановлена")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
			a.checkBackend(ctx)
			cancel()
		}
	}
}

// checkBackend проверяет связь с CMS. На переходе up -> down публикует
// backend_down, на переходе down -> up — backend_reconnected, после
// которого открытые списки перечитываются.
func (a *App) checkBackend(ctx context.Context) {
	err := a.repo.CheckConnection(ctx)

	a.backendMu.Lock()
	defer a.backendMu.Unlock()

	switch {
	case err != nil && a.backendDown.IsZero():
		a.backendDown = time.Now()
		a.logger.Warn("фоновая проверка: CMS недоступна", zap.Error(err))
		a.bus.PublishBackendDown(err)
	case err != nil:
		a.logger.Debug("фоновая проверка: CMS все еще недоступна", zap.Error(err))
	case !a.backendDown.IsZero():
		downtime := time.Since(a.backendDown)
		a.backendDown = time.Time{}
		a.logger.Info("фоновая проверка: связь с CMS восстановлена", zap.Duration("простой", downtime))
		a.bus.PublishBackendReconnected(downtime)
	default:
		a.logger.Debug("фоновая проверка: полёт нормальный")
	}
}

// Start запускает сервер в отдельной горутине, чтобы main мог слушать
// сигналы ОС.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("запуск HTTP сервера", zap.String("адрес", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("сервер упал с ошибкой", zap.Error(err))
			a.cancel()
		}
	}()

	return nil
}

// Done закрывается, когда приложение решило остановиться само.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Shutdown аккуратно останавливает приложение: сначала перестаем принимать
// запросы, потом гасим фоновые части в обратном порядке.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		if a.logger == nil {
			return
		}
		a.logger.Info("начинаем остановку приложения...")

		a.cancel()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("ошибка при остановке сервера", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		if a.sessions != nil {
			a.sessions.Stop()
		}
		if a.query != nil {
			a.query.Stop()
		}
		if a.processor != nil {
			a.processor.Stop()
		}
		if a.bus != nil {
			a.bus.Close()
		}
		if a.cache != nil {
			a.cache.StopCleanupWorker()
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("все фоновые процессы завершены")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("таймаут ожидания завершения процессов (принудительный выход)")
		}

		a.logger.Info("приложение остановлено успешно")
		_ = a.logger.Sync()
	})

	return shutdownErr
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "muscledenz-admin",
		Short:         "MuscleDenz admin dashboard API over the Strapi CMS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("APP_CONFIG_PATH"), "path to config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that the CMS answers with the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ping(cmd, configPath)
		},
	})

	return root
}

func serve(configPath string) error {
	app := NewApp(configPath)

	if err := app.Start(); err != nil {
		return fmt.Errorf("ошибка запуска: %w", err)
	}

	// Ждем сигнала ОС (Ctrl+C или docker stop) или падения сервера.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-app.Done():
	}

	return app.Shutdown()
}

// ping проверяет health и один запрос к коллекции с токеном из конфига.
func ping(cmd *cobra.Command, configPath string) error {
	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Get()
	if err := logger.Init("warn", false); err != nil {
		return err
	}

	repo := repositories.NewStrapiRepository(repositories.Options{
		BaseURL:    cfg.Strapi.BaseURL,
		Prefix:     cfg.Strapi.Prefix,
		Token:      cfg.Strapi.Token,
		HealthPath: cfg.Strapi.HealthPath,
		Timeout:    cfg.Strapi.TimeoutDuration(),
	}, logger.Get())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Strapi.TimeoutDuration())
	defer cancel()

	if err := repo.CheckConnection(ctx); err != nil {
		return err
	}
	if _, err := repo.Find(ctx, "gym-plans", query.ByDocumentID("ping")); err != nil {
		return fmt.Errorf("CMS отвечает, но запрос к коллекции не прошел: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", cfg.Strapi.APIBase())
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Фатальная ошибка: %v\n", err)
		os.Exit(1)
	}
}
