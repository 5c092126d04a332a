// Package app is the application bootstrap and dependency injection root.
// It creates the Echo instance, builds every plugin from the shared
// infrastructure (DB pool, session store, mail transport) and installs
// the global middleware chain.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/config"
	"github.com/keyxmakerx/seif/internal/envelope"
	"github.com/keyxmakerx/seif/internal/identity"
	"github.com/keyxmakerx/seif/internal/middleware"
	"github.com/keyxmakerx/seif/internal/plugins/admin"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/auth"
	"github.com/keyxmakerx/seif/internal/plugins/inbox"
	"github.com/keyxmakerx/seif/internal/plugins/notes"
	"github.com/keyxmakerx/seif/internal/plugins/secrets"
	"github.com/keyxmakerx/seif/internal/plugins/settings"
	"github.com/keyxmakerx/seif/internal/plugins/smtp"
	"github.com/keyxmakerx/seif/internal/session"
	"github.com/keyxmakerx/seif/internal/templates/layouts"
	"github.com/keyxmakerx/seif/internal/templates/pages"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Limiter throttles /account POSTs per client IP. main runs its cleanup loop.
	Limiter *middleware.RateLimiter

	// Sweeper prunes the audit log. main runs it in the background.
	Sweeper *audit.Sweeper

	sessions session.Store
	proxies  *middleware.ProxyTrust
	now      func() time.Time
	checks   map[string]HealthCheck

	auditRepo   audit.AuditRepository
	accountRepo auth.AccountRepository
	secretRepo  secrets.SecretRepository
	mail        smtp.Service
	directory   identity.Directory

	audit    audit.AuditService
	handlers handlers
}

// handlers are the plugin HTTP handlers mounted by RegisterRoutes.
type handlers struct {
	auth     *auth.Handler
	admin    *admin.Handler
	secrets  *secrets.Handler
	notes    *notes.Handler
	inbox    *inbox.Handler
	audit    *audit.Handler
	settings *settings.Handler
	smtp     *smtp.Handler
}

// Option overrides a dependency New would otherwise build from Config.
type Option func(*App)

// WithAuditRepository replaces the MariaDB audit repository.
func WithAuditRepository(repo audit.AuditRepository) Option {
	return func(a *App) { a.auditRepo = repo }
}

// WithAccountRepository replaces the MariaDB account repository used by
// the sign-in flows.
func WithAccountRepository(repo auth.AccountRepository) Option {
	return func(a *App) { a.accountRepo = repo }
}

// WithSecretRepository replaces the MariaDB secrets repository.
func WithSecretRepository(repo secrets.SecretRepository) Option {
	return func(a *App) { a.secretRepo = repo }
}

// WithMailer replaces the mail transport selected from Config.SMTP.
func WithMailer(mail smtp.Service) Option {
	return func(a *App) { a.mail = mail }
}

// WithDirectory replaces the platform directory selected from Config.Directory.
func WithDirectory(dir identity.Directory) Option {
	return func(a *App) { a.directory = dir }
}

// WithClock sets the time source of every plugin.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithHealthCheck adds a dependency to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(a *App) { a.checks[name] = check }
}

// New creates the App: it builds every plugin, installs global middleware
// and error handling. Call RegisterRoutes afterwards.
func New(cfg *config.Config, db *sql.DB, sessions session.Store, opts ...Option) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config:   cfg,
		DB:       db,
		Echo:     e,
		sessions: sessions,
		proxies:  middleware.NewProxyTrust(cfg.Security.TrustedProxies),
		now:      time.Now,
		checks:   map[string]HealthCheck{},
	}
	if db != nil {
		a.checks["mariadb"] = db.PingContext
	}
	for _, opt := range opts {
		opt(a)
	}

	// c.RealIP() must return the client, not the proxy: rate limiting and
	// the audit log key on it.
	a.proxies.Install(e)

	if err := a.buildPlugins(); err != nil {
		return nil, err
	}

	a.setupMiddleware()
	e.HTTPErrorHandler = a.errorHandler

	// Serve static files (CSS, JS, fonts, images).
	e.Static("/static", "static")

	return a, nil
}

// buildPlugins wires repositories, services and handlers together.
func (a *App) buildPlugins() error {
	cfg := a.Config

	cipher, err := envelope.New(cfg.Security.MasterKeyBytes())
	if err != nil {
		return fmt.Errorf("creating envelope cipher: %w", err)
	}

	// --- Audit & Settings ---
	if a.auditRepo == nil {
		a.auditRepo = audit.NewAuditRepository(a.DB)
	}
	a.audit = audit.NewAuditService(a.auditRepo, a.now)

	settingsSvc := settings.NewSettingsService(settings.NewSettingsRepository(a.DB))
	a.Sweeper = audit.NewSweeper(a.auditRepo, settingsSvc, cfg.Audit.SweepInterval, a.now)

	// --- Mail ---
	if a.mail == nil {
		a.mail = newMailer(cfg.SMTP)
	}
	if !a.mail.IsConfigured() {
		slog.Warn("SMTP is not configured; access codes are logged, not mailed")
	}

	// --- Auth ---
	if a.accountRepo == nil {
		a.accountRepo = auth.NewAccountRepository(a.DB)
	}
	accounts := auth.NewAuthService(a.accountRepo, cfg.Security.AllowedEmailDomains, a.now)

	resolver, err := a.newResolver()
	if err != nil {
		return err
	}
	var flowResolver auth.IdentityResolver
	if resolver != nil {
		flowResolver = resolver
	}
	flow := auth.NewFlow(accounts, flowResolver, a.mail, a.audit, auth.FlowConfig{
		AllowedDomains: cfg.Security.AllowedEmailDomains,
	}, a.now, nil)

	// --- Vault ---
	if a.secretRepo == nil {
		a.secretRepo = secrets.NewSecretRepository(a.DB)
	}
	inboxRepo := inbox.NewInboxRepository(a.DB)
	sharer := inbox.NewSharer(inboxRepo, accounts, a.mail, a.audit, cfg.BaseURL, a.now)

	a.handlers = handlers{
		auth:     auth.NewHandler(flow, a.proxies, cfg.Security.PlatformIdentityHeader),
		admin:    admin.NewHandler(admin.NewAccountService(admin.NewAccountRepository(a.DB), a.audit)),
		secrets:  secrets.NewHandler(secrets.NewSecretService(a.secretRepo, cipher, sharer, a.audit, a.now)),
		notes:    notes.NewHandler(notes.NewNoteService(notes.NewNoteRepository(a.DB), sharer, a.audit, a.now)),
		inbox:    inbox.NewHandler(inbox.NewInboxService(inboxRepo, cipher, a.audit, a.now)),
		audit:    audit.NewHandler(a.audit),
		settings: settings.NewHandler(settingsSvc, a.audit),
		smtp:     smtp.NewHandler(a.mail),
	}

	if cfg.RateLimit.Enabled {
		a.Limiter = middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}
	return nil
}

// newResolver returns the platform identity resolver, or nil when no
// identity header is configured.
func (a *App) newResolver() (*identity.Resolver, error) {
	cfg := a.Config
	if cfg.Security.PlatformIdentityHeader == "" {
		return nil, nil
	}

	cache := identity.NewCacheRepository(a.DB)
	dir := a.directory
	if dir == nil {
		switch {
		case cfg.Directory.LDAPURL != "":
			dir = identity.NewLDAPDirectory(identity.LDAPConfig{
				URL:          cfg.Directory.LDAPURL,
				BindDN:       cfg.Directory.LDAPBindDN,
				BindPassword: cfg.Directory.LDAPBindPassword,
				BaseDN:       cfg.Directory.LDAPBaseDN,
				Filter:       cfg.Directory.LDAPFilter,
				Timeout:      cfg.Directory.Timeout,
			})
		case cfg.Directory.Static != "":
			static, err := identity.ParseStaticDirectory(cfg.Directory.Static)
			if err != nil {
				return nil, fmt.Errorf("parsing static directory: %w", err)
			}
			dir = static
		}
	}

	var strategies []identity.Strategy
	if dir != nil {
		strategies = append(strategies, identity.NewDirectoryStrategy(dir, cache, a.now))
	} else {
		slog.Warn("no directory configured; platform users resolve from the cache only")
	}
	strategies = append(strategies, identity.NewCacheStrategy(cache, a.now))
	return identity.NewResolver(strategies...), nil
}

// newMailer picks the SMTP relay, or the log sender when no host is set.
func newMailer(cfg config.SMTPConfig) smtp.Service {
	if cfg.Host == "" {
		return smtp.NewLogSender()
	}
	return smtp.NewSMTPSender(smtp.Settings{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		Password:   cfg.Password,
		From:       cfg.From,
		FromName:   cfg.FromName,
		Encryption: cfg.Encryption,
		Timeout:    cfg.Timeout,
	})
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the session must be loaded before the audit context and
// the access gate read it.
func (a *App) setupMiddleware() {
	e := a.Echo

	// Request ID first so every later log line and audit entry can carry it.
	e.Use(middleware.RequestID())

	// Request logging -- log every request with method, path, status, latency.
	e.Use(middleware.RequestLogger())

	// Panic recovery -- converts panics from everything below into 500s.
	e.Use(middleware.Recovery())

	// Security headers -- CSP, X-Frame-Options, no-store, HSTS in production.
	e.Use(middleware.SecurityHeaders(a.Config.IsProduction()))

	e.Use(session.Middleware(a.sessions, session.Options{TTL: a.Config.Session.TTL}))
	e.Use(audit.Middleware())

	// CSRF -- double-submit cookie pattern on all state-changing requests.
	e.Use(middleware.CSRF())

	e.Use(auth.Require2FA(a.audit))
	e.Use(a.layoutData())
}

// layoutData puts what the page shell needs into the request context.
func (a *App) layoutData() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			st := session.StateOf(c)
			req := c.Request()
			ctx := layouts.Inject(req.Context(), layouts.Data{
				IsAuthenticated: st.Authorized(),
				OwnerKey:        auth.OwnerKey(c),
				IsAdmin:         st.Authorized() && st.IsAdmin,
				ActivePath:      req.URL.Path,
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to HTTP responses: JSON for API and JSON clients, an error
// page for browsers. Internal causes are logged, never shown.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)
	reason := ""

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = apperror.SafeCode(err)
		message = apperror.SafeMessage(err)
		reason = appErr.Reason

		if appErr.Internal != nil || code >= http.StatusInternalServerError {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.RequestIDFrom(c)),
			)
		}
	case errors.As(err, &echoErr):
		// Echo's built-in HTTP errors (e.g., 404 from router).
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		// Truly unexpected error -- log it.
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
			slog.String("request_id", middleware.RequestIDFrom(c)),
		)
	}

	if middleware.WantsJSON(c) {
		body := map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		}
		if reason != "" {
			body["reason"] = reason
		}
		_ = c.JSON(code, body)
		return
	}

	// For HTMX requests, redirect to login on 401 so the browser navigates
	// instead of swapping error HTML into a fragment target.
	if middleware.IsHTMX(c) {
		if code == http.StatusUnauthorized {
			c.Response().Header().Set("HX-Redirect", auth.LoginPath)
			_ = c.NoContent(http.StatusNoContent)
			return
		}
		// For other HTMX errors, retarget to body so the full error page
		// replaces the entire page instead of landing in a partial target.
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	if code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusSeeOther, auth.LoginPath)
		return
	}

	_ = middleware.Render(c, code, pages.ErrorPage(code, message))
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to sign in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusConflict:
		return "This action conflicts with the current state."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Seif server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
