package routes

import (
	"time"

	"school-library/internal/adapters/http/handlers"
	"school-library/internal/adapters/http/middleware"
	"school-library/internal/config"
	"school-library/internal/core/domain"
	"school-library/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

// Options carries the non-service dependencies of the routes
type Options struct {
	// UploadDir is served read-only under /uploads
	UploadDir string
	// Metrics backs GET /api/v1/admin/metrics; nil disables the route
	Metrics handlers.MetricsReader
	// Ping checks the database for /health; nil uses config.HealthCheck
	Ping func() error
}

// Setup configures all routes for the application
func Setup(app *fiber.App, cfg *config.Config, svc *services.Container, opts Options) {
	// Initialize handlers
	h := &handlerSet{
		health:      handlers.NewHealthHandler(cfg, opts.Ping),
		auth:        handlers.NewAuthHandler(svc.Auth, cfg),
		user:        handlers.NewUserHandler(svc.User),
		catalog:     handlers.NewCatalogHandler(svc.Catalog),
		member:      handlers.NewMemberHandler(svc.Member, svc.Circulation),
		loan:        handlers.NewLoanHandler(svc.Circulation),
		reservation: handlers.NewReservationHandler(svc.Reservation),
		policy:      handlers.NewPolicyHandler(svc.Policy),
		dashboard:   handlers.NewDashboardHandler(svc.Statistics),
		report:      handlers.NewReportHandler(svc.Report),
		contact:     handlers.NewContactHandler(svc.Contact),
		events:      handlers.NewEventsHandler(svc.Events),
	}
	if opts.Metrics != nil {
		h.metrics = handlers.NewMetricsHandler(opts.Metrics)
	}

	// Health check & root routes
	app.Get("/", h.health.Root)
	app.Get("/health", h.health.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Uploaded covers, content files and avatars
	if opts.UploadDir != "" {
		app.Static("/uploads", opts.UploadDir, fiber.Static{
			Browse: false,
			MaxAge: int((24 * time.Hour).Seconds()),
		})
	}

	// API v1 group
	apiV1 := app.Group("/api/v1")
	setupAPIV1Routes(apiV1, h, cfg)
}

type handlerSet struct {
	health      *handlers.HealthHandler
	auth        *handlers.AuthHandler
	user        *handlers.UserHandler
	catalog     *handlers.CatalogHandler
	member      *handlers.MemberHandler
	loan        *handlers.LoanHandler
	reservation *handlers.ReservationHandler
	policy      *handlers.PolicyHandler
	dashboard   *handlers.DashboardHandler
	report      *handlers.ReportHandler
	contact     *handlers.ContactHandler
	events      *handlers.EventsHandler
	metrics     *handlers.MetricsHandler
}

// setupAPIV1Routes configures API v1 routes
func setupAPIV1Routes(router fiber.Router, h *handlerSet, cfg *config.Config) {
	router.Get("/health", h.health.HealthCheck)

	auth := middleware.AuthMiddleware(cfg)

	// ============================================================
	// Public routes
	// ============================================================
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", middleware.AuthRateLimiter(), h.auth.Register)
	authRoutes.Post("/login", middleware.AuthRateLimiter(), h.auth.Login)
	authRoutes.Post("/verify", middleware.AuthRateLimiter(), h.auth.Verify)
	authRoutes.Post("/resend-code", middleware.StrictRateLimiter(), h.auth.ResendCode)
	authRoutes.Post("/refresh", h.auth.RefreshToken)
	authRoutes.Post("/logout", h.auth.Logout)

	// Protected auth routes
	authRoutes.Get("/me", auth, h.auth.Me)
	authRoutes.Post("/logout-all", auth, h.auth.LogoutAll)

	router.Post("/setup/admin", middleware.StrictRateLimiter(), h.auth.SetupAdmin)
	router.Post("/contact", middleware.StrictRateLimiter(), h.contact.Submit)

	catalog := router.Group("/catalog", middleware.OptionalAuth(cfg))
	catalog.Get("/", h.catalog.List)
	catalog.Get("/categories", middleware.CatalogCache(), h.catalog.Categories)
	catalog.Get("/:id", middleware.CatalogCache(), h.catalog.Get)

	// ============================================================
	// Authenticated routes
	// ============================================================
	profile := router.Group("/profile", auth, middleware.NoCacheHeaders())
	profile.Get("/", h.user.GetProfile)
	profile.Put("/", h.user.UpdateProfile)
	profile.Put("/password", h.user.ChangePassword)
	profile.Post("/avatar", h.user.UploadAvatar)
	profile.Delete("/", h.user.DeleteAccount)

	// per-route middleware: a "/me" group prefix would also catch "/members"
	private := middleware.PrivateCacheHeaders(30 * time.Second)
	router.Get("/me/loans", auth, private, h.loan.MyLoans)
	router.Get("/me/reservations", auth, private, h.reservation.MyReservations)
	router.Get("/me/dashboard", auth, private, h.dashboard.GetMyDashboard)
	router.Get("/me/statistics", auth, private, h.dashboard.GetMyStatistics)
	router.Get("/me/events", auth, h.events.MyStream)

	staff := middleware.StaffOnly()

	// Loans: borrowing and returning are open to members for themselves
	loans := router.Group("/loans", auth)
	loans.Post("/", h.loan.Borrow)
	loans.Post("/refresh-fines", staff, h.loan.RefreshFines)
	loans.Get("/", staff, h.loan.List)
	loans.Get("/:id", staff, h.loan.Get)
	loans.Post("/:id/return", h.loan.Return)
	loans.Post("/:id/renew", staff, h.loan.Renew)
	loans.Post("/:id/settle", staff, h.loan.Settle)

	reservations := router.Group("/reservations", auth)
	reservations.Post("/", h.reservation.Create)
	reservations.Post("/:id/cancel", h.reservation.Cancel)
	reservations.Get("/", staff, h.reservation.List)
	reservations.Post("/:id/fulfill", staff, h.reservation.Fulfill)

	// Live circulation feed for the desk
	router.Get("/desk/events", auth, staff, h.events.DeskStream)

	// ============================================================
	// Staff routes
	// ============================================================
	policy := router.Group("/policy", auth, middleware.RequireCapability(domain.CapManagePolicy))
	policy.Get("/", h.policy.Get)
	policy.Put("/", h.policy.Update)

	items := router.Group("/items", auth, middleware.RequireCapability(domain.CapManageCatalog))
	items.Post("/", h.catalog.Create)
	items.Get("/:id", h.catalog.Get)
	items.Put("/:id", h.catalog.Update)
	items.Delete("/:id", h.catalog.Delete)

	members := router.Group("/members", auth, middleware.RequireCapability(domain.CapManageMembers))
	members.Get("/", h.member.List)
	members.Post("/", h.member.Create)
	members.Get("/:id", h.member.Get)
	members.Put("/:id", h.member.Update)
	members.Delete("/:id", h.member.Delete)
	members.Get("/:id/loans", h.member.Loans)

	reports := middleware.RequireCapability(domain.CapViewReports)
	router.Get("/dashboard", auth, reports, h.dashboard.GetStaffDashboard)
	router.Get("/statistics", auth, reports, h.dashboard.GetStatistics)
	router.Get("/reports/:table", auth, reports, h.report.Export)

	// ============================================================
	// Admin routes
	// ============================================================
	users := router.Group("/users", auth, middleware.AdminOnly())
	users.Get("/", h.user.ListUsers)
	users.Put("/:id/role", h.user.UpdateRole)

	if h.metrics != nil {
		router.Get("/admin/metrics", auth, middleware.AdminOnly(), h.metrics.Snapshot)
	}
}
