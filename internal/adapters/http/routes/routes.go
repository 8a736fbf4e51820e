package routes

import (
	"net/http"

	"bitrix24-connector/internal/adapters/http/handlers"
	"bitrix24-connector/internal/adapters/http/middleware"
	"bitrix24-connector/internal/adapters/persistence/repositories"
	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Services is the wired service graph shared by routes and background jobs
type Services struct {
	Tokens      *services.TokenService
	Bitrix      *services.BitrixService
	Contacts    *services.ContactService
	Install     *services.InstallService
	Maintenance *services.MaintenanceService
	Ping        func() error
}

// NewServices builds repositories and services; a nil client uses the
// configured Bitrix24 timeout.
func NewServices(db *gorm.DB, cfg *config.Config, client *http.Client) *Services {
	tokenRepo := repositories.NewTokenRepository(db, cfg.Database.BackupPath)

	tokenService := services.NewTokenService(tokenRepo, cfg.Bitrix, client)
	bitrixService := services.NewBitrixService(tokenService, cfg.Bitrix, client)

	return &Services{
		Tokens:      tokenService,
		Bitrix:      bitrixService,
		Contacts:    services.NewContactService(bitrixService),
		Install:     services.NewInstallService(tokenService, bitrixService),
		Maintenance: services.NewMaintenanceService(tokenService, cfg.Maintenance),
		Ping:        pinger(db),
	}
}

func pinger(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	}
}

// Setup configures all routes for the application
func Setup(app *fiber.App, cfg *config.Config, svc *Services) {
	healthHandler := handlers.NewHealthHandler(svc.Ping, cfg.AppMode)
	installHandler := handlers.NewInstallHandler(svc.Install)
	bitrixHandler := handlers.NewBitrixHandler(svc.Tokens, svc.Bitrix)
	contactHandler := handlers.NewContactHandler(svc.Contacts)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Bitrix24 install callback, GET for the application interface launch
	install := app.Group("/install", middleware.InstallRateLimiter(), middleware.NoStore())
	install.Get("/", installHandler.Install)
	install.Post("/", installHandler.Install)

	setupManagementRoutes(app, bitrixHandler, cfg)

	contacts := app.Group("/contacts", middleware.ResolveTenant(cfg))
	setupContactRoutes(contacts, contactHandler)
}

// setupManagementRoutes configures credential management and raw REST access
func setupManagementRoutes(app *fiber.App, handler *handlers.BitrixHandler, cfg *config.Config) {
	admin := middleware.AdminOnly(cfg)
	noStore := middleware.NoStore()

	domains := app.Group("/domains", admin, noStore)
	domains.Get("/", handler.ListDomains)
	domains.Post("/restore", handler.RestoreDomains)
	domains.Delete("/:domain", handler.DeleteDomain)

	app.Post("/refresh/:domain", admin, noStore, handler.RefreshDomain)
	app.Post("/api/:domain/:method", admin, handler.CallMethod)
	app.Get("/test/:domain", admin, handler.TestDomain)
	app.Get("/bitrix/contacts/:domain", admin, handler.RawContacts)
}

// setupContactRoutes configures the contact CRUD routes
func setupContactRoutes(router fiber.Router, handler *handlers.ContactHandler) {
	router.Get("/", handler.ListContacts)
	router.Post("/", handler.CreateContact)
	router.Get("/:id", handler.GetContact)
	router.Put("/:id", handler.UpdateContact)
	router.Delete("/:id", handler.DeleteContact)
}
