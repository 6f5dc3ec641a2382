package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/procwise/procwise/pkg/cmd"
	"github.com/procwise/procwise/pkg/engine"
	"github.com/procwise/procwise/pkg/eventbus"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/records"
	"github.com/procwise/procwise/pkg/services"
	"github.com/procwise/procwise/pkg/validation"
	"github.com/procwise/procwise/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() (*fiber.App, error) {
	// The standalone server keeps records in memory. Embedding hosts wire
	// their own resolver against real storage.
	resolver := records.NewMapResolver()

	eng, err := engine.New(engine.Config{
		Logger:      a.logger,
		Persistence: a.persistence,
		Resolver:    resolver,
		Mutator:     resolver,
		Registry:    cmd.NewRegistry(a.logger, resolver, nil),
		Publisher:   a.eventBus,
	})
	if err != nil {
		return nil, err
	}

	processService := services.NewProcess(a.persistence, validation.NewCached(validation.ModeLegacy))
	instanceService := services.NewInstance(a.persistence, eng)

	handlers := web.NewAPIHandlers(processService, instanceService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Procwise API")
	})

	p := app.Group("/processes")
	p.Get("/", handlers.GetProcesses)
	p.Post("/", handlers.CreateProcess)
	p.Get("/:id", handlers.GetProcess)
	p.Patch("/:id", handlers.UpdateProcess)
	p.Delete("/:id", handlers.DeleteProcess)
	p.Post("/:id/validate", handlers.ValidateProcess)
	p.Post("/:id/activate", handlers.ActivateProcess)
	p.Post("/:id/deactivate", handlers.DeactivateProcess)
	p.Put("/:id/definition", handlers.ApplyProcessDefinition)
	p.Get("/:id/definition", handlers.ExportProcessDefinition)

	i := app.Group("/instances")
	i.Get("/", handlers.GetInstances)
	i.Post("/", handlers.CreateInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Delete("/:id", handlers.DeleteInstance)
	i.Post("/:id/start", handlers.StartInstance)
	i.Post("/:id/advance", handlers.AdvanceInstance)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/validate", handlers.ValidateInstanceTask)
	i.Post("/:id/reject", handlers.RejectInstanceTask)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
