package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/cache"
	"github.com/siteforge-io/siteforge/internal/pkg/database"
	"github.com/siteforge-io/siteforge/internal/pkg/env"
	"github.com/siteforge-io/siteforge/internal/pkg/jobqueue"
	"github.com/siteforge-io/siteforge/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	if err := models.LoadSettings(database.GetDB()); err != nil {
		log.Printf("Failed to load settings: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10485760, // 10 MiB, plenty for JSON payloads
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	// background workers (subscription sweeps, export jobs)
	jobqueue.GetManager().Start()

	return app
}
