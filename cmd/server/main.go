package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/linkpilot/linkpilot/configs"
	"github.com/linkpilot/linkpilot/internal/api/handlers"
	"github.com/linkpilot/linkpilot/internal/api/middleware"
	job "github.com/linkpilot/linkpilot/internal/jobs"
	"github.com/linkpilot/linkpilot/internal/migrate"
	"github.com/linkpilot/linkpilot/internal/queue"
	"github.com/linkpilot/linkpilot/internal/repository"
	"github.com/linkpilot/linkpilot/internal/service"
	"github.com/linkpilot/linkpilot/pkg/utils"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := migrate.Up(context.Background(), cfg.PostgresURI); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	codec, err := utils.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		log.Fatalf("Invalid encryption secret: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	scheduledPostRepo := repository.NewScheduledPostRepository(db)

	authService := service.NewAuthService(userRepo)
	linkedinService := service.NewLinkedInService(*cfg)
	mediaService := service.NewMediaService(*cfg)
	scheduleService := service.NewScheduleService(scheduledPostRepo, codec)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Post("/auth/register", auth.Register)
	app.Post("/auth/login", auth.Login)
	app.Post("/auth/logout", auth.Logout)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(linkedinService, postRepo)
	api.Post("/posts/post", post.PostNow)
	api.Get("/posts/history", post.GetHistory)
	api.Get("/posts/oauth/url", post.OAuthURL)
	api.Get("/posts/oauth/callback", post.OAuthCallback)
	api.Get("/posts/organizations", post.Organizations)
	api.Delete("/posts/:id", post.DeletePost)

	schedule := handlers.NewScheduleHandler(scheduleService, mediaService)
	api.Post("/schedule/post", schedule.SchedulePost)
	api.Get("/schedule/posts", schedule.ListScheduled)
	api.Delete("/schedule/posts/:id", schedule.DeleteScheduled)
	api.Post("/schedule/bulk", schedule.BulkSchedule)

	// cron jobs
	enqueuer := &queue.Enqueuer{Client: client}
	publishJob := job.NewPublishJob(scheduledPostRepo, postRepo, linkedinService, codec, enqueuer)

	//queue
	queueW := queue.NewQueue(postRepo, scheduledPostRepo, linkedinService, codec)

	c := cron.New()
	c.AddFunc("@every 00h00m30s", publishJob.PublishDue)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeEngagementRefresh, queueW.HandleEngagementRefreshTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, c)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, c *cron.Cron) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
