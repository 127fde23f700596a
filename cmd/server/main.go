package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"crewshift-bot/internal/config"
	"crewshift-bot/internal/convo"
	"crewshift-bot/internal/handler"
	"crewshift-bot/internal/i18n"
	"crewshift-bot/internal/jobs"
	"crewshift-bot/internal/mattermost"
	"crewshift-bot/internal/photostore"
	"crewshift-bot/internal/service"
	"crewshift-bot/internal/store"
)

// notificationRetention bounds the dedup log. It must outlive every dedup window.
const notificationRetention = 14 * 24 * time.Hour

func main() {
	cfg := config.Load()
	i18n.Init(cfg.DefaultLocale)
	loc := cfg.Location()

	ctx := context.Background()

	// Connect to MongoDB
	db, err := store.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Close(context.Background())

	// Stores
	sessions, err := store.NewSessionStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to init session store: %v", err)
	}
	directory, err := store.NewDirectoryStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to init directory store: %v", err)
	}
	taskStore, err := store.NewTaskStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to init task store: %v", err)
	}
	notifications, err := store.NewNotificationLog(ctx, db, notificationRetention)
	if err != nil {
		log.Fatalf("Failed to init notification log: %v", err)
	}

	mm := mattermost.NewClient(cfg.MattermostURL, cfg.ShiftBotToken)
	messenger := mattermost.NewMessenger(mm)

	var selection service.Selection
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		selection = convo.NewRedisSelection(rdb, cfg.SelectionTTL)
	} else {
		selection = convo.NewPersistentSelection(directory)
	}

	var storage service.PhotoStorage
	if cfg.PhotoBucket != "" {
		bucket, err := photostore.NewBucket(ctx, cfg.FirebaseCredentialsFile, cfg.PhotoBucket)
		if err != nil {
			log.Fatalf("Failed to open photo bucket: %v", err)
		}
		storage = bucket
	} else {
		log.Println("PHOTO_BUCKET is empty, photos are forwarded without archiving")
	}

	// Services
	tasks := service.NewTaskResolver(taskStore)
	recipients := service.NewRecipients(directory)
	photos := service.NewPhotoPipeline(messenger, sessions, storage, cfg.PhotoMaxDimension)
	shiftSvc := service.NewShiftService(sessions, directory, selection, tasks, recipients, photos, messenger, service.ShiftOptions{
		BotURL:        cfg.BotURL,
		ActionSecret:  cfg.SlashCommandToken,
		Location:      loc,
		DefaultRadius: cfg.DefaultGeofenceRadius,
	})
	accountSvc := service.NewAccountService(sessions, directory, tasks, cfg.InviteSecret, loc).WithDirectChannels(mm)
	reminderSvc := service.NewReminderService(sessions, directory, taskStore, notifications, messenger, service.ReminderConfig{
		LookaheadMin:         cfg.UpcomingLookaheadMin,
		LookaheadMax:         cfg.UpcomingLookaheadMax,
		UpcomingDedup:        cfg.UpcomingDedup,
		ForgottenAfter:       cfg.ForgottenAfter,
		ForgottenDedupWindow: cfg.ForgottenDedupWindow,
		Location:             loc,
	})

	job := jobs.NewReminderJob(reminderSvc, cfg.ReminderSchedule, cfg.SweepTimeout, loc)
	if cfg.BotActive() {
		if err := job.Start(); err != nil {
			log.Fatalf("Failed to start reminders: %v", err)
		}
	} else {
		log.Println("Bot is disabled, reminders are not scheduled")
	}

	// Routes
	shifts := handler.NewShiftHandler(shiftSvc, accountSvc, mm, handler.ShiftHandlerConfig{
		BotURL:     cfg.BotURL,
		Enabled:    cfg.BotActive(),
		SlashToken: cfg.SlashCommandToken,
	})
	ops := handler.NewOpsHandler(db, job, cfg.ReminderTriggerToken)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(shifts, ops),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Shift bot started on :%s (env: %s)", cfg.Port, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	job.Stop()
}
