package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"marketchat/internal/adapter/api"
	"marketchat/internal/adapter/api/handler"
	apimiddleware "marketchat/internal/adapter/api/middleware"
	"marketchat/internal/adapter/api/router"
	"marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	domainrepo "marketchat/internal/domain/repository"
	"marketchat/internal/domain/service"
	"marketchat/internal/infrastructure/firebase"
	"marketchat/internal/infrastructure/presence"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/internal/infrastructure/storage"
	"marketchat/internal/infrastructure/token"
	"marketchat/internal/infrastructure/translation"
	"marketchat/internal/infrastructure/websocket"
	"marketchat/internal/usecase"
	"marketchat/pkg/config"
	"marketchat/pkg/logger"
)

type stores struct {
	chats    domainrepo.ChatRepository
	reports  domainrepo.ReportRepository
	audits   domainrepo.AuditRepository
	accounts domainrepo.AccountRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Options{
		Level:             cfg.LogLevel,
		Development:       cfg.IsDevelopment(),
		LogPath:           cfg.LogPath,
		RotationTimeHours: cfg.LogRotationHours,
		MaxAgeDays:        cfg.LogMaxAgeDays,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := firebase.Credentials{
		ProjectID: cfg.FirebaseProject,
		JSON:      cfg.FirebaseCredentialsJSON,
		Path:      cfg.FirebaseCredentialsPath,
	}
	var firebaseApp *firebase.App
	getFirebaseApp := func() *firebase.App {
		if firebaseApp == nil {
			app, err := firebase.NewApp(ctx, creds)
			if err != nil {
				logger.Fatal("Failed to initialize Firebase: %v", err)
			}
			firebaseApp = app
		}
		return firebaseApp
	}

	var healthChecks []handler.HealthCheck

	var repos stores
	switch cfg.StoreDriver {
	case "firestore":
		firestoreClient, err := getFirebaseApp().Firestore(ctx)
		if err != nil {
			logger.Fatal("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		repos = stores{
			chats:    repository.NewFirestoreChatRepository(firestoreClient),
			reports:  repository.NewFirestoreReportRepository(firestoreClient),
			audits:   repository.NewFirestoreAuditRepository(firestoreClient),
			accounts: repository.NewFirestoreAccountRepository(firestoreClient),
		}
		logger.Info("Using Firestore store (project %s)", cfg.FirebaseProject)

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to create Postgres pool: %v", err)
		}
		defer pool.Close()

		if err := repository.EnsurePostgresSchema(ctx, pool); err != nil {
			logger.Fatal("Failed to apply Postgres schema: %v", err)
		}

		repos = stores{
			chats:    repository.NewPostgresChatRepository(pool),
			reports:  repository.NewPostgresReportRepository(pool),
			audits:   repository.NewPostgresAuditRepository(pool),
			accounts: repository.NewPostgresAccountRepository(pool),
		}
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "postgres", Check: pool.Ping})
		logger.Info("Using Postgres store")

	default:
		accounts, err := seedAccounts(cfg.SeedAccounts)
		if err != nil {
			logger.Fatal("Failed to seed accounts: %v", err)
		}
		repos = stores{
			chats:    repository.NewMemoryChatRepository(),
			reports:  repository.NewMemoryReportRepository(),
			audits:   repository.NewMemoryAuditRepository(),
			accounts: repository.NewMemoryAccountRepository(accounts...),
		}
		logger.Info("Using in-memory store with %d seeded accounts", len(accounts))
	}

	var verifier service.TokenVerifier
	var issueToken handler.IssueTokenFunc
	switch cfg.AuthDriver {
	case "firebase":
		authClient, err := getFirebaseApp().Auth(ctx)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase Auth: %v", err)
		}
		firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)
		verifier = firebaseAuthClient
		issueToken = firebaseAuthClient.GenerateToken

	case "jwks":
		jwksVerifier, err := token.NewJWKSVerifier(ctx, cfg.JWKSURL)
		if err != nil {
			logger.Fatal("Failed to load JWKS from %s: %v", cfg.JWKSURL, err)
		}
		defer jwksVerifier.Close()
		verifier = jwksVerifier

	default:
		hmacVerifier := token.NewHMACVerifier(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second)
		verifier = hmacVerifier
		issueToken = func(ctx context.Context, userID string) (string, error) {
			return hmacVerifier.Issue(userID)
		}
	}

	var tracker service.PresenceTracker
	if cfg.PresenceDriver == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis at %s is not reachable yet: %v", cfg.RedisAddr, err)
		}
		tracker = presence.NewRedisTracker(redisClient, "", cfg.PresenceTTL)
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		memoryTracker := presence.NewMemoryTracker(cfg.PresenceTTL)
		go memoryTracker.Run(ctx, cfg.PresenceSweepInterval)
		tracker = memoryTracker
	}

	limiter := ratelimit.NewRateLimiter(ratelimit.DefaultPolicies)
	limiter.StartCleanupRoutine(10*time.Minute, ctx.Done())

	wsManager := websocket.NewManager(tracker, websocket.Options{
		SendBuffer:    cfg.WSSendBuffer,
		JoinMarksRead: cfg.WSJoinMarksRead,
		RateLimiter:   limiter,
	})
	if cfg.NATSURL != "" {
		relay, err := websocket.NewNATSRelay(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			logger.Fatal("Failed to connect to NATS: %v", err)
		}
		defer relay.Close()

		wsManager.UseRelay(relay)
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "nats", Check: relay.Healthy})
		logger.Info("Fan-out relayed through NATS at %s", cfg.NATSURL)
	}

	messagingOpts := usecase.MessagingOptions{
		Translator:  translation.NewService(translation.Passthrough{}, cfg.TranslationTimeout),
		Languages:   cfg.SupportedLanguages,
		RateLimiter: limiter,
	}
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, creds.ClientOptions()...)
		if err != nil {
			logger.Fatal("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()
		messagingOpts.Attachments = storageClient
	}

	auditUseCase := usecase.NewAuditUseCase(repos.audits)
	messagingUseCase := usecase.NewMessagingUseCase(repos.chats, repos.accounts, repos.reports, auditUseCase, wsManager, messagingOpts)
	moderationUseCase := usecase.NewModerationUseCase(repos.accounts, repos.reports, auditUseCase, messagingUseCase)
	presenceUseCase := usecase.NewPresenceUseCase(tracker)
	wsManager.SetChatService(messagingUseCase)

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := wsManager.Run(ctx); err != nil {
			logger.Error("Gateway stopped: %v", err)
			stop()
		}
	}()

	handler.Setup(messagingUseCase, moderationUseCase, presenceUseCase)
	handler.SetupHealthHandler(healthChecks...)
	if issueToken != nil {
		handler.SetupDevTokenHandler(repos.accounts, issueToken)
	}

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	moderationMiddleware := apimiddleware.NewModerationMiddleware(moderationUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, verifier, cfg.WSHandshakeTimeout, cfg.AllowedOrigins)

	router.Setup(e, authMiddleware, moderationMiddleware, limiter, wsHandler, cfg.Environment)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown: %v", err)
	}
	<-gatewayDone
}

func seedAccounts(seeds []config.SeedAccount) ([]*entity.Account, error) {
	accounts := make([]*entity.Account, 0, len(seeds))
	for _, seed := range seeds {
		accountType := entity.AccountType(seed.AccountType)
		if !accountType.Valid() {
			return nil, fmt.Errorf("account %s has unknown type %q", seed.ID, seed.AccountType)
		}
		accounts = append(accounts, &entity.Account{
			ID:          seed.ID,
			Username:    seed.ID,
			AccountType: accountType,
		})
	}
	return accounts, nil
}
