package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labchat_server/config"
	"labchat_server/controllers"
	"labchat_server/logger"
	"labchat_server/repositories"
	"labchat_server/routes"
	"labchat_server/services"
	"labchat_server/socket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped gracefully")
}

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*repositories.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageBadger:
		log.WithField("path", cfg.BadgerPath).Info("opening badger store")
		return repositories.OpenBadgerStore(cfg.BadgerPath, log)
	default:
		log.WithField("region", cfg.AWSRegion).Info("initializing DynamoDB client")
		client, err := repositories.InitializeDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return repositories.NewDynamoStore(client, log), nil
	}
}

func newImageStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*services.S3Service, error) {
	if cfg.S3BucketName == "" {
		log.Warn("S3_BUCKET_NAME is not set; group image uploads are disabled")
		return services.NewS3Service(nil, "", cfg.AWSRegion, cfg.S3PublicBaseURL, log), nil
	}
	client, err := services.NewS3Client(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return services.NewS3Service(client, cfg.S3BucketName, cfg.AWSRegion, cfg.S3PublicBaseURL, log), nil
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Error("failed to close store")
		}
	}()

	images, err := newImageStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize image storage: %w", err)
	}

	redeemable := services.AnyRedeemer()
	if cfg.InviteStrictEmail {
		redeemable = services.MatchingEmailRedeemer()
	}

	identities := services.NewIdentityService(cfg.JWTSecret, cfg.JWTIssuer, store.Users, log)
	groupService := services.NewGroupService(store.Groups, store.Users, images, log)
	inviteService := services.NewInviteService(store.Groups, store.Invitations, store.Users, groupService,
		services.RoleWhitelist(cfg.AllowedInviteRoles(), cfg.InviteAllowUnregistered), redeemable, log)
	chatService := services.NewGroupChatService(store.Groups, store.Messages, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit, log)
	unreadService := services.NewUnreadService(store.Groups, store.Messages, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hub := socket.NewHub(socket.NewMetrics(registry), log)

	clientCfg := socket.ClientConfig{
		SendBuffer:      cfg.WSSendBuffer,
		WriteTimeout:    cfg.WSWriteTimeout,
		PongTimeout:     cfg.WSPongTimeout,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
	}

	r := mux.NewRouter()
	routes.RegisterRoutes(r, registry)
	routes.RegisterResearchGroupRoutes(r, routes.ResearchGroupControllers{
		Groups:      controllers.NewResearchGroupController(groupService, log),
		Invitations: controllers.NewInvitationController(inviteService, log),
		Chat:        controllers.NewGroupChatController(chatService, unreadService, hub, log),
		Socket:      controllers.NewSocketController(identities, chatService, hub, clientCfg, cfg.AllowedOrigins(), log),
	}, controllers.AuthMiddleware(identities, log))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.CloseAll()
		return err
	})

	return g.Wait()
}
