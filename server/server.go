package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridloop/cache"
	"gridloop/config"
	"gridloop/core/auth"
	"gridloop/core/composition"
	"gridloop/core/hub"
	"gridloop/core/membership"
	"gridloop/db"
	"gridloop/logger"
	"gridloop/repository"
	"gridloop/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
	})

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("failed to migrate database schema", logger.ErrorField(err))
	}

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	repos := repository.New(db.GormDB)
	blobs := storage.NewBlobStore(cfg)
	presence := cache.NewPresenceCache()
	authn := auth.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL)

	comp := composition.NewEngine(repos, blobs)
	members := membership.NewEngine(repos, blobs, comp)

	gateway := hub.NewHub(presence)
	go gateway.Run()
	defer gateway.Stop()

	apiHandler := NewAPIHandler(cfg, repos, comp, members, gateway, authn, blobs, presence)

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Authentication
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// Accounts
	router.HandleFunc("/api/users", apiHandler.AuthMiddleware(apiHandler.GetUsersHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/users", apiHandler.AuthMiddleware(apiHandler.UpdateProfileHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/users", apiHandler.AuthMiddleware(apiHandler.DeleteUserHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/users/password", apiHandler.AuthMiddleware(apiHandler.UpdatePasswordHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/users/avatar", apiHandler.AuthMiddleware(apiHandler.UploadAvatarHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/users/projects", apiHandler.AuthMiddleware(apiHandler.GetOwnProjectsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{id}", apiHandler.AuthMiddleware(apiHandler.GetUserHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{id}/avatar", apiHandler.GetAvatarHandler).Methods(http.MethodGet)

	// Projects and membership
	router.HandleFunc("/api/projects", apiHandler.AuthMiddleware(apiHandler.CreateProjectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}", apiHandler.AuthMiddleware(apiHandler.GetProjectHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateProjectHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/detail", apiHandler.AuthMiddleware(apiHandler.GetProjectDetailHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/invite", apiHandler.AuthMiddleware(apiHandler.InviteHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/request", apiHandler.AuthMiddleware(apiHandler.RequestAccessHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/accept-request", apiHandler.AuthMiddleware(apiHandler.AcceptRequestHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/accept-invite", apiHandler.AuthMiddleware(apiHandler.AcceptInviteHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/leave", apiHandler.AuthMiddleware(apiHandler.LeaveProjectHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/online", apiHandler.AuthMiddleware(apiHandler.OnlineUsersHandler)).Methods(http.MethodGet)

	// Scenes
	router.HandleFunc("/api/projects/{id}/scenes", apiHandler.AuthMiddleware(apiHandler.CreateSceneHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/scenes/reorder", apiHandler.AuthMiddleware(apiHandler.ReorderScenesHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/scenes/{sceneId}", apiHandler.AuthMiddleware(apiHandler.GetSceneHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/scenes/{sceneId}", apiHandler.AuthMiddleware(apiHandler.UpdateSceneHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/scenes/{sceneId}", apiHandler.AuthMiddleware(apiHandler.DestroySceneHandler)).Methods(http.MethodDelete)

	// Tracks
	router.HandleFunc("/api/projects/{id}/tracks", apiHandler.AuthMiddleware(apiHandler.CreateTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/tracks/reorder", apiHandler.AuthMiddleware(apiHandler.ReorderTracksHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/tracks/{trackId}", apiHandler.AuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/tracks/{trackId}", apiHandler.AuthMiddleware(apiHandler.UpdateTrackHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/tracks/{trackId}", apiHandler.AuthMiddleware(apiHandler.DestroyTrackHandler)).Methods(http.MethodDelete)

	// Clips
	router.HandleFunc("/api/projects/{id}/grid", apiHandler.AuthMiddleware(apiHandler.GetClipGridHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/clips/{clipId}", apiHandler.AuthMiddleware(apiHandler.GetClipHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/clips/{clipId}/name", apiHandler.AuthMiddleware(apiHandler.UpdateClipNameHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/clips/{clipId}/data", apiHandler.AuthMiddleware(apiHandler.UpdateClipDataHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/clips/{clipId}/content", apiHandler.AuthMiddleware(apiHandler.UploadClipContentHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/clips/{clipId}/content", apiHandler.AuthMiddleware(apiHandler.GetClipContentHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/clips/{clipId}/content", apiHandler.AuthMiddleware(apiHandler.ClearClipContentHandler)).Methods(http.MethodDelete)

	// Chat
	router.HandleFunc("/api/projects/{id}/messages", apiHandler.AuthMiddleware(apiHandler.PostMessageHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/messages", apiHandler.AuthMiddleware(apiHandler.GetMessagesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/messages/{messageId}", apiHandler.AuthMiddleware(apiHandler.DeleteMessageHandler)).Methods(http.MethodDelete)

	// Realtime channel
	router.HandleFunc("/ws/projects/{id}", apiHandler.ProjectChannelHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", logger.ErrorField(err))
	}
}
