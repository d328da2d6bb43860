package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/thereayou/roomcoord/internal/blob"
	"github.com/thereayou/roomcoord/internal/config"
	"github.com/thereayou/roomcoord/internal/database"
	"github.com/thereayou/roomcoord/internal/handlers"
	"github.com/thereayou/roomcoord/internal/linkpreview"
	"github.com/thereayou/roomcoord/internal/logging"
	"github.com/thereayou/roomcoord/internal/notify"
	ws "github.com/thereayou/roomcoord/internal/websocket"
	"github.com/thereayou/roomcoord/pkg/auth"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Config     *config.Config
	Log        *zap.Logger
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Blobs      *blob.Store
	Rooms      *ws.Rooms
	Messages   *handlers.MessageHandler
	Dispatcher *notify.Dispatcher
}

func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	dbConn := &database.Database{}
	if err := dbConn.Connect(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	blobs, err := blob.Open(cfg.BlobDir)
	if err != nil {
		return nil, err
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	dispatcher := notify.NewDispatcher(dbConn, notify.NewExpoProvider(cfg.PushEndpoint), cfg.PushConcurrency, logger)
	history := handlers.NewHistoryService(dbConn, cfg.HistoryPageSize, cfg.HistoryMaxPageSize)
	messageH := handlers.NewMessageHandler(dbConn, history, handlers.MessageHandlerOptions{
		Previewer:      linkpreview.NewFetcher(cfg.LinkPreviewTimeout, cfg.LinkPreviewMaxBytes, logger),
		Blobs:          blobs,
		Notifier:       dispatcher,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PreviewTimeout: cfg.LinkPreviewTimeout,
	}, logger)

	sessions := ws.NewRedisSessionStore(rdb, cfg.SessionTTL, cfg.ResumeWindow)
	rooms := ws.NewRooms(messageH, sessions, logger)

	wsH := handlers.NewWebSocketHandler(rooms, dbConn, handlers.WebSocketOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		FrameRate:      cfg.FrameRate,
		FrameBurst:     cfg.FrameBurst,
	}, logger)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	APIEndpoints(router, Endpoints{
		JWT:       jwtMgr,
		Redis:     rdb,
		WebSocket: wsH,
		Messages:  handlers.NewHTTPMessageHandler(dbConn, history),
		Health:    handlers.NewHealthHandler(dbConn, rdb),
	})

	return &Server{
		Config:     cfg,
		Log:        logger,
		Router:     router,
		DB:         dbConn,
		Redis:      rdb,
		JWTManager: jwtMgr,
		Blobs:      blobs,
		Rooms:      rooms,
		Messages:   messageH,
		Dispatcher: dispatcher,
	}, nil
}

// Run слушает порт до SIGINT/SIGTERM и затем корректно останавливается.
// Сессии в redis не освобождаются, клиенты восстанавливают их после перезапуска.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    ":" + s.Config.Port,
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("server_starting", zap.String("port", s.Config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server run error: %w", err)
		}
	case <-ctx.Done():
	}

	s.Log.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	// Хабы больше не планируют работу, после этого дожидаемся фоновых задач
	s.Rooms.Stop()
	s.Messages.Wait()
	s.Dispatcher.Close()
	if cerr := s.Blobs.Close(); cerr != nil {
		s.Log.Warn("blob_close_failed", zap.Error(cerr))
	}
	s.Redis.Close()
	s.Log.Sync()
	return err
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
