package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safimatch/config"
	"safimatch/gotrue"
	"safimatch/handler"
	"safimatch/middleware"
	"safimatch/service"
	"safimatch/storage"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func init() {
	// 服务端统一使用 UTC
	time.Local = time.UTC
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := utils.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer utils.CloseDB()

	// 会话存储：redis（默认）或进程内存
	var (
		rdb      *redis.Client
		sessions service.SessionStore
	)
	if cfg.SessionStore == "memory" {
		log.Println("[WARN] Using in-memory session store, sessions are lost on restart")
		sessions = service.NewMemorySessionStore()
	} else {
		if err := utils.InitRedis(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer utils.CloseRedis()
		rdb = utils.GetRedis()
		sessions = service.NewRedisSessionStore(rdb, 30*24*time.Hour)
	}

	bucket, err := storage.New(context.Background(), storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
		PublicBaseURL:   cfg.PublicObjectURL(),
	})
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}

	db := utils.GetDB()
	authClient := gotrue.NewClient(cfg.AuthURL(), cfg.AnonKey, cfg.RequestTimeout)

	// 创建服务
	profileSvc := service.NewProfileService(db)
	settingsSvc := service.NewSettingsService(db)
	matchSvc := service.NewMatchService(db)
	chatSvc := service.NewChatService(db)
	relSvc := service.NewRelationshipService(db)
	storageSvc := service.NewStorageService(bucket, profileSvc, cfg.PublicObjectURL())
	discovery := service.NewDiscoveryManager(profileSvc, matchSvc)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go discovery.RunSweeper(sweepCtx, 10*time.Minute, 2*time.Hour)
	authSvc := service.NewAuthService(authClient, sessions, profileSvc, cfg.SessionBootTimeout)

	hub := handler.NewHub(handler.HubConfig{
		RealtimeURL:      cfg.RealtimeURL(),
		APIKey:           cfg.AnonKey,
		EventsPerSecond:  cfg.RealtimeEventsPerSecond,
		OperationTimeout: cfg.RequestTimeout,
	}, rdb, chatSvc, matchSvc)

	// 登出（包括强制登出）时断开 websocket 并丢弃发现队列
	authSvc.OnAuthStateChange(func(event service.AuthEvent, userID uuid.UUID, _ *gotrue.Session) {
		if event == service.AuthSignedOut {
			hub.ForceOffline(userID)
			discovery.Drop(userID)
		}
	})

	middleware.InitAuth(cfg.JWTSecret, func(userID uuid.UUID) {
		authSvc.ForceSignOut(context.Background(), userID)
	})

	// 创建处理器
	authHandler := handler.NewAuthHandler(authSvc)
	profileHandler := handler.NewProfileHandler(profileSvc)
	photoHandler := handler.NewPhotoHandler(storageSvc, profileSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	discoveryHandler := handler.NewDiscoveryHandler(discovery)
	matchHandler := handler.NewMatchHandler(matchSvc)
	chatHandler := handler.NewChatHandler(chatSvc, matchSvc, storageSvc, hub)
	relHandler := handler.NewRelationshipHandler(relSvc)

	r := gin.Default()
	r.Use(middleware.ErrorHandlerMiddleware())

	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{"status": "ok"})
	})

	// WebSocket（?token= 认证）
	r.GET("/ws", middleware.QueryTokenAuth(), handler.HandleWebSocket(hub))

	// 不需要登录
	public := r.Group("/api/v1/auth")
	public.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		public.POST("/cadastro", authHandler.SignUp)
		public.POST("/login", authHandler.Login)
		public.POST("/recuperar-senha", authHandler.RecoverPassword)
	}

	// 会话恢复：允许过期 token
	session := r.Group("/api/v1/auth")
	session.Use(middleware.Timeout(cfg.RequestTimeout), middleware.SessionAuth())
	{
		session.POST("/sessao", authHandler.Session)
		session.POST("/refresh", authHandler.Refresh)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.Timeout(cfg.RequestTimeout), middleware.AuthMiddleware())
	{
		// 账号
		api.POST("/auth/logout", authHandler.Logout)
		api.PUT("/auth/senha", authHandler.ChangePassword)
		api.PUT("/auth/email", authHandler.ChangeEmail)
		api.POST("/auth/desativar", authHandler.Deactivate)

		// 资料
		api.GET("/perfil", profileHandler.GetMyProfile)
		api.PUT("/perfil", profileHandler.UpdateMyProfile)
		api.GET("/perfil/opcoes", profileHandler.Options)
		api.POST("/perfil/interesses", profileHandler.ToggleInterest)
		api.GET("/perfis/:id", profileHandler.GetPublicProfile)

		// 照片
		api.POST("/perfil/fotos", photoHandler.UploadAll)
		api.GET("/perfil/fotos/arquivos", photoHandler.ListStored)
		api.POST("/perfil/fotos/:slot", photoHandler.UploadSlot)
		api.DELETE("/perfil/fotos/:slot", photoHandler.RemoveSlot)
		api.GET("/storage/assinada", photoHandler.SignedURL)

		// 偏好
		api.GET("/configuracoes", settingsHandler.GetSettings)
		api.PUT("/configuracoes", settingsHandler.UpdateSettings)

		// 发现
		api.GET("/descobrir", discoveryHandler.Queue)
		api.POST("/descobrir/swipe", discoveryHandler.Swipe)
		api.POST("/descobrir/desfazer", discoveryHandler.Undo)

		// 喜欢和匹配
		api.POST("/curtidas", matchHandler.Like)
		api.DELETE("/curtidas/:id", matchHandler.UndoLike)
		api.GET("/curtidas/recebidas", matchHandler.WhoLikedMe)
		api.GET("/matches", matchHandler.ListMatches)
		api.GET("/matches/:id", matchHandler.GetMatch)
		api.DELETE("/matches/:id", matchHandler.EndMatch)

		// 聊天
		api.GET("/matches/:id/mensagens", chatHandler.GetMessages)
		api.POST("/matches/:id/mensagens", chatHandler.SendText)
		api.POST("/matches/:id/fotos", chatHandler.SendPhoto)
		api.POST("/matches/:id/lidas", chatHandler.MarkRead)
		api.POST("/mensagens/:id/visualizar", chatHandler.OpenViewOnce)
		api.GET("/mensagens/nao-lidas", chatHandler.UnreadTotal)

		// 安全
		api.POST("/bloqueios", relHandler.BlockUser)
		api.POST("/denuncias", relHandler.ReportUser)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsHandler,
	}

	go func() {
		log.Printf("🚀 safimatch gateway starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] Server shutdown failed: %v", err)
	} else {
		log.Println("Server shut down gracefully")
	}
}
