package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatdeck/api/internal/ai"
	"chatdeck/api/internal/config"
	"chatdeck/api/internal/mail"
	"chatdeck/api/internal/middleware"
	"chatdeck/api/internal/models"
	"chatdeck/api/internal/repository"
	"chatdeck/api/internal/service"
	"chatdeck/api/internal/storage"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	db          *pgxpool.Pool
	cache       *redis.Client
	auth        *service.AuthService
	chat        *service.ChatService
	attachments *service.AttachmentService
	account     *service.AccountService
	users       *repository.UserRepository
	devices     *repository.DeviceSessionRepository
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	store *storage.ObjectStore,
	gateway *ai.Gateway,
	mailer mail.Sender,
	cfg *config.AppConfig,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	deviceRepo := repository.NewDeviceSessionRepository(db)
	pendingRepo := repository.NewPendingRepository(cache)
	chatRepo := repository.NewChatRepository(db)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		db:          db,
		cache:       cache,
		auth:        service.NewAuthService(userRepo, deviceRepo, pendingRepo, mailer, cfg, log),
		chat:        service.NewChatService(chatRepo, gateway, log),
		attachments: service.NewAttachmentService(chatRepo, gateway, store, log),
		account:     service.NewAccountService(userRepo, chatRepo, gateway, store, log),
		users:       userRepo,
		devices:     deviceRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/verify", h.VerifyEmail)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/password/forgot", h.ForgotPassword)
	auth.POST("/password/reset", h.ResetPassword)

	authed := middleware.Auth(h.cfg, h.users, h.devices)

	session := v1.Group("/auth")
	session.Use(authed)
	session.POST("/logout", h.Logout)

	users := v1.Group("/users")
	users.Use(authed)
	users.GET("/me", h.Me)
	users.PUT("/me", h.UpdateProfile)
	users.POST("/me/avatar", h.UploadAvatar)
	users.DELETE("/me", h.DeleteAccount)

	chat := v1.Group("/chat")
	chat.Use(authed)
	chat.POST("", h.NewPrompt)
	chat.PUT("", h.ContinuePrompt)
	chat.GET("/saved", h.SavedSession)
	chat.GET("/history", h.History)
	chat.DELETE("/all", h.ClearHistory)
	chat.POST("/upload", h.UploadAttachment)
	chat.POST("/deletefile", h.DeleteAttachment)

	admin := v1.Group("/admin")
	admin.Use(authed, middleware.RequireRoles(models.UserRoleAdmin))
	admin.GET("/users", h.AdminListUsers)
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	h.log.Debug().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("request error")
	respondServiceError(c, err)
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get("current_user")
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}
