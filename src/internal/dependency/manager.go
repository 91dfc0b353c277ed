package dependency

import (
	"budgetbook-svc/src/clients"
	"budgetbook-svc/src/internal/auth"
	"budgetbook-svc/src/internal/budget"
	"budgetbook-svc/src/internal/cache"
	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/events"
	"budgetbook-svc/src/internal/ratelimit"
	"budgetbook-svc/src/internal/session"
	"budgetbook-svc/src/internal/token"
	"budgetbook-svc/src/internal/user"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router        *gin.Engine
	Config        *config.Configuration
	Mongodb       *clients.MongoDB
	Redis         *clients.RedisClient
	RabbitMQ      *clients.RabbitMQ
	CacheService  cache.Service
	Publisher     events.Publisher
	AuthService   auth.Service
	AuthHandler   auth.Handler
	UserService   user.Service
	UserHandler   user.Handler
	BudgetHandler budget.Handler
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	cacheService := cache.NewCacheService(redisClient.Client, cfg)

	var publisher events.Publisher = events.NopPublisher{}
	if rabbitMQ != nil {
		publisher = events.NewPublisher(rabbitMQ.Channel, &cfg.Queue.RabbitMQ)
	}

	userRepo := user.NewUserRepository(mongodb, cfg.Database.UserCollection)
	sessionRepo := session.NewSessionRepository(mongodb, cfg.Database.SessionCollection)
	budgetRepo := budget.NewBudgetRepository(mongodb, cfg.Database.BudgetCollection)

	codec := token.NewCodec(cfg.Security)
	limiter := ratelimit.New(cfg.Security.RateLimit)

	authService := auth.NewService(userRepo, sessionRepo, cacheService, codec, limiter, publisher, &cfg.Security)
	authHandler := auth.NewHandler(cfg, authService)

	userService := user.NewUserService(userRepo, cacheService)
	userHandler := user.NewHandler(cfg, userService)

	budgetHandler := budget.NewHandler(cfg, budgetRepo)

	return &Manager{
		Router:        router,
		Config:        cfg,
		Mongodb:       mongodb,
		Redis:         redisClient,
		RabbitMQ:      rabbitMQ,
		CacheService:  cacheService,
		Publisher:     publisher,
		AuthService:   authService,
		AuthHandler:   authHandler,
		UserService:   userService,
		UserHandler:   userHandler,
		BudgetHandler: budgetHandler,
	}
}
