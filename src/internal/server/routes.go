package server

import (
	"time"

	"budgetbook-svc/src/clients"
	"budgetbook-svc/src/internal/dependency"
	"budgetbook-svc/src/internal/middleware"
	"budgetbook-svc/src/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	setupHealthEndpoints(deps)
	setupStatusRoute(router, deps)

	authMiddleware := middleware.NewAuthMiddleware(deps.AuthService)
	setupAuthRoutes(router, deps, authMiddleware)
	setupBudgetRoutes(router, deps, authMiddleware)
	setupUserRoutes(router, deps, authMiddleware)
	setupAdminRoutes(router, deps, authMiddleware)
}

func setupHealthEndpoints(deps *dependency.Manager) {
	router := deps.Router
	mongodb := deps.Mongodb
	redisClient := deps.Redis
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		mongoStatus := "ok"
		if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
			mongoStatus = "error: " + err.Error()
		}

		redisStatus := "ok"
		if err := redisClient.Client.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error: " + err.Error()
		}

		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.GET("/health/detailed", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "operational",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
			"components": gin.H{
				"database": gin.H{
					"mongodb": getStatus(isMongoConnected(mongodb, c)),
					"redis":   getStatus(isRedisConnected(redisClient.Client, c)),
				},
				"services": gin.H{
					"auth":    "operational",
					"session": "operational",
					"budget":  "operational",
				},
			},
		})
	})
}

func setupStatusRoute(router *gin.Engine, deps *dependency.Manager) {
	router.GET("/api/v1/status", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"api_version": "v1",
			"status":      "operational",
			"service":     deps.Config.App.Name,
		})
	})
}

func setupAuthRoutes(router *gin.Engine, deps *dependency.Manager, authMiddleware *middleware.AuthMiddleware) {
	handler := deps.AuthHandler

	authGroup := router.Group("/api/v1/auth")
	{
		authGroup.POST("/register", setRouteName("register"), handler.Register)
		authGroup.POST("/login", setRouteName("login"), handler.Login)
		authGroup.POST("/refresh", setRouteName("refresh"), handler.Refresh)
		authGroup.POST("/logout", setRouteName("logout"), handler.Logout)
		authGroup.POST("/check-session", setRouteName("checkSession"), handler.CheckSession)
		authGroup.POST("/renew-session", setRouteName("renewSession"), handler.RenewSession)
		authGroup.GET("/password-requirements", setRouteName("passwordRequirements"), handler.PasswordRequirements)

		authGroup.GET("/me",
			setRouteName("me"),
			authMiddleware.RequireAuth(),
			handler.Me)

		authGroup.POST("/terminate-sessions/:userId",
			setRouteName("terminateSessions"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireRole(user.RoleAdmin),
			handler.TerminateUserSessions)
	}
}

func setupBudgetRoutes(router *gin.Engine, deps *dependency.Manager, authMiddleware *middleware.AuthMiddleware) {
	handler := deps.BudgetHandler

	budgetGroup := router.Group("/api/v1/budget", authMiddleware.RequireAuth())
	{
		budgetGroup.GET("", setRouteName("listBudgetItems"), handler.ListItems)
		budgetGroup.POST("", setRouteName("createBudgetItem"), handler.CreateItem)
		budgetGroup.DELETE("/:itemId", setRouteName("deleteBudgetItem"), handler.DeleteItem)
	}
}

func setupUserRoutes(router *gin.Engine, deps *dependency.Manager, authMiddleware *middleware.AuthMiddleware) {
	handler := deps.UserHandler

	usersGroup := router.Group("/api/v1/users", authMiddleware.RequireAuth())
	{
		usersGroup.GET("/profile", setRouteName("getProfile"), handler.GetProfile)

		usersGroup.PATCH("/:userId/session-limit",
			setRouteName("setSessionLimit"),
			authMiddleware.RequireRole(user.RoleAdmin),
			handler.SetSessionLimit)
	}
}

func setupAdminRoutes(router *gin.Engine, deps *dependency.Manager, authMiddleware *middleware.AuthMiddleware) {
	userHandler := deps.UserHandler

	admin := router.Group("/api/v1/admin",
		authMiddleware.RequireAuth(),
		authMiddleware.RequireRole(user.RoleAdmin))
	{
		admin.GET("/users", setRouteName("getUsersList"), userHandler.GetAllUsers)
		admin.GET("/users/stats", setRouteName("getUsersStats"), userHandler.GetUserStats)
		admin.PATCH("/users/:userId/block", setRouteName("blockUser"), userHandler.BlockUser)
		admin.PATCH("/users/:userId/unblock", setRouteName("unblockUser"), userHandler.UnblockUser)
		admin.PATCH("/users/:userId/role", setRouteName("setUserRole"), userHandler.SetRole)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func isMongoConnected(mongodb *clients.MongoDB, c *gin.Context) bool {
	return mongodb.Client.Ping(c.Request.Context(), nil) == nil
}

func isRedisConnected(redisClient *redis.Client, c *gin.Context) bool {
	return redisClient.Ping(c.Request.Context()).Err() == nil
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

func getStatus(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}
