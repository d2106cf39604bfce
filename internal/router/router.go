package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/auth"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"github.com/lucci-xyz/bounty-sub003/internal/handler"
	"github.com/lucci-xyz/bounty-sub003/internal/logic"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
	"github.com/lucci-xyz/bounty-sub003/internal/siwe"
	"gorm.io/gorm"
)

// ChainBackend 链上读写，由 chain.Manager 实现
type ChainBackend interface {
	reconcile.Reader
	logic.TxConfirmer
	logic.RefundSubmitter
}

type healthReporter interface {
	GetHealthStatus(ctx context.Context) map[string]interface{}
}

func Setup(db *gorm.DB, backend ChainBackend, provider handler.IdentityProvider, cfg *config.Config) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(session.Middleware(db, cfg.Session)...)

	// 仓储与业务逻辑
	bountyRepo := repository.NewBountyRepository(db)
	reconciler := reconcile.NewService(backend)
	bountyLogic := logic.NewBountyLogic(bountyRepo, reconciler, backend)
	refundLogic := logic.NewRefundLogic(bountyLogic, reconciler, backend)
	walletLogic := logic.NewWalletLogic(repository.NewWalletRepository(db))
	statsLogic := logic.NewStatsLogic(bountyRepo, repository.NewClaimRepository(db))
	siweService := siwe.NewService(repository.NewNonceRepository(db), cfg.Siwe)
	authorizer := auth.NewAuthorizer(cfg.Auth.AdminGithubIDs)

	authHandler := handler.NewAuthHandler(siweService, provider, cfg.Server.BaseURL)
	walletHandler := handler.NewWalletHandler(walletLogic)
	bountyHandler := handler.NewBountyHandler(bountyLogic, refundLogic, reconciler)
	statsHandler := handler.NewStatsHandler(statsLogic)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		resp := gin.H{
			"status":  "ok",
			"service": "bounty-service",
		}
		if reporter, ok := backend.(healthReporter); ok {
			resp["networks"] = reporter.GetHealthStatus(c.Request.Context())
		}
		c.JSON(http.StatusOK, resp)
	})

	// GitHub 登录
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/github/login", authHandler.GithubLogin)
		authGroup.GET("/github/callback", authHandler.GithubCallback)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 钱包签名登录
		siweGroup := v1.Group("/siwe")
		{
			siweGroup.GET("/nonce", authHandler.Nonce)
			siweGroup.POST("/message", authHandler.Message)
			siweGroup.POST("/verify", authHandler.Verify)
		}

		// 钱包绑定
		v1.POST("/wallet/link", auth.SessionRequired(), walletHandler.Link)
		v1.DELETE("/wallet/link", auth.SessionRequired(), walletHandler.Unlink)
		v1.GET("/wallet/:githubId", walletHandler.Get)

		// 悬赏
		bounties := v1.Group("/bounties")
		{
			bounties.POST("", auth.SessionRequired(), bountyHandler.Register)
			bounties.GET("/:bountyId", bountyHandler.Get)
			bounties.POST("/:bountyId/refund", auth.SessionRequired(), bountyHandler.Refund)
			bounties.POST("/:bountyId/refund/confirm", auth.SessionRequired(), bountyHandler.ConfirmRefund)
			bounties.POST("/:bountyId/refund/self-report", auth.SessionRequired(), bountyHandler.SelfReportRefund)
			bounties.POST("/:bountyId/cancel/confirm", auth.SessionRequired(), bountyHandler.ConfirmCancel)
		}
		v1.GET("/contract/bounties/:bountyId", bountyHandler.ContractBounty)

		// 统计
		v1.GET("/users/:githubId/claims/stats", statsHandler.ClaimedStats)
		v1.GET("/admin/stats", auth.AdminRequired(authorizer), statsHandler.Overview)
	}

	return r
}

// CORS中间件，只对白名单来源回写 Origin 并允许携带 cookie
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
