package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anavi/settlement/internal/api/handler"
	"github.com/anavi/settlement/internal/api/middleware"
	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/repository"
	"github.com/anavi/settlement/internal/service"
	"github.com/anavi/settlement/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc      *service.AuthService
	EscrowSvc    *service.EscrowService
	MilestoneSvc *service.MilestoneService
	PayoutSvc    *service.PayoutService
	TrustSvc     *service.TrustService
	AuditSvc     *service.AuditService
	DealRepo     *repository.DealRepository
	Hub          *ws.Hub
	Cfg          *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	dealH := handler.NewDealHandler(deps.DealRepo)
	escrowH := handler.NewEscrowHandler(deps.EscrowSvc)
	milestoneH := handler.NewMilestoneHandler(deps.MilestoneSvc)
	payoutH := handler.NewPayoutHandler(deps.PayoutSvc)
	trustH := handler.NewTrustHandler(deps.TrustSvc)
	auditH := handler.NewAuditHandler(deps.AuditSvc)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	settleRL := middleware.RateLimitMiddleware(10) // money-moving endpoints
	readRL := middleware.RateLimitMiddleware(50)   // read endpoints

	api := r.Group("/api")
	api.Use(jwtMW)
	{
		// ── Deals ────────────────────────────────────────────────────────────
		deals := api.Group("/deals")
		deals.Use(readRL)
		{
			deals.POST("", dealH.Create)
			deals.GET("", dealH.List)
			deals.GET("/:dealId", dealH.Get)
			deals.GET("/:dealId/participants", dealH.Participants)
			deals.POST("/:dealId/participants", dealH.AddParticipant)

			// Escrow lifecycle
			deals.GET("/:dealId/escrow", escrowH.Status)
			deals.GET("/:dealId/escrow/transactions", escrowH.Transactions)
			deals.POST("/:dealId/escrow", settleRL, escrowH.CreateAccount)
			deals.POST("/:dealId/escrow/fund", settleRL, escrowH.Fund)
			deals.POST("/:dealId/escrow/refund", settleRL, escrowH.Refund)

			// Milestone progression
			deals.GET("/:dealId/milestones", milestoneH.List)
			deals.GET("/:dealId/milestones/next", milestoneH.Next)
			deals.POST("/:dealId/milestones/setup", settleRL, milestoneH.Setup)
			deals.POST("/:dealId/milestones/:milestoneId/start", milestoneH.Start)
			deals.POST("/:dealId/milestones/:milestoneId/complete", settleRL, milestoneH.Complete)

			// Payouts per deal
			deals.GET("/:dealId/payouts", payoutH.ByDeal)
		}

		// ── Payouts (caller-centric) ─────────────────────────────────────────
		payouts := api.Group("/payouts")
		payouts.Use(readRL)
		{
			payouts.GET("/my", payoutH.Mine)
			payouts.GET("/statement", payoutH.Statement)
		}

		// ── Trust ────────────────────────────────────────────────────────────
		trust := api.Group("/trust")
		trust.Use(readRL)
		{
			trust.GET("/:userId", trustH.Score)
			trust.GET("/:userId/history", trustH.History)
		}

		// ── Audit trail ──────────────────────────────────────────────────────
		api.GET("/audit", readRL, auditH.Trail)
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://anavi.app":     true,
				"https://www.anavi.app": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
