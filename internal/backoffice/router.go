package backoffice

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anavi/settlement/internal/backoffice/handler"
	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/repository"
	"github.com/anavi/settlement/internal/service"
	"github.com/anavi/settlement/internal/ws"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc    *service.AuthService
	AuditSvc   *service.AuditService
	PayoutSvc  *service.PayoutService
	TrustSvc   *service.TrustService
	EscrowRepo *repository.EscrowRepository
	DealRepo   *repository.DealRepository
	PayoutRepo *repository.PayoutRepository
	Hub        *ws.Hub
	Cfg        *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine on port 8081.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.EscrowRepo, deps.DealRepo, deps.PayoutRepo, deps.AuditSvc, deps.Hub)
	payoutH := handler.NewPayoutAdminHandler(deps.PayoutSvc)
	auditH := handler.NewAuditAdminHandler(deps.AuditSvc)
	trustH := handler.NewTrustAdminHandler(deps.TrustSvc)

	jwtMW := adminJWTMiddleware(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(jwtMW)
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Payout settlement queue
		p := admin.Group("/payouts")
		{
			p.GET("", payoutH.List)
			p.GET("/:id", payoutH.Detail)
			p.POST("/:id/approve", payoutH.Approve)
			p.POST("/:id/complete", payoutH.Complete)
			p.POST("/:id/fail", payoutH.Fail)
		}

		// Audit chain
		a := admin.Group("/audit")
		{
			a.POST("/verify", auditH.VerifyChain)
			a.GET("/export", auditH.ExportCSV)
		}

		// Trust
		tr := admin.Group("/trust")
		{
			tr.POST("/:userId/recompute", trustH.Recompute)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: your IP is not whitelisted",
			})
			return
		}
		c.Next()
	}
}

// ── Admin JWT middleware ──────────────────────────────────────────────────────

// adminJWTMiddleware validates a back-office JWT (separate signing secret,
// admin role required).
func adminJWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := authSvc.ParseAdminToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
