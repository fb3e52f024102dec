package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"contenthub/internal/handler"
	"contenthub/internal/model"
	"contenthub/pkg/config"
	"contenthub/pkg/rbac"
)

// ReadyCheck 就绪探针中的一项依赖检查
type ReadyCheck func(ctx context.Context) error

// Handlers 路由挂载的全部 handler
type Handlers struct {
	Auth    *handler.AuthHandler
	Comic   *handler.ComicHandler
	Couplet *handler.CoupletHandler
	Redeem  *handler.RedeemHandler
	Points  *handler.PointsHandler
	Menu    *handler.MenuHandler
	Role    *handler.RoleHandler
	Admin   *handler.AdminHandler
}

// Deps 路由依赖的中间件组件
type Deps struct {
	Tenants     TenantResolver
	Checker     PermissionChecker
	Limiter     RateLimiter
	RateLimit   config.RateLimitConfig
	JWTSecret   string
	ReadyChecks map[string]ReadyCheck
	Logger      *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, d Deps) *Router {
	r := gin.New()
	r.Use(
		RecoveryMiddleware(d.Logger),
		TraceMiddleware(),
		MetricsMiddleware(),
		AccessLogMiddleware(d.Logger),
	)

	// 探针与指标不经过租户解析
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyHandler(d.ReadyChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	api.Use(
		TenantMiddleware(d.Tenants, d.Logger),
		GlobalRateLimitMiddleware(d.Limiter, d.RateLimit.GlobalPerMinute, d.Logger),
	)

	perm := func(code string) gin.HandlerFunc {
		return RequirePermission(d.Checker, code, d.Logger)
	}
	userLimit := UserRateLimitMiddleware(d.Limiter, d.RateLimit.UserPerMinute, d.Logger)

	// 公开接口
	authGroup := api.Group("/auth")
	authGroup.Use(LoginRateLimitMiddleware(d.Limiter, d.RateLimit.LoginPerMinute, d.Logger))
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
	}

	public := api.Group("/")
	public.Use(OptionalAuthMiddleware(d.JWTSecret), userLimit)
	{
		public.GET("/comics", h.Comic.ListPublic)
		public.GET("/comics/:key", h.Comic.GetPublic)
		public.GET("/episodes/:id", h.Comic.ReadEpisode)
		public.GET("/couplets", h.Couplet.List)
		public.GET("/couplets/:key", h.Couplet.Get)
		public.GET("/couplets/:key/versions", h.Couplet.ListVersions)
		public.GET("/couplets/:key/versions/:number", h.Couplet.GetVersion)
		public.GET("/menus", h.Menu.Tree)
		public.GET("/leaderboard", h.Points.Leaderboard)
	}

	// 登录用户
	authed := api.Group("/")
	authed.Use(AuthMiddleware(d.JWTSecret), userLimit)
	{
		authed.GET("/me", h.Auth.Me)
		authed.GET("/me/vip", h.Auth.VIP)
		authed.GET("/me/referrals", h.Auth.Referrals)
		authed.GET("/me/points", h.Points.Summary)
		authed.GET("/me/points/transactions", h.Points.Transactions)
		authed.POST("/me/checkin", h.Points.Checkin)
		authed.GET("/me/achievements", h.Points.MyAchievements)
		authed.POST("/episodes/:id/read", perm(rbac.PermissionComicRead), h.Comic.RecordRead)
		authed.POST("/redeem", h.Redeem.Redeem)
	}

	admin := authed.Group("/admin")

	comicWrite := admin.Group("/", perm(rbac.PermissionComicWrite))
	{
		comicWrite.GET("/comics", h.Comic.ListAdmin)
		comicWrite.GET("/comics/:id", h.Comic.GetAdmin)
		comicWrite.GET("/comics/:id/volumes", h.Comic.ListVolumes)
		comicWrite.GET("/comics/:id/episodes", h.Comic.ListEpisodes)
		comicWrite.GET("/episodes/:id", h.Comic.GetEpisode)
		comicWrite.GET("/episodes/:id/pages", h.Comic.ListPages)
		comicWrite.GET("/pages/:id/panels", h.Comic.ListPanels)

		comicWrite.POST("/comics", h.Comic.Create)
		comicWrite.PUT("/comics/:id", h.Comic.Update)
		comicWrite.DELETE("/comics/:id", h.Comic.Delete)

		comicWrite.POST("/comics/:id/volumes", h.Comic.CreateVolume)
		comicWrite.PUT("/volumes/:id", h.Comic.UpdateVolume)
		comicWrite.DELETE("/volumes/:id", h.Comic.DeleteVolume)

		comicWrite.POST("/comics/:id/episodes", h.Comic.CreateEpisode)
		comicWrite.PUT("/episodes/:id", h.Comic.UpdateEpisode)
		comicWrite.DELETE("/episodes/:id", h.Comic.DeleteEpisode)

		comicWrite.POST("/episodes/:id/pages", h.Comic.AddPage)
		comicWrite.PUT("/episodes/:id/pages/order", h.Comic.ReorderPages)
		comicWrite.DELETE("/pages/:id", h.Comic.DeletePage)

		comicWrite.POST("/pages/:id/panels", h.Comic.AddPanel)
		comicWrite.PUT("/panels/:id", h.Comic.UpdatePanel)
		comicWrite.DELETE("/panels/:id", h.Comic.DeletePanel)
	}

	publish := admin.Group("/", perm(rbac.PermissionComicPublish))
	{
		publish.POST("/comics/:id/publish", h.Comic.SetStatus(model.StatusPublished))
		publish.POST("/comics/:id/unpublish", h.Comic.SetStatus(model.StatusDraft))
		publish.POST("/comics/:id/archive", h.Comic.SetStatus(model.StatusArchived))
		publish.POST("/episodes/:id/publish", h.Comic.SetEpisodeStatus("published"))
		publish.POST("/episodes/:id/unpublish", h.Comic.SetEpisodeStatus("draft"))
	}

	couplets := admin.Group("/couplets", perm(rbac.PermissionCoupletWrite))
	{
		couplets.POST("", h.Couplet.Create)
		couplets.PUT("/:id", h.Couplet.Update)
		couplets.DELETE("/:id", h.Couplet.Delete)
		couplets.POST("/:id/versions", h.Couplet.CreateVersion)
		couplets.POST("/:id/versions/:number/restore", h.Couplet.Restore)
	}

	redeem := admin.Group("/redeem-codes", perm(rbac.PermissionRedeemManage))
	{
		redeem.POST("", h.Redeem.GenerateBatch)
		redeem.GET("", h.Redeem.ListCodes)
		redeem.PATCH("/:id", h.Redeem.UpdateCode)
		redeem.DELETE("/:id", h.Redeem.DeleteCode)
	}

	admin.POST("/users/:id/points", perm(rbac.PermissionPointsManage), h.Points.Adjust)

	achievements := admin.Group("/achievements", perm(rbac.PermissionAchievementManage))
	{
		achievements.GET("", h.Points.ListAchievements)
		achievements.GET("/:id", h.Points.GetAchievement)
		achievements.POST("", h.Points.CreateAchievement)
		achievements.PUT("/:id", h.Points.UpdateAchievement)
		achievements.DELETE("/:id", h.Points.DeleteAchievement)
	}

	menus := admin.Group("/menus", perm(rbac.PermissionMenuManage))
	{
		menus.GET("", h.Menu.List)
		menus.GET("/:id", h.Menu.Get)
		menus.POST("", h.Menu.Create)
		menus.PUT("/:id", h.Menu.Update)
		menus.DELETE("/:id", h.Menu.Delete)
		menus.PUT("/:id/translations", h.Menu.SetTranslations)
	}

	roles := admin.Group("/", perm(rbac.PermissionRoleManage))
	{
		roles.GET("/roles", h.Role.ListRoles)
		roles.POST("/roles", h.Role.CreateRole)
		roles.PUT("/roles/:id/permissions", h.Role.SetPermissions)
		roles.GET("/permissions", h.Role.ListPermissions)
		roles.PUT("/users/:id/roles/:role_id", h.Role.AssignRole)
		roles.DELETE("/users/:id/roles/:role_id", h.Role.RevokeRole)
	}

	outbox := admin.Group("/outbox", perm(rbac.PermissionOutboxReplay))
	{
		outbox.GET("/failed", h.Admin.ListFailedEvents)
		outbox.POST("/replay-failed", h.Admin.ReplayFailedEvents)
		outbox.POST("/:id/replay", h.Admin.ReplayOutboxEvent)
	}

	return &Router{Engine: r}
}

func readyHandler(checks map[string]ReadyCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": name + "_not_ready",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
