package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/auth"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/handler"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/metrics"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/trace"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Projects *handler.ProjectHandler
	Calendar *handler.CalendarHandler
	// Admin is optional; the replay routes are only mounted when it is set.
	Admin  *handler.AdminHandler
	Tokens *auth.Tokens
	Ready  map[string]ReadinessCheck
	Logger *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(traceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(requestLogger(d.Logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range d.Ready {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	api := r.Group("/")
	api.Use(auth.Middleware(d.Tokens, d.Logger))
	{
		api.POST("/projects", d.Projects.CreateProject)
		api.GET("/projects", d.Projects.ListProjects)
		api.GET("/projects/:id", d.Projects.GetProject)
		api.DELETE("/projects/:id", d.Projects.DeleteProject)
		api.GET("/projects/:id/progress", d.Projects.Progress)
		api.GET("/projects/:id/activity", d.Projects.Activity)
		api.POST("/projects/:id/activity/read", d.Projects.MarkActivityRead)
		api.POST("/projects/:id/participants", d.Projects.AddParticipant)
		api.DELETE("/projects/:id/participants/:participantID", d.Projects.RemoveParticipant)
		api.POST("/projects/:id/milestones", d.Projects.AddMilestone)
		api.POST("/projects/:id/milestones/:milestoneID/complete", d.Projects.CompleteMilestone)
		api.POST("/projects/:id/milestones/:milestoneID/reopen", d.Projects.ReopenMilestone)
		api.POST("/projects/:id/events", d.Projects.AddProjectEvent)
		api.DELETE("/projects/:id/events/:eventID", d.Projects.RemoveProjectEvent)
		api.POST("/projects/:id/complete", d.Projects.CompleteProject)

		api.GET("/calendar/events", d.Calendar.EventsOn)
		api.GET("/calendar/upcoming", d.Calendar.Upcoming)
		api.GET("/calendar/month", d.Calendar.Month)
		api.GET("/inbox", d.Calendar.Inbox)
	}

	if d.Admin != nil {
		admin := api.Group("/admin")
		admin.Use(auth.RequireRole(model.RoleSupervisor))
		admin.POST("/outbox/replay", d.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", d.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

func (r *Router) Handler() http.Handler {
	return r.Engine
}

// traceMiddleware reuses an incoming X-Trace-ID or creates one, and echoes it on the response.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName); id != "" {
			ctx = trace.WithContext(ctx, id)
		}
		ctx, id := trace.Ensure(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), latency)

		logger.Info("HTTP Request",
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
