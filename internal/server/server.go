package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/authorization"
	"github.com/smallbiznis/spendwise/internal/config"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	dependencydomain "github.com/smallbiznis/spendwise/internal/dependency/domain"
	"github.com/smallbiznis/spendwise/internal/dependency/graph"
	dependencyservice "github.com/smallbiznis/spendwise/internal/dependency/service"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	keystonedomain "github.com/smallbiznis/spendwise/internal/keystone/domain"
	"github.com/smallbiznis/spendwise/internal/observability"
	obsmiddleware "github.com/smallbiznis/spendwise/internal/observability/logger"
	obstracing "github.com/smallbiznis/spendwise/internal/observability/tracing"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(provideToolGraph),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// ToolGraph answers impact queries and edits edges for the tool endpoints.
type ToolGraph interface {
	Impact(ctx context.Context, orgID, toolID snowflake.ID) (graph.Impact, error)
	Dependencies(ctx context.Context, orgID, toolID snowflake.ID) (dependencydomain.ToolDependencies, error)
	AddDependency(ctx context.Context, req dependencydomain.AddDependencyRequest) (dependencydomain.ToolDependency, error)
	RemoveDependency(ctx context.Context, orgID, toolID, dependencyID snowflake.ID) error
}

func provideToolGraph(svc *dependencyservice.Service) ToolGraph {
	return svc
}

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	decisionSvc   decisiondomain.Service
	escalationSvc escalationdomain.Service
	keystoneSvc   keystonedomain.Service
	toolSvc       tooldomain.Service
	toolGraph     ToolGraph
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	DecisionSvc   decisiondomain.Service
	EscalationSvc escalationdomain.Service
	KeystoneSvc   keystonedomain.Service
	ToolSvc       tooldomain.Service
	ToolGraph     ToolGraph
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		decisionSvc:   p.DecisionSvc,
		escalationSvc: p.EscalationSvc,
		keystoneSvc:   p.KeystoneSvc,
		toolSvc:       p.ToolSvc,
		toolGraph:     p.ToolGraph,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	org := s.engine.Group("/api/orgs/:org_id", OrgContext(), ActorRequired())

	// -------- Subscriptions --------
	org.POST("/subscriptions/:id/analyze", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionAnalyze), s.AnalyzeSubscription)

	// -------- Decisions --------
	org.POST("/decisions/analyze", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionAnalyze), s.AnalyzeAll)
	org.GET("/decisions", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionView), s.ListDecisions)
	org.GET("/decisions/:id", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionView), s.GetDecision)
	org.GET("/decisions/:id/audit", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionView), s.GetDecisionAudit)
	org.POST("/decisions/:id/approve", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionApprove), s.ApproveDecision)
	org.POST("/decisions/:id/reject", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionReject), s.RejectDecision)
	org.POST("/decisions/:id/execute", s.authorizeOrgAction(authorization.ObjectDecision, authorization.ActionDecisionExecute), s.ExecuteDecision)

	// -------- Escalations --------
	org.POST("/escalations/:id/respond", s.authorizeOrgAction(authorization.ObjectEscalation, authorization.ActionEscalationRespond), s.RespondEscalation)

	// -------- Tools --------
	org.POST("/tools", s.authorizeOrgAction(authorization.ObjectTool, authorization.ActionToolManage), s.UpsertTool)
	org.POST("/tools/:id/dependencies", s.authorizeOrgAction(authorization.ObjectTool, authorization.ActionToolManage), s.AddToolDependency)
	org.DELETE("/tools/:id/dependencies/:dependency_id", s.authorizeOrgAction(authorization.ObjectTool, authorization.ActionToolManage), s.RemoveToolDependency)
	org.GET("/tools/:id/impact", s.authorizeOrgAction(authorization.ObjectTool, authorization.ActionToolView), s.GetToolImpact)
	org.POST("/tools/keystone/recompute", s.authorizeOrgAction(authorization.ObjectTool, authorization.ActionToolRecompute), s.RecomputeKeystone)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
