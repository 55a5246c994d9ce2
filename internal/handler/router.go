package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/middleware"
	"github.com/examsync/exam-bridge-api/pkg/config"
)

// Handlers groups the HTTP surface for route registration.
type Handlers struct {
	Uploads   *UploadHandler
	Artifacts *ArtifactHandler
	Reports   *ReportHandler
	Queue     *QueueHandler
	Mappings  *MappingHandler
	Ledger    *LedgerHandler
	Exports   *ExportHandler
	Metrics   *MetricsHandler
}

// RegisterRoutes mounts every endpoint under the API prefix. All business
// routes require a gateway-issued actor token; observability endpoints stay
// open for the scrapers and load balancers in front of the service.
func RegisterRoutes(r *gin.Engine, prefix string, jwtCfg config.JWTConfig, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.Actor(jwtCfg))

	uploads := api.Group("/uploads")
	{
		uploads.POST("", h.Uploads.Single)
		uploads.POST("/bulk", h.Uploads.Bulk)
		uploads.POST("/probe", h.Uploads.Probe)
	}

	artifacts := api.Group("/artifacts")
	{
		artifacts.GET("", h.Artifacts.List)
		artifacts.GET("/stats", h.Artifacts.Stats)
		artifacts.GET("/:id", h.Artifacts.Get)
		artifacts.GET("/:id/content", h.Artifacts.Content)
		artifacts.POST("/:id/replace", h.Artifacts.Replace)
		artifacts.DELETE("/:id", h.Artifacts.Delete)
		artifacts.POST("/:id/reset", h.Artifacts.Reset)
		artifacts.POST("/:id/clear-transaction", h.Artifacts.ClearTransaction)
		artifacts.POST("/:id/unlock-attempt", h.Artifacts.UnlockAttempt)
		artifacts.POST("/:id/transaction", h.Artifacts.StudentSubmit)

		artifacts.POST("/:id/reports", h.Reports.Issue)
		artifacts.GET("/:id/reports", h.Reports.ListForArtifact)

		artifacts.POST("/:id/enqueue", h.Queue.Enqueue)
		artifacts.GET("/:id/queue-entry", h.Queue.ActiveEntry)

		artifacts.GET("/:id/ledger", h.Ledger.ListForArtifact)
	}

	reports := api.Group("/reports")
	{
		reports.POST("/:id/resolve", h.Reports.Resolve)
		reports.POST("/:id/withdraw", h.Reports.Withdraw)
	}

	queue := api.Group("/queue")
	{
		queue.GET("", h.Queue.Status)
		queue.POST("/drain", h.Queue.Drain)
	}

	mappings := api.Group("/mappings")
	{
		mappings.POST("/subjects", h.Mappings.UpsertSubject)
		mappings.GET("/subjects", h.Mappings.ListSubjects)
		mappings.DELETE("/subjects/:id", h.Mappings.DeactivateSubject)
		mappings.POST("/subjects/:id/verify", h.Mappings.VerifySubject)
		mappings.POST("/students", h.Mappings.UpsertStudent)
		mappings.GET("/students", h.Mappings.ListStudents)
		mappings.DELETE("/students/:id", h.Mappings.DeleteStudent)
		mappings.POST("/coverage", h.Mappings.Coverage)
	}

	api.GET("/ledger", h.Ledger.List)
	api.GET("/exports/register", h.Exports.Register)
}
