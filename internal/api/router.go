package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/freelancer-expense-classifier/internal/api/handler"
	"github.com/freelancer-expense-classifier/internal/api/middleware"
	"github.com/freelancer-expense-classifier/internal/api/service"
	"github.com/freelancer-expense-classifier/internal/config"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	cfg *config.Config,
	authService service.AuthService,
	authHandler *handler.AuthHandler,
	transactionHandler *handler.TransactionHandler,
	exportHandler *handler.ExportHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Account and session operations
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
		}

		// Everything below requires a session token
		authed := v1.Group("", middleware.Auth(logger, authService))
		{
			authed.GET("/auth/me", authHandler.Me)
			authed.PUT("/auth/profile", authHandler.UpdateProfile)

			// Statement processing and transaction operations
			transactions := authed.Group("/transactions")
			{
				transactions.POST("/upload", transactionHandler.Upload)
				transactions.POST("/cancel-processing", transactionHandler.Cancel)
				transactions.POST("/reclassify", transactionHandler.Reclassify)
				transactions.GET("", transactionHandler.List)
				transactions.GET("/statistics/summary", transactionHandler.Statistics)
				transactions.GET("/uploads", transactionHandler.UploadHistory)
				transactions.GET("/:id", transactionHandler.Get)
				transactions.PUT("/:id", transactionHandler.Update)
				transactions.DELETE("/:id", transactionHandler.Delete)
				transactions.DELETE("", transactionHandler.DeleteAll)
			}

			// Downloadable reports
			export := authed.Group("/export")
			{
				export.GET("/transactions/csv", exportHandler.TransactionsCSV)
				export.GET("/business-expenses/csv", exportHandler.BusinessExpensesCSV)
				export.GET("/tax-report/csv", exportHandler.TaxReportCSV)
				export.GET("/summary-report", exportHandler.SummaryReport)
			}
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
