package handler

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.Engine, reports *ReportHandler, stream *StreamHandler) {
	auth := stream.RequireToken()

	r.GET("/health", reports.Health)

	// Read-only views
	r.GET("/status", reports.Status)
	r.GET("/reports", reports.GetReports)
	r.GET("/reports/nearby", reports.GetNearby)
	r.GET("/offenses", reports.GetOffenses)

	// Writes and the change stream (token required when configured)
	r.POST("/viewport", auth, reports.SetViewport)
	r.POST("/reports", auth, reports.CreateReport)
	r.PUT("/reports/:id/confirm", auth, reports.ConfirmReport)
	r.GET("/stream", auth, stream.StreamChanges)
}
