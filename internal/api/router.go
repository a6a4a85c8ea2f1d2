package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "formsmith/internal/api/context"
	"formsmith/internal/api/handlers"
	"formsmith/internal/api/middleware"
)

type Dependencies struct {
	HealthHandler     *handlers.HealthHandler
	FormHandler       *handlers.FormHandler
	SubmissionHandler *handlers.SubmissionHandler
	HistoryHandler    *handlers.HistoryHandler
	DeliveryHandler   *handlers.DeliveryHandler
	ExportHandler     *handlers.ExportHandler
	IdentityHandler   *handlers.IdentityHandler
	AssistantHandler  *handlers.AssistantHandler
	AuthMiddleware    *middleware.AuthMiddleware
	BusinessScope     *middleware.BusinessScope
	RateLimiter       *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware
	scope := deps.BusinessScope
	read := deps.RateLimiter.Limit(middleware.LimitAPIRead)
	write := deps.RateLimiter.Limit(middleware.LimitAPIWrite)

	router.GET("/health", wrap(deps.HealthHandler.Check))

	// Identity provider webhooks (svix signed)
	router.POST("/clerk/webhook", wrap(deps.IdentityHandler.Webhook))

	// Export download; the token is the credential
	router.GET("/export-csv", chain(deps.ExportHandler.Download, read))

	// Assistant streaming
	router.OPTIONS("/ai-stream", wrap(deps.AssistantHandler.Preflight))
	router.POST("/ai-stream", chain(deps.AssistantHandler.Stream, authMid.Handle, write))

	// Public form access
	router.GET("/api/v1/public/forms/:form_id",
		chain(deps.SubmissionHandler.PublicForm, read))
	router.POST("/api/v1/public/forms/:form_id/submissions",
		chain(deps.SubmissionHandler.Submit, deps.RateLimiter.Limit(middleware.LimitSubmit)))

	// Tenant-level routes resolve the business scope up front
	router.POST("/api/v1/forms",
		chain(deps.FormHandler.Create, authMid.Handle, scope.Handle, write))
	router.GET("/api/v1/forms",
		chain(deps.FormHandler.List, authMid.Handle, scope.Handle, read))

	router.POST("/api/v1/tags",
		chain(deps.FormHandler.CreateTag, authMid.Handle, scope.Handle, write))
	router.GET("/api/v1/tags",
		chain(deps.FormHandler.ListTags, authMid.Handle, scope.Handle, read))
	router.DELETE("/api/v1/tags/:tag_id",
		chain(deps.FormHandler.DeleteTag, authMid.Handle, scope.Handle, write))

	// Form-level routes authorize inside the engine so a missing form is
	// reported before membership.
	router.GET("/api/v1/forms/:form_id",
		chain(deps.FormHandler.Get, authMid.Handle, read))
	router.PATCH("/api/v1/forms/:form_id",
		chain(deps.FormHandler.Update, authMid.Handle, write))
	router.DELETE("/api/v1/forms/:form_id",
		chain(deps.FormHandler.Delete, authMid.Handle, write))
	router.POST("/api/v1/forms/:form_id/status",
		chain(deps.FormHandler.ChangeStatus, authMid.Handle, write))
	router.PUT("/api/v1/forms/:form_id/tags",
		chain(deps.FormHandler.SetTags, authMid.Handle, write))

	// Fields
	router.POST("/api/v1/forms/:form_id/fields",
		chain(deps.FormHandler.CreateField, authMid.Handle, write))
	router.PUT("/api/v1/forms/:form_id/fields/reorder",
		chain(deps.FormHandler.ReorderFields, authMid.Handle, write))
	router.PATCH("/api/v1/forms/:form_id/fields/:field_id",
		chain(deps.FormHandler.UpdateField, authMid.Handle, write))
	router.DELETE("/api/v1/forms/:form_id/fields/:field_id",
		chain(deps.FormHandler.DeleteField, authMid.Handle, write))

	// Edit history
	router.GET("/api/v1/forms/:form_id/history",
		chain(deps.HistoryHandler.List, authMid.Handle, read))
	router.POST("/api/v1/history/:history_id/restore",
		chain(deps.HistoryHandler.Restore, authMid.Handle, write))

	// Submissions
	router.GET("/api/v1/forms/:form_id/submissions",
		chain(deps.SubmissionHandler.List, authMid.Handle, read))
	router.GET("/api/v1/forms/:form_id/submissions/:submission_id",
		chain(deps.SubmissionHandler.Get, authMid.Handle, read))
	router.DELETE("/api/v1/forms/:form_id/submissions/:submission_id",
		chain(deps.SubmissionHandler.Delete, authMid.Handle, write))
	router.POST("/api/v1/forms/:form_id/exports",
		chain(deps.ExportHandler.IssueToken, authMid.Handle, write))
	router.GET("/api/v1/forms/:form_id/qr",
		chain(deps.ExportHandler.QRCode, authMid.Handle, read))

	// Assistant
	router.GET("/api/v1/forms/:form_id/chat",
		chain(deps.AssistantHandler.ListMessages, authMid.Handle, read))
	router.POST("/api/v1/forms/:form_id/chat",
		chain(deps.AssistantHandler.PostMessage, authMid.Handle, write))
	router.POST("/api/v1/forms/:form_id/tools",
		chain(deps.AssistantHandler.ExecuteTool, authMid.Handle, write))

	// Delivery configuration (admin only)
	router.POST("/api/v1/webhooks",
		chain(deps.DeliveryHandler.CreateWebhook, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))
	router.GET("/api/v1/webhooks",
		chain(deps.DeliveryHandler.ListWebhooks, authMid.Handle, scope.Handle, middleware.RequireAdmin, read))
	router.PATCH("/api/v1/webhooks/:webhook_id",
		chain(deps.DeliveryHandler.UpdateWebhook, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))
	router.DELETE("/api/v1/webhooks/:webhook_id",
		chain(deps.DeliveryHandler.DeleteWebhook, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))
	router.GET("/api/v1/webhooks/:webhook_id/entries",
		chain(deps.DeliveryHandler.ListEntries, authMid.Handle, scope.Handle, middleware.RequireAdmin, read))
	router.POST("/api/v1/webhooks/:webhook_id/test",
		chain(deps.DeliveryHandler.TestWebhook, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))

	router.POST("/api/v1/notifications",
		chain(deps.DeliveryHandler.CreateNotification, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))
	router.GET("/api/v1/notifications",
		chain(deps.DeliveryHandler.ListNotifications, authMid.Handle, scope.Handle, middleware.RequireAdmin, read))
	router.PATCH("/api/v1/notifications/:notification_id",
		chain(deps.DeliveryHandler.UpdateNotification, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))
	router.DELETE("/api/v1/notifications/:notification_id",
		chain(deps.DeliveryHandler.DeleteNotification, authMid.Handle, scope.Handle, middleware.RequireAdmin, write))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
