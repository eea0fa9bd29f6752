// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigator

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all navigator routes with the router.
//
// Description:
//
//	Registers all /v1/navigator/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Chat Endpoints:
//
//	POST /v1/navigator/chat - Run one turn through the pipeline
//	GET  /v1/navigator/ws - Websocket transport, one frame per turn
//
// Ops Endpoints:
//
//	GET  /v1/navigator/resources - Current catalog and cache age
//	POST /v1/navigator/catalog/refresh - Force a catalog reload
//	GET  /v1/navigator/debug/score - Score breakdown for a query
//
// Health Endpoints:
//
//	GET  /v1/navigator/health - Health check
//	GET  /v1/navigator/ready - Readiness check
//
// Example:
//
//	service, _ := navigator.NewService(ctx, cfg, loader, classifier, rewriter)
//	handlers := navigator.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	navigator.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	nav := rg.Group("/navigator")
	{
		// Chat transports
		nav.POST("/chat", handlers.HandleChat)
		nav.GET("/ws", handlers.HandleWebsocket)

		// Catalog operations
		nav.GET("/resources", handlers.HandleResources)
		nav.POST("/catalog/refresh", handlers.HandleCatalogRefresh)

		// Health checks
		nav.GET("/health", handlers.HandleHealth)
		nav.GET("/ready", handlers.HandleReady)

		debug := nav.Group("/debug")
		{
			debug.GET("/score", handlers.HandleScoreDebug)
		}
	}
}
