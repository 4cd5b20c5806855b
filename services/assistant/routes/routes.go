// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the HTTP surface of the assistant service.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidmh/portfolio-assistant/services/assistant/handlers"
	"github.com/davidmh/portfolio-assistant/services/assistant/middleware"
)

// SetupRoutes wires all endpoints onto the router.
func SetupRoutes(router *gin.Engine, ask *handlers.AskHandler, allowedOrigins []string) {
	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Unsupported verbs on known paths answer 405, not 404.
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method not allowed")
	})

	v1 := router.Group("/v1")
	v1.Use(middleware.CORS(allowedOrigins))
	{
		v1.POST("/ask", ask.Handle())
		// Preflight terminates inside the CORS middleware.
		v1.OPTIONS("/ask", func(c *gin.Context) {})
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
