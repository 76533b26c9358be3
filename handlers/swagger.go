package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the gateway.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docport-gateway — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the gateway surface.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docport-gateway", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "get": { "summary": "Start interactive sign-in (redirect to provider)", "responses": { "302": { "description": "redirect to identity provider" } } }
    },
    "/auth/callback": {
      "get": { "summary": "Finish sign-in, set session cookie", "responses": { "302": { "description": "redirect to the app" }, "401": { "description": "sign-in failed" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Clear session and return provider sign-out URL", "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/me": {
      "get": { "summary": "Session probe with profile", "responses": { "200": { "description": "authenticated" }, "401": { "description": "not authenticated" }, "503": { "description": "backend unavailable" } } }
    },
    "/auth/verify": {
      "post": { "summary": "Force a session reconciliation pass", "responses": { "200": { "description": "authenticated" }, "202": { "description": "check already running" }, "401": { "description": "not authenticated" } } }
    },
    "/api/v1/documents": {
      "get": { "summary": "List documents", "responses": { "200": { "description": "document listing" } } }
    },
    "/api/v1/documents/upload": {
      "post": { "summary": "Upload one or more documents (multipart)", "responses": { "201": { "description": "uploaded" }, "207": { "description": "partial failure" } } }
    },
    "/api/v1/chat/sessions": {
      "get": { "summary": "List chat sessions", "responses": { "200": { "description": "sessions" } } },
      "post": { "summary": "Create a chat session", "responses": { "201": { "description": "created" } } }
    },
    "/api/v1/chat/direct": {
      "post": { "summary": "Direct model chat (no retrieval)", "responses": { "200": { "description": "answer" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
