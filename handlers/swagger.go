package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the content API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>qabase content API</title>
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

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "qabase content API", "version": "v1.0.0" },
  "components": {
    "schemas": {
      "ContentInput": {
        "type": "object",
        "required": ["title", "category", "question", "answer"],
        "properties": {
          "title": {"type":"string"}, "category": {"type":"string"},
          "tags": {"oneOf":[{"type":"string"},{"type":"array","items":{"type":"string"}}]},
          "question": {"type":"string"}, "answer": {"type":"string"},
          "messageType": {"type":"string","default":"General"},
          "originalPostTitle": {"type":"string","default":"N/A"},
          "originalPostURL": {"type":"string","default":"N/A"}
        }
      }
    }
  },
  "paths": {
    "/api/contents": {
      "get": {
        "summary": "List content, optionally filtered",
        "parameters": [
          {"name":"category","in":"query","schema":{"type":"string"}},
          {"name":"tag","in":"query","schema":{"type":"string"}},
          {"name":"messageType","in":"query","schema":{"type":"string"}}
        ],
        "responses": { "200": { "description": "content items" } }
      },
      "post": {
        "summary": "Create a content item",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/ContentInput"} } } },
        "responses": { "201": { "description": "created" }, "400": { "description": "missing required fields" }, "409": { "description": "title exists" } }
      }
    },
    "/api/contents/{id}": {
      "get": { "summary": "Get a content item", "responses": { "200": { "description": "content item" }, "404": { "description": "not found" } } },
      "put": {
        "summary": "Replace a content item",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/ContentInput"} } } },
        "responses": { "200": { "description": "updated" }, "400": { "description": "invalid" }, "404": { "description": "not found" }, "409": { "description": "title exists" } }
      },
      "delete": { "summary": "Delete a content item", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/categories": {
      "get": { "summary": "List categories", "responses": { "200": { "description": "categories" } } },
      "post": { "summary": "Add a category", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"category":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" } } }
    },
    "/api/categories/{name}": {
      "delete": { "summary": "Delete a category", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/tags": { "get": { "summary": "List tags", "responses": { "200": { "description": "tags" } } } },
    "/api/tags/{tag}/section": {
      "put": { "summary": "Assign a tag to a section", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"section":{"type":"string"}}}}}}, "responses": { "200": { "description": "assigned" } } }
    },
    "/api/sections": { "get": { "summary": "Tags grouped by section", "responses": { "200": { "description": "section to tags map" } } } },
    "/api/messagetypes": { "get": { "summary": "List message types", "responses": { "200": { "description": "message types" } } } },
    "/api/originalposts": { "get": { "summary": "List original posts", "responses": { "200": { "description": "original posts" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
