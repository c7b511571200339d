package main

// @title Heat Service API
// @version 1.0
// @description Favorites, heat counters and trending items with full observability (logging, tracing, metrics)
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://github.com/tair/heat-service
// @contact.email support@example.com

// @license.name MIT

// @host localhost:8084
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @tag.name Items
// @tag.description Catalog items and trending

// @tag.name Favorites
// @tag.description Favorite marks and heat

// @tag.name Health
// @tag.description Health check endpoints

// @tag.name Swagger
// @tag.description Swagger documentation endpoints
