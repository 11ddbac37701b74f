// Package api provides OpenAPI/Swagger documentation for the search
// service's HTTP API.
//
// # API Overview
//
// The search service exposes a RESTful API for:
//   - Federated keyword/filter search across the gql_v2, gql_v3, rest_v3,
//     and webhook-relay procurement data sources
//   - Single-lot lookup by lot number
//   - Health monitoring and Prometheus metrics
//
// # Authentication
//
// Endpoints other than health, readiness, version and metrics require an
// API key via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
