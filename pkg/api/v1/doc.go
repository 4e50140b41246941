// Package v1 provides version 1 of the gateway's HTTP API: invocation
// submission and polling, OAuth1/OAuth2 callback endpoints, and the
// Waterbutler-compatible credential lookup surface.
//
// Routes are organized by concern:
//
//   - invocations.go: POST/GET /invocations, GET /invocations/{id}
//   - oauth.go: GET /oauth2/callback, GET /oauth1/callback
//   - waterbutler.go: GET /wb/{resource_guid}:{provider_key}
//   - healthcheck.go: GET /health
//   - version.go: GET /api/v1beta/version
package v1
