// Package middleware provides HTTP middleware for the clipper API.
//
// It includes:
//   - Request IDs propagated through X-Request-ID
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
package middleware
