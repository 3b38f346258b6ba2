// Package server hosts the Fiber HTTP service that front-end traffic is
// pointed at: the request-ID middleware, the catch-all route that hands every
// non-diagnostics request to the interception proxy, and the shared upstream
// HTTP client. Diagnostics endpoints under /-/ live in the routes subpackage
// and are registered by the caller after NewApp.
package server
