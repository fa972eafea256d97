// Package server hosts the Fiber HTTP service and its middleware chain: panic
// recovery, request IDs, and the JSON fallback for unmatched paths. Route
// handlers live in the routes subpackage and are attached through
// AppOptions.Routes so that the fallback is always registered last.
package server
