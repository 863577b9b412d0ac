// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation protecting the merge and import endpoints.
//   - rayid: a unique request id (ray id) for every request, stored in the
//     fiber locals and echoed in the X-Ray-ID response header. logger.WithRayID
//     reads it back so every log line of a request can be correlated.
//
// The ray id middleware must be registered first so that everything after it
// is traced.
package middleware
