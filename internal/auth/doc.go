// Package auth enforces bearer token authentication in front of the router.
//
// Requests to a public path prefix pass untouched and are marked with
// X-Auth-Bypass. Every other request must carry a valid token; the verified
// user id and email are forwarded to the backend as X-User-ID and
// X-User-Email. Client-supplied identity headers are always removed first.
package auth
