// Package middleware holds the HTTP middleware shared by the match and admin
// routes: request correlation, access logging, panic recovery, request
// deadlines and admin token authentication.
package middleware
