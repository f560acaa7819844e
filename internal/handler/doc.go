// Package handler holds the gin handlers for the auth API, the auth entry,
// magic link landing, health and home routes.
package handler
