// Package server wires chorale's components together and runs the HTTP server.
//
// # Overview
//
// New opens the SQLite store, picks the upload backend (local directory or
// S3-compatible bucket), builds the session resolver, the configured OAuth
// providers and the domain services, and hands them to the api package. Run
// serves until its context is canceled.
//
// # Listeners
//
// Without tailscale the server listens on server.http_addr. With tailscale
// enabled it joins the tailnet as its own node through tsnet and listens on
// :80, on :443 with tailnet certificates (tailscale.https), or publicly
// through Funnel (tailscale.funnel).
//
// # Base URL
//
// OAuth redirect URIs, the passkey relying party and the cookie Secure flag
// all derive from the site base URL. Set site.base_url explicitly whenever
// the server is reached through a proxy or a tailnet DNS name.
//
// # Shutdown
//
// Shutdown stops accepting requests, waits up to ShutdownTimeout for
// in-flight ones, closes the tailscale node, stops the in-memory OAuth
// state and passkey ceremony stores, and closes the database.
package server
