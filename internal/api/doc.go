// Package api serves chorale over HTTP: the JSON API for the board, the
// sheet music library, chat and membership, the sign-in flows, and the two
// server-rendered pages (login and pending approval).
//
// Every request passes through the session middleware, which reads and
// refreshes the signed cookie, and then the access gate, which redirects
// or rejects callers according to their approval status. Handlers only
// check what the gate cannot: authorship and the admin role.
package api
