// Package auth provides session handling and access control for chorale.
//
// # Sessions
//
// A session is an HS256 JWT in the chorale_session cookie. Its claims carry
// the member's id, status and role, so the gate can decide without a database
// round trip. Sessions mints and parses tokens; Cookies writes and reads the
// cookie.
//
// # Resolver
//
// Resolver decides what status and role go into a token:
//
//   - SignIn runs after an OAuth or passkey login. When the site has no admin
//     yet, the signing-in member becomes an approved admin.
//   - CredentialSignIn is the local email + password login. The first user of
//     an empty site becomes an approved admin; later users start pending.
//   - Refresh re-reads the member record. SessionMiddleware calls it once a
//     token is older than the refresh interval, which bounds how long an
//     approval or promotion takes to show up.
//
// # Gate
//
// Decide maps a path and optional claims to allow, 401, or a redirect.
// Public paths are always served. Pending members only reach the pending page,
// their intro endpoint and admin claim. Rejected members are sent back to the
// login page. Admin pages need the admin role.
//
//	handler = auth.SessionMiddleware(resolver, cookies, refreshAfter)(
//		auth.GateMiddleware()(mux))
package auth
