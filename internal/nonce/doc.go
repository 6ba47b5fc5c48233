// Package nonce holds short-lived, single-use values between two legs of a
// browser flow.
//
// The OAuth handlers store the provider name and callback URL under the
// state parameter, and the passkey handlers store WebAuthn session data under
// a cookie token. Take removes the entry, so a replayed state or a reused
// ceremony is rejected.
//
//	states := nonce.New[oauthState](10*time.Minute, 10000)
//	defer states.Close()
//	token, _ := states.Issue(oauthState{Provider: "google"})
//	st, ok := states.Take(token)
package nonce
