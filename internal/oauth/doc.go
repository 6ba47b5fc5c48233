// Package oauth signs members in with Google, Naver and Kakao.
//
// The flow issues a random state kept in a nonce store, sends the browser
// to the provider, and on callback exchanges the code, fetches the profile
// and finds or creates the member. The resolver then applies the
// first-admin rule and mints the session.
package oauth
