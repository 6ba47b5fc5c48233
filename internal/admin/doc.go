// Package admin provides membership administration for chorale.
//
// # Overview
//
// Members sign up as pending and wait for an admin to approve them. The
// Members service implements the admin operations used by the HTTP API
// and the chorale-admin CLI:
//
//   - ListUsers: members newest first, optionally by status
//   - Approve / Reject: set a member's status
//   - Promote: grant the admin role to an approved member
//   - Delete: remove a member and their content
//   - Claim: become admin when the site has none
//   - UpdateIntro: a pending member's self-introduction
//
// # Guards
//
// Delete refuses to remove the caller's own account and the last remaining
// admin. The last-admin check runs in the same statement as the delete, so
// two admins deleting each other concurrently cannot both succeed.
//
// # Usage
//
//	members := admin.NewMembers(store, logger)
//	err := members.Promote(ctx, userID)
package admin
