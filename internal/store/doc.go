// Package store provides persistent storage for chorale using SQLite.
//
// # Architecture
//
// Each concern has its own interface:
//
//   - UserStore: Members, their moderation status and role, linked OAuth accounts
//   - PasskeyStore: WebAuthn credentials
//   - BoardStore: Posts, comments and their attachments
//   - LibraryStore: Sheet music items, practice videos, NWC files and folders
//   - ChatStore: Community chat messages
//
// SQLiteStore implements all of them, and Store composes them for the server.
//
// # Identifiers
//
// IDs are UUIDv7 strings from NewID. Their lexical order follows creation
// order, which is what attachment placeholders resolve against.
//
// # SQLite Configuration
//
// Pragmas are set through the DSN so that every pooled connection gets them:
//
//	journal_mode=WAL
//	foreign_keys=ON
//	busy_timeout=5000
//
// Timestamps are stored as fixed-width UTC text so they sort lexically.
//
// # Errors
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrConflict: A unique constraint would be violated
//   - ErrLastAdmin: Deleting the user would leave the site without an admin
//   - ErrFolderNotEmpty: The folder still holds sheet music
//
// # Migrations
//
// Migrations live in internal/store/migrations, are embedded, and are applied
// with goose when the store opens. MigrationStatus reports what has run.
package store
