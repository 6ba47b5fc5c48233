// Package board implements the write paths for posts and comments.
//
// A submission arrives as text plus files. Inline media in the text is
// written as src="{{INLINE_n}}". The service stores every file first,
// gives each attachment a time-ordered ID, resolves the placeholders
// against those attachments in ID order, and then writes the entity and
// its attachments in one transaction. When resolution or the write fails
// the stored files are removed again.
package board
