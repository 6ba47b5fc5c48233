// Package content implements the inline media placeholder protocol and the
// HTML hygiene applied to user-authored content.
//
// Editors upload media together with rich text that refers to each file by
// position: an element is written as <img src="{{INLINE_0}}">. Once every file
// of a submission has been stored and given an attachment ID, Resolve binds
// index i to the i-th attachment sorted by ID and rewrites the src to the
// storage path. IDs are time-ordered, so canonical order is creation order of
// the attachment records, not upload or placeholder order.
//
// Stored content is passed through ResolveLenient and Sanitize before it is
// returned, which is what RenderHTML does. Placeholders that still cannot be
// resolved lose their src in the sanitizer because "{{" is not an allowed URL.
package content
