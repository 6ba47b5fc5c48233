// Package media stores uploaded files and prepares them for storage.
//
// Two Storage backends exist: LocalStorage writes under a directory and is
// served at /uploads/, S3Storage writes objects to an S3-compatible bucket.
// Uploads are append-only; keys carry a timestamp or random suffix so a
// second upload of the same name never replaces the first.
//
// Transcoder converts video uploads to H.264 MP4 with ffmpeg. Transcoding is
// best-effort and guarded by a circuit breaker so a missing or broken ffmpeg
// costs one failed run per minute rather than one per upload.
package media
