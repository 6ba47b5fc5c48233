// ABOUTME: Upload naming helpers: safe file names, stems, extensions and random suffixes
// ABOUTME: Storage keys built from these are unique by time or random suffix

package media

import (
	"crypto/rand"
	"math/big"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SafeName replaces every character outside [a-zA-Z0-9.-] with an underscore.
func SafeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Stem returns name without its final extension, made safe. Blank names
// become "pasted-<unixMillis>".
func Stem(name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "pasted-" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	return SafeName(strings.TrimSuffix(name, path.Ext(name)))
}

// TitleFromFilename returns the filename without its extension.
func TitleFromFilename(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// Ext returns the lowercased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// imageExts are the image subtypes stored under their own extension.
var imageExts = map[string]bool{
	"png": true, "jpeg": true, "jpg": true, "gif": true, "webp": true, "avif": true, "bmp": true,
}

// ExtForMIME picks the stored extension for an inline comment file.
// Known image subtypes keep their subtype, known video types map to their
// container and everything else is stored as png.
func ExtForMIME(mimeType string) string {
	switch mimeType {
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	}
	if sub, ok := strings.CutPrefix(mimeType, "image/"); ok && imageExts[sub] {
		return sub
	}
	return "png"
}

// storableExts are the extensions an uploaded file may keep.
var storableExts = map[string]bool{
	"png": true, "jpeg": true, "jpg": true, "gif": true, "webp": true, "avif": true, "bmp": true,
	"mp4": true, "webm": true, "mov": true, "m4v": true,
	"mp3": true, "m4a": true, "wav": true, "ogg": true, "oga": true, "aac": true, "flac": true,
	"pdf": true, "nwc": true,
}

// StorableName returns name with its extension replaced by fallback unless
// the extension is a known media, pdf or nwc type.
func StorableName(name, fallback string) string {
	if storableExts[Ext(name)] {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name)) + "." + fallback
}

// IsVideo reports whether mimeType is a video type.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomSuffix returns n random lowercase alphanumerics.
func RandomSuffix(n int) string {
	var b strings.Builder
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String()
}

// Millis formats t as unix milliseconds.
func Millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
