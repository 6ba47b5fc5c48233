// ABOUTME: Sheet music folder policy: default folders, accepted formats and size limits
// ABOUTME: Also derives and normalizes folder slugs

package library

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/2389/chorale/internal/media"
	"github.com/2389/chorale/internal/store"
)

// MaxFileSize is the largest upload accepted into any folder.
const MaxFileSize int64 = 2 << 30

// NewFolderName is the name given to folders created from the library page.
const NewFolderName = "새 폴더"

// Default folder slugs.
const (
	SlugChoir     = "choir"
	SlugArtSong   = "art-song"
	SlugNwc       = "nwc"
	SlugUtility   = "utility"
	SlugVideo     = "video"
	SlugEducation = "education"
)

// DefaultFolders are created on first use and never recreated once renamed.
func DefaultFolders() []store.Folder {
	return []store.Folder{
		{Name: "합창곡", Slug: SlugChoir, SortOrder: 0},
		{Name: "애창곡", Slug: SlugArtSong, SortOrder: 1},
		{Name: "NWC", Slug: SlugNwc, SortOrder: 2},
		{Name: "Utility", Slug: SlugUtility, SortOrder: 3},
		{Name: "동영상", Slug: SlugVideo, SortOrder: 4},
		{Name: "교육/연습", Slug: SlugEducation, SortOrder: 5},
	}
}

var (
	scoreFormats = []string{"pdf", "jpg", "jpeg", "png", "gif", "webp"}
	videoFormats = []string{"mp4", "webm", "mov", "avi", "mkv", "m4v", "ogv", "wmv"}
)

// formats returns the accepted extensions for a folder, or nil for any.
func formats(slug string) []string {
	switch slug {
	case SlugChoir, SlugArtSong:
		return scoreFormats
	case SlugNwc:
		return []string{"nwc"}
	case SlugUtility, SlugEducation:
		return nil
	case SlugVideo:
		return videoFormats
	default:
		return scoreFormats
	}
}

// AcceptsAny reports whether the folder takes files of any format.
func AcceptsAny(slug string) bool {
	return formats(slug) == nil
}

// Formats lists the accepted extensions for a folder. Empty means any.
func Formats(slug string) []string {
	return append([]string(nil), formats(slug)...)
}

// AllowsFile reports whether a file named name may be stored in the folder.
func AllowsFile(slug, name string) bool {
	allowed := formats(slug)
	if allowed == nil {
		return true
	}
	ext := media.Ext(name)
	for _, f := range allowed {
		if f == ext {
			return true
		}
	}
	return false
}

// AllowsSize reports whether a file of size bytes fits the folder limit.
func AllowsSize(slug string, size int64) bool {
	return size <= MaxFileSize
}

// IsScoreFolder reports whether the folder holds scores, which may also carry
// NWC files and part videos.
func IsScoreFolder(slug string) bool {
	return slug == SlugChoir || slug == SlugArtSong
}

var (
	whitespace  = regexp.MustCompile(`\s+`)
	nonSlugChar = regexp.MustCompile(`[^a-z0-9-]`)
)

// NormalizeSlug lowercases s, turns whitespace runs into dashes and drops
// everything outside [a-z0-9-].
func NormalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespace.ReplaceAllString(s, "-")
	return nonSlugChar.ReplaceAllString(s, "")
}

// SlugFor derives a slug from a folder name. Names that normalize to fewer
// than two characters, such as Korean-only names, fall back to an ID-based slug.
func SlugFor(name, folderID string) string {
	slug := NormalizeSlug(name)
	if len(slug) < 2 {
		return "folder-" + last8(folderID)
	}
	return slug
}

// CollisionSlug is used when a derived slug is already taken.
func CollisionSlug(folderID string, now time.Time) string {
	return "folder-" + last8(folderID) + "-" + strconv.FormatInt(now.UnixMilli(), 36)
}

// NewFolderSlug returns the slug for a freshly created folder.
func NewFolderSlug(now time.Time) string {
	return "folder-" + media.Millis(now) + "-" + media.RandomSuffix(6)
}

func last8(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
