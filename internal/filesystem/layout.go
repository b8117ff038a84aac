package filesystem

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Subdirectory names under the media root. Refs stored on records are
// slash-separated paths relative to the root and always begin with one of these.
const (
	UploadsDir    = "uploads"
	ProxiesDir    = "proxies"
	ClipsDir      = "clips"
	ThumbnailsDir = "thumbnails"
)

// ErrRefOutsideRoot is returned when a ref would resolve outside the media root.
var ErrRefOutsideRoot = errors.New("ref escapes media root")

// Layout resolves artifact refs against a single media root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at the absolute form of root.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve media root: %w", err)
	}
	return Layout{Root: abs}, nil
}

// Prepare creates every artifact directory.
func (l Layout) Prepare() error {
	for _, dir := range []string{UploadsDir, ProxiesDir, ClipsDir, ThumbnailsDir} {
		if err := EnsureDir(filepath.Join(l.Root, dir)); err != nil {
			return fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return nil
}

// Volumes maps volume labels to directories for metric labelling.
func (l Layout) Volumes() map[string]string {
	return map[string]string{
		UploadsDir:    filepath.Join(l.Root, UploadsDir),
		ProxiesDir:    filepath.Join(l.Root, ProxiesDir),
		ClipsDir:      filepath.Join(l.Root, ClipsDir),
		ThumbnailsDir: filepath.Join(l.Root, ThumbnailsDir),
	}
}

// Path converts a stored ref into an absolute filesystem path.
func (l Layout) Path(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("empty ref")
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrRefOutsideRoot, ref)
	}
	return filepath.Join(l.Root, clean), nil
}

// UploadRef names the stored original for an asset.
func UploadRef(assetID, filename string) string {
	return UploadsDir + "/" + assetID + "_" + sanitizeFilename(filename)
}

// ProxyRef names the proxy rendition for an asset.
func ProxyRef(assetID string) string {
	return ProxiesDir + "/" + assetID + "_proxy.mp4"
}

// ClipRef names the extracted clip file.
func ClipRef(clipID string) string {
	return ClipsDir + "/" + clipID + ".mp4"
}

// ThumbnailRef names the clip poster image.
func ThumbnailRef(clipID string) string {
	return ThumbnailsDir + "/" + clipID + ".png"
}

// sanitizeFilename keeps the base name and strips characters that are
// awkward on shared filesystems.
func sanitizeFilename(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "upload"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}
