package imagefmt

import (
	"bytes"
	"strings"
)

// DetectionSource records which evidence tier produced a FormatInfo.
type DetectionSource string

const (
	SourceSignature DetectionSource = "signature"
	SourceMime      DetectionSource = "mime"
	SourceExtension DetectionSource = "extension"
	SourceFallback  DetectionSource = "fallback"
)

type FormatInfo struct {
	Extension  string
	MimeType   string
	Source     DetectionSource
	Renderable bool
	Recognized bool
}

var heicBrands = map[string]struct{}{
	"heic": {}, "heix": {}, "hevc": {}, "heim": {}, "heis": {}, "hevm": {},
}

var heifBrands = map[string]struct{}{
	"mif1": {}, "msf1": {},
}

var avifBrands = map[string]struct{}{
	"avif": {},
}

// Extensions the markdown renderer is known to display natively.
var renderableExtensions = map[string]struct{}{
	"gif": {}, "jpeg": {}, "jpg": {}, "png": {}, "bmp": {}, "webp": {}, "svg": {},
}

var knownExtensions = map[string]struct{}{
	"gif": {}, "heic": {}, "heif": {}, "avif": {}, "ico": {}, "jpg": {},
	"jpeg": {}, "png": {}, "bmp": {}, "tif": {}, "tiff": {}, "svg": {}, "webp": {},
}

// Detect inspects raw bytes, the declared MIME type and the filename, in
// that strict order, and always returns a FormatInfo. Signature evidence
// wins because metadata is caller-controlled and unreliable.
func Detect(data []byte, filename, mimeHint string) FormatInfo {
	if ext, mime, ok := detectBySignature(data); ok {
		return formatInfoFor(ext, mime, SourceSignature)
	}
	if ext, mime, ok := detectByMimeType(mimeHint); ok {
		return formatInfoFor(ext, mime, SourceMime)
	}
	if ext, mime, ok := detectByExtension(filename); ok {
		return formatInfoFor(ext, mime, SourceExtension)
	}
	return FormatInfo{Source: SourceFallback}
}

func formatInfoFor(ext, mime string, source DetectionSource) FormatInfo {
	return FormatInfo{
		Extension:  ext,
		MimeType:   mime,
		Source:     source,
		Renderable: IsRenderableExtension(ext),
		Recognized: true,
	}
}

func detectBySignature(data []byte) (string, string, bool) {
	switch {
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return "jpg", "image/jpeg", true
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}):
		return "png", "image/png", true
	case len(data) >= 6 && bytes.HasPrefix(data, []byte("GIF8")) && (data[4] == '7' || data[4] == '9') && data[5] == 'a':
		return "gif", "image/gif", true
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp", "image/webp", true
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return "bmp", "image/bmp", true
	}

	// ISO-BMFF container: inspect the ftyp major brand.
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		brand := strings.ToLower(string(data[8:12]))
		if _, ok := heicBrands[brand]; ok {
			return "heic", "image/heic", true
		}
		if _, ok := heifBrands[brand]; ok {
			return "heif", "image/heif", true
		}
		if _, ok := avifBrands[brand]; ok {
			return "avif", "image/avif", true
		}
	}

	return "", "", false
}

func normalizeMimeType(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i != -1 {
		mime = mime[:i]
	}
	return mime
}

func detectByMimeType(mimeHint string) (string, string, bool) {
	mime := normalizeMimeType(mimeHint)
	switch mime {
	case "image/jpeg":
		return "jpg", mime, true
	case "image/png", "image/gif", "image/bmp", "image/webp", "image/heic", "image/heif", "image/avif":
		return strings.TrimPrefix(mime, "image/"), mime, true
	case "image/svg+xml":
		return "svg", mime, true
	}
	return "", "", false
}

func detectByExtension(filename string) (string, string, bool) {
	ext := ExtractExtension(filename)
	if ext == "" {
		return "", "", false
	}
	if _, ok := knownExtensions[ext]; !ok {
		return "", "", false
	}
	return ext, MimeTypeForExtension(ext), true
}

// ExtractExtension returns the lowercase extension without the dot, or
// an empty string when the name has none.
func ExtractExtension(filename string) string {
	name := strings.ToLower(strings.TrimSpace(filename))
	dot := strings.LastIndexByte(name, '.')
	if dot == -1 || dot == len(name)-1 {
		return ""
	}
	return name[dot+1:]
}

func MimeTypeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "heic":
		return "image/heic"
	case "heif":
		return "image/heif"
	case "avif":
		return "image/avif"
	case "ico":
		return "image/x-icon"
	case "tif", "tiff":
		return "image/tiff"
	}
	return ""
}

func IsRenderableExtension(ext string) bool {
	_, ok := renderableExtensions[strings.ToLower(strings.TrimSpace(ext))]
	return ok
}

func IsKnownExtension(ext string) bool {
	_, ok := knownExtensions[strings.ToLower(strings.TrimSpace(ext))]
	return ok
}

// IsLikelyImage reports whether a file looks image-like from its MIME
// type or extension, without reading its bytes.
func IsLikelyImage(filename, mimeHint string) bool {
	if strings.HasPrefix(normalizeMimeType(mimeHint), "image/") {
		return true
	}
	return IsKnownExtension(ExtractExtension(filename))
}

// ReplaceExtension swaps the extension of filename, appending one when
// the name has none. An empty extension leaves the name untouched.
func ReplaceExtension(filename, ext string) string {
	name := strings.TrimSpace(filename)
	ext = strings.ToLower(strings.TrimSpace(ext))
	dot := strings.LastIndexByte(name, '.')
	hasDot := dot != -1 && dot != len(name)-1
	if !hasDot {
		if ext == "" {
			return name
		}
		return name + "." + ext
	}
	if ext == "" {
		return name
	}
	return name[:dot+1] + ext
}

// CanonicalExtensionForFormat maps a conversion target format to the
// extension written into filenames (jpeg collapses to jpg).
func CanonicalExtensionForFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
