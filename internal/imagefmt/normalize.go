package imagefmt

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Asset is one image on its way to the library: raw bytes plus the
// metadata the paste/drop event declared. It lives for a single upload.
type Asset struct {
	Name     string
	MimeType string
	Data     []byte
}

type ConvertOptions struct {
	// Format is the conversion target for recognized but non-renderable
	// images: jpeg, png or webp.
	Format string
	// Quality applies to jpeg output, clamped to [1,100].
	Quality int
}

// ErrConversion marks a terminal conversion failure. It signals an
// unsupported runtime or input, not a transient fault; callers abort the
// affected upload and do not retry.
var ErrConversion = errors.New("image conversion failed")

// NormalizeForUpload prepares an asset for the library. Renderable
// images only get their name/MIME fixed to match the detected format;
// recognized non-renderable ones are re-encoded to opts.Format;
// unrecognized data passes through untouched.
func NormalizeForUpload(asset Asset, opts ConvertOptions) (Asset, error) {
	info := Detect(asset.Data, asset.Name, asset.MimeType)

	if info.Recognized && info.Renderable {
		return retagged(asset, info), nil
	}

	attemptConversion := info.Recognized ||
		strings.HasPrefix(normalizeMimeType(asset.MimeType), "image/")
	if !attemptConversion {
		return asset, nil
	}
	if !info.Recognized {
		// Image-like MIME but nothing we can decode; best effort.
		return asset, nil
	}

	return convert(asset, opts)
}

func retagged(asset Asset, info FormatInfo) Asset {
	if info.Extension != "" {
		asset.Name = ReplaceExtension(asset.Name, info.Extension)
	}
	if info.MimeType != "" {
		asset.MimeType = info.MimeType
	}
	return asset
}

func convert(asset Asset, opts ConvertOptions) (Asset, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	targetMime := MimeTypeForExtension(format)
	switch format {
	case "jpeg", "png", "webp":
	default:
		return Asset{}, fmt.Errorf("%w: unsupported target format %q", ErrConversion, opts.Format)
	}

	img, _, err := image.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return Asset{}, fmt.Errorf("%w: decode %s: %v", ErrConversion, asset.Name, err)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: clamp(opts.Quality, 1, 100)})
	case "png":
		err = png.Encode(&buf, img)
	case "webp":
		// No webp encoder is available in this runtime.
		err = fmt.Errorf("webp encoding is not supported")
	}
	if err != nil {
		return Asset{}, fmt.Errorf("%w: encode %s as %s: %v", ErrConversion, asset.Name, format, err)
	}
	if buf.Len() == 0 {
		return Asset{}, fmt.Errorf("%w: encoder produced no output for %s", ErrConversion, asset.Name)
	}

	return Asset{
		Name:     ReplaceExtension(asset.Name, CanonicalExtensionForFormat(format)),
		MimeType: targetMime,
		Data:     buf.Bytes(),
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
