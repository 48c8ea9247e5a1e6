// Package probe extracts the codec, resolution, bitrate, duration, and
// content hash the catalog needs from a file on disk. It is the only
// component that touches ffprobe directly; the catalog and scanner only
// ever see the resulting catalog.Probe value.
package probe

import (
	"context"
	"fmt"
	"os"

	"spacesaver/internal/catalog"
	"spacesaver/internal/fileutil"
	"spacesaver/internal/media/ffprobe"
)

// Inspector extracts catalog.Probe values from files on disk.
type Inspector struct {
	ffprobeBinary string
}

// New constructs an Inspector that invokes the given ffprobe binary name
// or path (empty defaults to "ffprobe" on PATH).
func New(ffprobeBinary string) *Inspector {
	return &Inspector{ffprobeBinary: ffprobeBinary}
}

// Inspect runs a full probe: content hash plus ffprobe-derived metadata.
// This is the expensive path, used when a cheap (size, mtime) comparison
// against the catalog's record does not match.
func (i *Inspector) Inspect(ctx context.Context, path string) (catalog.Probe, error) {
	info, err := os.Stat(path)
	if err != nil {
		return catalog.Probe{}, fmt.Errorf("probe: stat %s: %w", path, err)
	}

	hash, err := fileutil.Sha256File(path)
	if err != nil {
		return catalog.Probe{}, fmt.Errorf("probe: hash %s: %w", path, err)
	}

	result, err := ffprobe.Inspect(ctx, i.ffprobeBinary, path)
	if err != nil {
		return catalog.Probe{}, fmt.Errorf("probe: ffprobe %s: %w", path, err)
	}

	width, height := videoDimensions(result)
	return catalog.Probe{
		SizeBytes:   info.Size(),
		ContentHash: hash,
		Codec:       primaryVideoCodec(result),
		Width:       width,
		Height:      height,
		BitRateBPS:  result.BitRate(),
		DurationS:   result.DurationSeconds(),
		ModTime:     info.ModTime(),
	}, nil
}

// Readable reports whether ffprobe can parse path's container and stream
// headers, without extracting a full catalog.Probe; the streams themselves
// are not decoded. Used by recovery's salvage-acceptance
// check (criterion d: "the salvage file is readable end-to-end").
func (i *Inspector) Readable(ctx context.Context, path string) bool {
	_, err := ffprobe.Inspect(ctx, i.ffprobeBinary, path)
	return err == nil
}

func primaryVideoCodec(r ffprobe.Result) string {
	for _, stream := range r.Streams {
		if stream.CodecType == "video" {
			return stream.CodecName
		}
	}
	return ""
}

func videoDimensions(r ffprobe.Result) (width, height int) {
	for _, stream := range r.Streams {
		if stream.CodecType == "video" {
			return stream.Width, stream.Height
		}
	}
	return 0, 0
}
