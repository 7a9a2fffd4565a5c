// Package archive defines the format/filter enums shared by the
// compressor and extractor, and the narrow codec capability interface
// (internal/archive/codec) that concrete tar/zip/ar adapters implement.
package archive

import (
	"github.com/trackerminers/filesystem-miner/internal/errs"
)

// Format is the archive container format.
type Format uint8

const (
	FormatTar Format = iota
	FormatZip
	FormatAr
	FormatArBSD
	FormatArGNU
	// FormatAll is used only by the extractor's scan phase to request
	// auto-detection across every supported format.
	FormatAll
	// FormatRaw is the extractor's fallback when auto-detection fails: a
	// single-entry, filter-only stream (e.g. a bare .gz file).
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatZip:
		return "zip"
	case FormatAr:
		return "ar"
	case FormatArBSD:
		return "ar_bsd"
	case FormatArGNU:
		return "ar_gnu"
	case FormatAll:
		return "all"
	case FormatRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// IsAr reports whether f is one of the ar family, which the compressor
// restricts to regular files only (spec §4.11's format constraint table).
func (f Format) IsAr() bool {
	return f == FormatAr || f == FormatArBSD || f == FormatArGNU
}

// Extension returns the canonical file extension for a format+filter pair,
// used when the compressor synthesizes a destination filename.
func (f Format) Extension(filter Filter) string {
	base := ""
	switch f {
	case FormatTar:
		base = ".tar"
	case FormatZip:
		return ".zip"
	case FormatAr, FormatArBSD, FormatArGNU:
		return ".a"
	}
	switch filter {
	case FilterGzip:
		return base + ".gz"
	default:
		return base
	}
}

// Filter is the compression filter layered under a container format.
type Filter uint8

const (
	FilterNone Filter = iota
	FilterGzip
)

func (f Filter) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// ValidateFormat reports whether format is one of the concrete,
// writable/readable formats (not FormatAll/FormatRaw, which are
// scan-phase-only pseudo-formats).
func ValidateFormat(format Format) error {
	switch format {
	case FormatTar, FormatZip, FormatAr, FormatArBSD, FormatArGNU:
		return nil
	default:
		return &errs.InvalidFormatError{Format: format.String()}
	}
}

// ValidateFilter reports whether filter is supported for format. ZIP and
// the ar family have no separate filter layer (they handle their own
// internal compression or none at all); only tar pairs with a filter.
func ValidateFilter(format Format, filter Filter) error {
	if format != FormatTar && filter != FilterNone {
		return &errs.InvalidFilterError{Filter: filter.String()}
	}
	return nil
}
