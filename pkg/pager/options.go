package pager

import (
	"log/slog"

	"github.com/calvinalkan/docpager/pkg/fs"
)

// WritebackMode controls durability of [Pager.WriteDocument].
type WritebackMode int

const (
	// WritebackNone leaves flushing to the operating system. Default.
	WritebackNone WritebackMode = iota

	// WritebackSync calls fdatasync after every document write and fsync on
	// [Pager.Close].
	//
	// This narrows, but does not close, the window in which a crash leaves
	// content, metadata and index pages out of step with each other.
	WritebackSync
)

// Options configures [Open].
type Options struct {
	// Path is the database file. Required. Created if missing.
	//
	// Unless DisableLocking is set, a lock file is kept at Path+".lock".
	Path string

	// FS is the filesystem to open Path on. Defaults to [fs.NewReal].
	FS fs.FS

	// Logger receives debug records for page allocation and span writes,
	// and warnings. Defaults to a logger that discards everything.
	Logger *slog.Logger

	// Writeback controls durability. Default is [WritebackNone].
	Writeback WritebackMode

	// DisableLocking skips the interprocess lock file. The caller MUST then
	// ensure only one Pager has the file open at a time.
	DisableLocking bool
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	return o
}
