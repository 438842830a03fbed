// Package logging builds the per-node structured logger. It mirrors the
// original system's setup_logger(node_id): every record goes to stderr and
// to a rotated per-node file, and is additionally mirrored to a remote log
// aggregator when one is configured.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	NodeID int

	// AggregatorHost/AggregatorPort, if both set, mirror every record to a
	// remote log aggregator over TCP (see cmd/logaggregator).
	AggregatorHost string
	AggregatorPort int
}

// New builds a leveled, structured logger for one node process.
func New(opts Options) log.Logger {
	writers := []io.Writer{
		os.Stderr,
		&lumberjack.Logger{
			Filename:   fmt.Sprintf("node_%d.log", opts.NodeID),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		},
	}

	if opts.AggregatorHost != "" && opts.AggregatorPort != 0 {
		writers = append(writers, NewAggregatorWriter(opts.AggregatorHost, opts.AggregatorPort))
	}

	base := log.NewJSONLogger(log.NewSyncWriter(io.MultiWriter(writers...)))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "node", opts.NodeID)
	return level.NewFilter(base, level.AllowInfo())
}
