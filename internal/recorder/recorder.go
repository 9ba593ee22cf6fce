// Package recorder implements a rotating columnar tick recorder: a
// channel-fed async batcher with a dual flush trigger (buffer size OR
// flush interval, whichever comes first), gzip+CSV columnar output,
// hourly rotation, and size-based pruning of old files.
package recorder

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polyhft/tradeengine/internal/eventlog"
)

// Config holds the recognized recorder options.
type Config struct {
	OutputDir         string
	RotationInterval  time.Duration
	BufferSize        int
	FlushIntervalSecs time.Duration
	MaxBytes          int64
	ChannelCapacity   int
}

// DefaultConfig matches original_source's recorder defaults.
func DefaultConfig(outputDir string) Config {
	return Config{
		OutputDir:         outputDir,
		RotationInterval:  time.Hour,
		BufferSize:        100,
		FlushIntervalSecs: 10 * time.Second,
		MaxBytes:          10 << 30,
		ChannelCapacity:   1024,
	}
}

// Stats are lock-free atomic counters describing recorder activity.
type Stats struct {
	Received     int64
	Written      int64
	FilesWritten int64
	ChannelDrops int64
}

// Recorder fans events out to per-stream writer goroutines, each
// batching and periodically flushing to a rotating gzip+CSV file.
type Recorder struct {
	cfg Config

	received     atomic.Int64
	written      atomic.Int64
	filesWritten atomic.Int64
	channelDrops atomic.Int64

	ch chan eventlog.Event

	mu      sync.Mutex
	writers map[string]*streamWriter
}

// New constructs a Recorder. Call Run to start consuming.
func New(cfg Config) *Recorder {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 1024
	}
	return &Recorder{
		cfg:     cfg,
		ch:      make(chan eventlog.Event, cfg.ChannelCapacity),
		writers: make(map[string]*streamWriter),
	}
}

// Record enqueues an event for recording. It never blocks: if the
// channel is full, the event is dropped and ChannelDrops increments.
func (r *Recorder) Record(e eventlog.Event) {
	r.received.Add(1)
	select {
	case r.ch <- e:
	default:
		r.channelDrops.Add(1)
	}
}

// Stats returns a snapshot of the recorder's atomic counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Received:     r.received.Load(),
		Written:      r.written.Load(),
		FilesWritten: r.filesWritten.Load(),
		ChannelDrops: r.channelDrops.Load(),
	}
}

// Run consumes events until ctx is cancelled, demultiplexing by
// Event.Stream to a per-stream writer and draining all buffers on
// shutdown.
func (r *Recorder) Run(done <-chan struct{}) {
	flushTicker := time.NewTicker(r.cfg.FlushIntervalSecs)
	defer flushTicker.Stop()

	for {
		select {
		case <-done:
			r.flushAll()
			r.closeAll()
			return
		case e := <-r.ch:
			w := r.writerFor(e.Stream)
			w.buffer = append(w.buffer, e)
			if len(w.buffer) >= r.cfg.BufferSize {
				r.flushWriter(e.Stream, w)
			}
		case <-flushTicker.C:
			r.flushAll()
		}
	}
}

func (r *Recorder) writerFor(stream string) *streamWriter {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[stream]
	if !ok {
		w = &streamWriter{stream: stream}
		r.writers[stream] = w
	}
	return w
}

func (r *Recorder) flushAll() {
	r.mu.Lock()
	streams := make([]string, 0, len(r.writers))
	for s := range r.writers {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	for _, s := range streams {
		r.mu.Lock()
		w := r.writers[s]
		r.mu.Unlock()
		if len(w.buffer) > 0 {
			r.flushWriter(s, w)
		}
		if time.Since(w.rotatedAt) >= r.cfg.RotationInterval && w.file != nil {
			w.close()
		}
	}
	r.prune()
}

func (r *Recorder) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.writers {
		w.close()
	}
}

func (r *Recorder) flushWriter(stream string, w *streamWriter) error {
	if len(w.buffer) == 0 {
		return nil
	}
	if w.file == nil {
		if err := w.open(r.cfg.OutputDir); err != nil {
			return err
		}
		r.filesWritten.Add(1)
	}
	n := len(w.buffer)
	if err := w.writeBatch(w.buffer); err != nil {
		return err
	}
	r.written.Add(int64(n))
	w.buffer = w.buffer[:0]
	return nil
}

// prune deletes the oldest recorded files until total size is under
// MaxBytes, mirroring the archiver's size-based rotation.
func (r *Recorder) prune() {
	if r.cfg.MaxBytes <= 0 {
		return
	}
	type entry struct {
		path string
		size int64
	}
	var files []entry
	var total int64

	filepath.Walk(r.cfg.OutputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})
	if total <= r.cfg.MaxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	for _, f := range files {
		if total <= r.cfg.MaxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		total -= f.size
	}
}

// streamWriter owns one stream's open file, gzip and csv writers, and
// in-memory buffer awaiting flush.
type streamWriter struct {
	stream    string
	file      *os.File
	gz        *gzip.Writer
	csv       *csv.Writer
	header    []string
	rotatedAt time.Time
	buffer    []eventlog.Event
}

func (w *streamWriter) open(outputDir string) error {
	dir := filepath.Join(outputDir, w.stream)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	name := fmt.Sprintf("%s.csv.gz", time.Now().UTC().Format("20060102T150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	w.file = f
	w.gz = gzip.NewWriter(f)
	w.csv = csv.NewWriter(w.gz)
	w.header = nil
	w.rotatedAt = time.Now()
	return nil
}

func (w *streamWriter) writeBatch(events []eventlog.Event) error {
	for _, e := range events {
		if w.header == nil {
			w.header = headerFor(e)
			fullHeader := append([]string{"timestamp", "kind"}, w.header...)
			if err := w.csv.Write(fullHeader); err != nil {
				return err
			}
		}
		row := make([]string, 0, len(w.header)+2)
		row = append(row, e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.Kind))
		for _, k := range w.header {
			row = append(row, e.Fields[k])
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.gz.Flush()
}

func (w *streamWriter) close() {
	if w.gz != nil {
		w.csv.Flush()
		w.gz.Close()
	}
	if w.file != nil {
		w.file.Close()
	}
	w.file = nil
	w.gz = nil
	w.csv = nil
}

func headerFor(e eventlog.Event) []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
