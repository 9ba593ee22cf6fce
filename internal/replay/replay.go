// Package replay implements the replay event stream: a k-way
// merge over recorded columnar files that yields events in strict
// timestamp order, using stdlib container/heap.
package replay

import (
	"compress/gzip"
	"container/heap"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/polyhft/tradeengine/internal/eventlog"
)

// source reads one recorded file's rows lazily, one at a time.
type source struct {
	file *os.File
	gz   *gzip.Reader
	r    *csv.Reader

	header []string
	next   eventlog.Event
	ok     bool
	err    error
}

func openSource(path string) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	r := csv.NewReader(gz)
	header, err := r.Read()
	if err != nil {
		gz.Close()
		f.Close()
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	s := &source{file: f, gz: gz, r: r, header: header}
	s.advance()
	return s, nil
}

func (s *source) advance() {
	row, err := s.r.Read()
	if err == io.EOF {
		s.ok = false
		return
	}
	if err != nil {
		s.err = err
		s.ok = false
		return
	}
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		s.err = fmt.Errorf("parse timestamp %q: %w", row[0], err)
		s.ok = false
		return
	}
	// header layout is [timestamp, kind, <fields...>]; fields start at
	// index 2 in both header and row.
	fields := make(map[string]string, len(s.header)-2)
	for i := 2; i < len(s.header) && i < len(row); i++ {
		fields[s.header[i]] = row[i]
	}
	s.next = eventlog.Event{Timestamp: ts, Kind: eventlog.Kind(row[1]), Fields: fields}
	s.ok = true
}

func (s *source) close() {
	s.gz.Close()
	s.file.Close()
}

// mergeHeap orders open sources by their next event's timestamp.
type mergeHeap []*source

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].next.Timestamp.Before(h[j].next.Timestamp) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*source)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Reader yields recorded events across multiple files in strict
// timestamp order.
type Reader struct {
	h mergeHeap
}

// Open opens every path for reading and prepares the merge.
func Open(paths []string) (*Reader, error) {
	h := make(mergeHeap, 0, len(paths))
	for _, p := range paths {
		s, err := openSource(p)
		if err != nil {
			for _, opened := range h {
				opened.close()
			}
			return nil, err
		}
		if s.ok {
			h = append(h, s)
		} else {
			s.close()
		}
	}
	heap.Init(&h)
	return &Reader{h: h}, nil
}

// Next returns the next event in timestamp order across all open
// sources, or false once all sources are exhausted.
func (r *Reader) Next() (eventlog.Event, bool, error) {
	if r.h.Len() == 0 {
		return eventlog.Event{}, false, nil
	}
	top := r.h[0]
	ev := top.next
	top.advance()
	if !top.ok {
		if top.err != nil {
			err := top.err
			heap.Pop(&r.h)
			top.close()
			return eventlog.Event{}, false, err
		}
		heap.Pop(&r.h)
		top.close()
	} else {
		heap.Fix(&r.h, 0)
	}
	return ev, true, nil
}

// Close releases any sources still open (used when stopping early).
func (r *Reader) Close() {
	for _, s := range r.h {
		s.close()
	}
	r.h = nil
}
