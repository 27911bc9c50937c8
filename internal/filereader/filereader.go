// Package filereader imports OTLP JSON telemetry written by the OpenTelemetry
// Collector's file exporter. It feeds the same capture buffers as the gRPC
// receiver, so local queries see both sources.
package filereader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/otlpreceiver"
)

const (
	// OTLP JSON lines can be large for batched spans with many attributes.
	jsonlBufferInitial = 1 * 1024 * 1024
	jsonlBufferMax     = 10 * 1024 * 1024
)

// Signal directories under the base directory.
const (
	SignalTraces = "traces"
	SignalLogs   = "logs"
)

// Config holds configuration for a FileSource.
type Config struct {
	Directory string // contains traces/ and logs/ subdirectories

	// ActiveOnly loads only traces.jsonl and logs.jsonl, skipping rotated
	// archives such as traces-2025-12-09T13-10-56.jsonl.
	ActiveOnly bool
}

// FileSource reads OTLP JSON lines from a directory and follows appends.
type FileSource struct {
	directory  string
	activeOnly bool
	sink       otlpreceiver.Sink
	logger     *zap.Logger

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	fileOffsets map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the directory and prepares a watcher. Nothing is read until
// Start.
func New(cfg Config, sink otlpreceiver.Sink, logger *zap.Logger) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileSource{
		directory:   cfg.Directory,
		activeOnly:  cfg.ActiveOnly,
		sink:        sink,
		logger:      logger.Named("filereader"),
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start loads existing files and then follows the signal directories in the
// background until Stop.
func (fs *FileSource) Start(ctx context.Context) error {
	for _, signal := range []string{SignalTraces, SignalLogs} {
		dir := filepath.Join(fs.directory, signal)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fs.watcher.Add(dir); err != nil {
			fs.logger.Warn("could not watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	if err := fs.loadInitialData(ctx); err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
	}

	fs.wg.Add(1)
	go fs.watchLoop()
	return nil
}

// Stop closes the watcher and waits for the follow loop to exit.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

func (fs *FileSource) Directory() string {
	return fs.directory
}

// Import reads a single OTLP JSON file once. A .json file holds one
// document; anything else is read as JSON lines. The signal is taken from
// the file's name prefix or its parent directory.
func Import(ctx context.Context, path string, sink otlpreceiver.Sink) (int, error) {
	signal := signalOf(path)
	if signal == "" {
		return 0, fmt.Errorf("cannot tell whether %s holds traces or logs", path)
	}
	fs := &FileSource{sink: sink, logger: zap.NewNop(), fileOffsets: map[string]int64{}}
	handle, err := fs.handler(ctx, signal)
	if err != nil {
		return 0, err
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		if err := handle(data); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		return 1, nil
	}
	return fs.processFile(ctx, path, handle, true)
}

func signalOf(path string) string {
	name := filepath.Base(path)
	parent := filepath.Base(filepath.Dir(path))
	for _, s := range []string{SignalTraces, SignalLogs} {
		if parent == s || strings.HasPrefix(name, s) {
			return s
		}
	}
	return ""
}

func (fs *FileSource) loadInitialData(ctx context.Context) error {
	for _, signal := range []string{SignalTraces, SignalLogs} {
		files, err := fs.findJSONLFiles(filepath.Join(fs.directory, signal))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, file := range files {
			count, err := fs.load(ctx, signal, file)
			if err != nil {
				fs.logger.Warn("error loading file", zap.String("file", file), zap.Error(err))
				continue
			}
			fs.logger.Debug("loaded file", zap.String("signal", signal), zap.String("file", filepath.Base(file)), zap.Int("lines", count))
		}
	}
	return nil
}

func isJSONL(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".json") || strings.Contains(name, ".jsonl.")
}

// findJSONLFiles returns the signal files in dir, oldest first.
func (fs *FileSource) findJSONLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	active := filepath.Base(dir) + ".jsonl"
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isJSONL(name) {
			continue
		}
		if fs.activeOnly && name != active {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

func (fs *FileSource) load(ctx context.Context, signal, path string) (int, error) {
	handle, err := fs.handler(ctx, signal)
	if err != nil {
		return 0, err
	}
	return fs.processFile(ctx, path, handle, false)
}

func (fs *FileSource) handler(ctx context.Context, signal string) (func([]byte) error, error) {
	switch signal {
	case SignalTraces:
		return func(line []byte) error {
			data, err := decodeTraces(line)
			if err != nil {
				return err
			}
			return fs.sink.ReceiveSpans(ctx, otlpreceiver.SpansFromOTLP(data.GetResourceSpans()))
		}, nil
	case SignalLogs:
		return func(line []byte) error {
			data, err := decodeLogs(line)
			if err != nil {
				return err
			}
			return fs.sink.ReceiveLogs(ctx, otlpreceiver.LogsFromOTLP(data.GetResourceLogs()))
		}, nil
	}
	return nil, fmt.Errorf("unknown signal %q", signal)
}

// processFile reads from the last known offset and calls handler per line.
// Bad lines are logged and skipped. An unterminated last line is left for
// the next read unless final is set.
func (fs *FileSource) processFile(ctx context.Context, path string, handler func([]byte) error, final bool) (int, error) {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	// a file shorter than the offset was truncated or rotated
	if info, err := file.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	reader := bufio.NewReaderSize(file, jsonlBufferInitial)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		line, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			// oversized line: accumulate up to the max
			buf := append([]byte(nil), line...)
			for err == bufio.ErrBufferFull && len(buf) < jsonlBufferMax {
				line, err = reader.ReadSlice('\n')
				buf = append(buf, line...)
			}
			line = buf
		}
		if err != nil && err != io.EOF {
			if err == bufio.ErrBufferFull {
				return count, fmt.Errorf("reading %s: line exceeds %d bytes", path, jsonlBufferMax)
			}
			return count, fmt.Errorf("reading %s: %w", path, err)
		}
		if err == io.EOF && (!final || len(line) == 0) {
			break
		}

		offset += int64(len(line))
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		if herr := handler([]byte(trimmed)); herr != nil {
			fs.logger.Debug("skipping line", zap.String("file", filepath.Base(path)), zap.Error(herr))
		} else {
			count++
		}
		if err == io.EOF {
			break
		}
	}

	fs.mu.Lock()
	fs.fileOffsets[path] = offset
	fs.mu.Unlock()
	return count, nil
}

func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isJSONL(event.Name) {
				continue
			}
			signal := filepath.Base(filepath.Dir(event.Name))
			if fs.activeOnly && filepath.Base(event.Name) != signal+".jsonl" {
				continue
			}
			count, err := fs.load(fs.ctx, signal, event.Name)
			if err != nil {
				fs.logger.Warn("error reading file", zap.String("file", event.Name), zap.Error(err))
				continue
			}
			if count > 0 {
				fs.logger.Debug("loaded new lines", zap.String("signal", signal), zap.Int("lines", count))
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Stats describes what the source is following.
type Stats struct {
	Directory    string   `json:"directory"`
	WatchedDirs  []string `json:"watched_dirs"`
	FilesTracked int      `json:"files_tracked"`
}

func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	tracked := len(fs.fileOffsets)
	fs.mu.Unlock()

	return Stats{
		Directory:    fs.directory,
		WatchedDirs:  fs.watcher.WatchList(),
		FilesTracked: tracked,
	}
}
