// Package filesystem discovers documents on the local filesystem and
// watches them for changes.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// settleDelay is how long a changed file must stay quiet before Watch
// emits it. Editors write in bursts; emitting per write would hash the
// same file repeatedly.
const settleDelay = 500 * time.Millisecond

// Connector reads documents from one or more directory roots.
type Connector struct {
	roots    []string
	patterns []string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a filesystem connector over the given roots. Empty
// patterns means every file matches.
func New(roots, patterns []string) *Connector {
	return &Connector{roots: roots, patterns: patterns}
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "filesystem"
}

// Validate checks that every root exists and is a directory.
func (c *Connector) Validate(_ context.Context) error {
	if len(c.roots) == 0 {
		return fmt.Errorf("%w: no directories given", domain.ErrInvalidInput)
	}
	for _, root := range c.roots {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("checking directory %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, root)
		}
	}
	return nil
}

// Discover walks every root and streams matching files. Unreadable
// files are reported on the error channel without stopping the walk.
func (c *Connector) Discover(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docsCh := make(chan domain.RawDocument)
	errsCh := make(chan error, 16)

	go func() {
		defer close(docsCh)
		defer close(errsCh)

		for _, root := range c.roots {
			err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					c.reportErr(errsCh, err)
					return nil
				}
				if entry.IsDir() {
					if isHidden(entry.Name()) && path != root {
						return filepath.SkipDir
					}
					return nil
				}
				if isHidden(entry.Name()) || !c.matches(root, path) {
					return nil
				}

				doc, err := readDocument(path)
				if err != nil {
					c.reportErr(errsCh, err)
					return nil
				}
				select {
				case docsCh <- *doc:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				c.reportErr(errsCh, fmt.Errorf("walking %s: %w", root, err))
			}
		}
	}()

	return docsCh, errsCh
}

// reportErr records an error without blocking the walk when the
// caller stopped draining.
func (c *Connector) reportErr(errsCh chan<- error, err error) {
	select {
	case errsCh <- err:
	default:
		logger.Warn("Discovery error dropped: %v", err)
	}
}

// Watch streams documents as their files settle after a change. New
// subdirectories are picked up as they appear.
func (c *Connector) Watch(ctx context.Context) (<-chan domain.RawDocument, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	for _, root := range c.roots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // unreadable subtrees are skipped
			}
			if entry.IsDir() {
				if isHidden(entry.Name()) && path != root {
					return filepath.SkipDir
				}
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", root, err)
		}
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	docsCh := make(chan domain.RawDocument)

	go func() {
		defer close(docsCh)

		pending := make(map[string]*time.Timer)
		var pendingMu sync.Mutex

		emit := func(path string) {
			doc, err := readDocument(path)
			if err != nil {
				logger.Warn("Watch read %s: %v", path, err)
				return
			}
			select {
			case docsCh <- *doc:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				info, err := os.Stat(event.Name)
				if err != nil {
					continue
				}
				if info.IsDir() {
					if !isHidden(filepath.Base(event.Name)) {
						_ = watcher.Add(event.Name)
					}
					continue
				}
				if isHidden(filepath.Base(event.Name)) || !c.matchesAnyRoot(event.Name) {
					continue
				}

				// Restart the settle timer on every burst write.
				pendingMu.Lock()
				if timer, ok := pending[event.Name]; ok {
					timer.Stop()
				}
				path := event.Name
				pending[path] = time.AfterFunc(settleDelay, func() {
					pendingMu.Lock()
					delete(pending, path)
					pendingMu.Unlock()
					emit(path)
				})
				pendingMu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Watch: %v", err)
			}
		}
	}()

	return docsCh, nil
}

// Close stops the watcher if one is running.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}

// matches reports whether the file matches any configured pattern.
// Patterns without a separator match the base name; patterns with one
// match the path relative to the root. A "**/" prefix matches at any
// depth.
func (c *Connector) matches(root, path string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	base := filepath.Base(path)
	for _, pattern := range c.patterns {
		pattern = strings.TrimPrefix(pattern, "**/")
		target := rel
		if !strings.Contains(pattern, string(filepath.Separator)) && !strings.Contains(pattern, "/") {
			target = base
		}
		if ok, err := filepath.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Connector) matchesAnyRoot(path string) bool {
	for _, root := range c.roots {
		if strings.HasPrefix(path, root) && c.matches(root, path) {
			return true
		}
	}
	return false
}

// readDocument loads a file and computes its content hash.
func readDocument(path string) (*domain.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stating %s: %w", path, err)
	}
	digest := sha256.Sum256(data)

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &domain.RawDocument{
		Location:     abs,
		Data:         data,
		ContentHash:  hex.EncodeToString(digest[:]),
		DeclaredType: declaredType(path),
		SizeBytes:    info.Size(),
		ModifiedAt:   info.ModTime(),
	}, nil
}

// declaredType derives the document type from the file extension.
func declaredType(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "txt"
	}
	return ext
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Ensure Factory implements the interface.
var _ driven.ConnectorFactory = (*Factory)(nil)

// Factory builds filesystem connectors.
type Factory struct {
	defaultPatterns []string
}

// NewFactory creates a connector factory with the given default
// patterns, used when a request supplies none.
func NewFactory(defaultPatterns []string) *Factory {
	return &Factory{defaultPatterns: defaultPatterns}
}

// Create returns a connector over the given roots.
func (f *Factory) Create(roots, patterns []string) (driven.Connector, error) {
	if len(patterns) == 0 {
		patterns = f.defaultPatterns
	}
	return New(roots, patterns), nil
}
