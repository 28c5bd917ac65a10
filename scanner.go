package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Project is one matched, deduplicated project root. Immutable once built.
type Project struct {
	// RootPath is the absolute path of the matched directory.
	RootPath string
	// StrategyName is the display name of the strategy that claimed the root.
	StrategyName string
	// Targets are the artifact directories that existed at scan time,
	// resolved to absolute paths. A missing target is omitted, never listed.
	Targets []string
	// TotalSize is the recursive file-size sum under Targets, in bytes.
	TotalSize int64
	// Risk classifies the caution required to delete Targets.
	Risk RiskLevel
}

// ScanEvent is the closed set of events a scan streams to its consumer.
//
// Ordering contract: Scanning events are best-effort and may be dropped under
// backpressure; every ProjectFound is delivered exactly once, in no particular
// path order; Complete is always the final event.
type ScanEvent interface{ scanEvent() }

// ScanningEvent is a best-effort progress update.
type ScanningEvent struct {
	Path    string
	Visited int
	Found   int
}

// ProjectFoundEvent carries one accepted, sized project.
type ProjectFoundEvent struct {
	Project Project
}

// ScanCompleteEvent terminates the stream. Err is the scan-level failure, if
// any; per-entry failures are skipped silently and never surface here.
type ScanCompleteEvent struct {
	Err     error
	Elapsed time.Duration
	Visited int
	Found   int
}

func (ScanningEvent) scanEvent()     {}
func (ProjectFoundEvent) scanEvent() {}
func (ScanCompleteEvent) scanEvent() {}

// ScanOptions tunes traversal. The zero value is usable.
type ScanOptions struct {
	// SkipDirs are directory names never descended into (".git" and friends).
	SkipDirs map[string]struct{}
	// Excludes are compiled glob patterns matched against slash-separated
	// paths relative to the scan root.
	Excludes []glob.Glob
	// MaxDepth bounds traversal depth below the root; 0 means unbounded.
	MaxDepth int
	// Workers sizes both worker pools; 0 means runtime.NumCPU().
	Workers int
}

func defaultSkipDirs() map[string]struct{} {
	return map[string]struct{}{
		".git": {},
		".hg":  {},
		".svn": {},
	}
}

// progressInterval rate-limits Scanning events. Progress is cosmetic; one
// update a few times per second is plenty.
const progressInterval = 200 * time.Millisecond

// Scanner discovers, deduplicates and sizes cleanable projects. Strategies
// are shared read-only across workers; a Scanner is safe for one Scan at a
// time.
type Scanner struct {
	strategies []Strategy
	opts       ScanOptions

	visited      atomic.Int64
	found        atomic.Int64
	lastProgress atomic.Int64
}

func NewScanner(strategies []Strategy, opts ScanOptions) *Scanner {
	if opts.SkipDirs == nil {
		opts.SkipDirs = defaultSkipDirs()
	}
	return &Scanner{strategies: strategies, opts: opts}
}

// candidate is a (root, strategy) pair recorded during discovery, prior to
// deduplication.
type candidate struct {
	root     string
	strategy Strategy
	depth    int
}

// Scan walks root, streams events onto events, and returns every accepted
// project. Individual unreadable subtrees are skipped; only a root that
// cannot be traversed at all fails the scan. The final event on the stream
// is always a ScanCompleteEvent, which carries the same error Scan returns.
//
// The three phases run in strict order: parallel discovery, single-threaded
// deduplication, parallel sizing. Deduplication must finish before sizing
// starts because its ignored-prefix set decides which candidates are sized.
func (s *Scanner) Scan(ctx context.Context, root string, events chan<- ScanEvent) (projects []Project, err error) {
	start := time.Now()
	s.visited.Store(0)
	s.found.Store(0)
	s.lastProgress.Store(0)

	defer func() {
		complete := ScanCompleteEvent{
			Err:     err,
			Elapsed: time.Since(start),
			Visited: int(s.visited.Load()),
			Found:   int(s.found.Load()),
		}
		select {
		case events <- complete:
		case <-ctx.Done():
		}
	}()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", absRoot)
	}

	candidates, err := s.discover(ctx, absRoot, events)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	accepted := dedupeCandidates(candidates)

	projects, err = s.size(ctx, accepted, events)
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// discover traverses the tree in parallel and records the first matching
// strategy for every visited directory. Traversal continues into a matched
// root's children; nesting is resolved later by dedupeCandidates.
func (s *Scanner) discover(ctx context.Context, root string, events chan<- ScanEvent) ([]candidate, error) {
	var (
		mu         sync.Mutex
		candidates []candidate
	)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers())

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) (err error) {
		defer catchPanic(&err)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.visited.Add(1)
		s.sendProgress(events, dir)

		if strategy, ok := firstMatch(s.strategies, dir); ok {
			mu.Lock()
			candidates = append(candidates, candidate{root: dir, strategy: strategy, depth: pathDepth(dir)})
			mu.Unlock()
		}

		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			// A root that cannot be traversed at all fails the scan; an
			// unreadable subtree below it is skipped, never aborting.
			if depth == 0 {
				return fmt.Errorf("read scan root: %w", readErr)
			}
			logrus.WithField("dir", dir).WithError(readErr).Debug("skipping unreadable directory")
			return nil
		}

		for _, entry := range entries {
			// IsDir is false for symlinks, so linked directories are never
			// followed and traversal is bounded by the physical tree.
			if !entry.IsDir() {
				continue
			}
			if _, skip := s.opts.SkipDirs[entry.Name()]; skip {
				continue
			}
			if s.opts.MaxDepth > 0 && depth+1 > s.opts.MaxDepth {
				continue
			}
			sub := filepath.Join(dir, entry.Name())
			if s.excluded(root, sub) {
				continue
			}
			// TryGo falls back to a synchronous walk when the pool is full;
			// blocking in Go here could deadlock the recursive workers.
			child := sub
			childDepth := depth + 1
			if !group.TryGo(func() error { return walk(child, childDepth) }) {
				if err := walk(child, childDepth); err != nil {
					return err
				}
			}
		}
		return nil
	}

	group.Go(func() error { return walk(root, 0) })
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// dedupeCandidates drops candidates nested under an accepted candidate's
// target directory. Candidates are processed ancestors-first (stable sort by
// component count), and each accepted candidate contributes its existing
// target paths to the ignored-prefix set. A project inside a sibling,
// non-target subdirectory of another project survives.
func dedupeCandidates(candidates []candidate) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].depth < candidates[j].depth
	})

	accepted := make([]candidate, 0, len(candidates))
	var ignoredPrefixes []string

	for _, cand := range candidates {
		if underAny(cand.root, ignoredPrefixes) {
			continue
		}
		accepted = append(accepted, cand)
		for _, rel := range cand.strategy.Targets() {
			target := filepath.Join(cand.root, rel)
			if _, err := os.Stat(target); err == nil {
				ignoredPrefixes = append(ignoredPrefixes, target)
			}
		}
	}
	return accepted
}

// size runs the embarrassingly parallel sizing phase and emits each finished
// project as it completes, in no particular order.
func (s *Scanner) size(ctx context.Context, accepted []candidate, events chan<- ScanEvent) ([]Project, error) {
	projects := make([]Project, len(accepted))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers())

	for i, cand := range accepted {
		i, cand := i, cand
		group.Go(func() (err error) {
			defer catchPanic(&err)

			if ctx.Err() != nil {
				return ctx.Err()
			}

			var targets []string
			var total int64
			for _, rel := range cand.strategy.Targets() {
				target := filepath.Join(cand.root, rel)
				if _, statErr := os.Stat(target); statErr != nil {
					continue
				}
				targets = append(targets, target)
				size, sizeErr := dirSize(ctx, target)
				if sizeErr != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					// A partial size beats losing the project entirely.
					logrus.WithField("target", target).WithError(sizeErr).Warn("size computation failed, counting zero")
					continue
				}
				total += size
			}

			project := Project{
				RootPath:     cand.root,
				StrategyName: cand.strategy.Name(),
				Targets:      targets,
				TotalSize:    total,
				Risk:         cand.strategy.RiskLevel(),
			}
			projects[i] = project
			s.found.Add(1)

			select {
			case events <- ProjectFoundEvent{Project: project}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return projects, nil
}

// dirSize sums the sizes of regular files under dir. Symlinked directories
// are not followed, unreadable entries are skipped, and only cancellation
// aborts the walk.
func dirSize(ctx context.Context, dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if entry.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

func (s *Scanner) workers() int {
	if s.opts.Workers > 0 {
		return s.opts.Workers
	}
	return runtime.NumCPU()
}

// sendProgress emits a best-effort Scanning event, at most once per
// progressInterval. It never blocks: progress dropped under throttling or
// backpressure does not affect the final project set.
func (s *Scanner) sendProgress(events chan<- ScanEvent, dir string) {
	now := time.Now().UnixNano()
	last := s.lastProgress.Load()
	if now-last < int64(progressInterval) {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return
	}

	event := ScanningEvent{
		Path:    dir,
		Visited: int(s.visited.Load()),
		Found:   int(s.found.Load()),
	}
	select {
	case events <- event:
	default:
	}
}

func (s *Scanner) excluded(root, path string) bool {
	if len(s.opts.Excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.opts.Excludes {
		if pattern.Match(rel) {
			return true
		}
	}
	return false
}

// pathDepth counts path components, so ancestors sort before descendants.
func pathDepth(path string) int {
	return strings.Count(filepath.Clean(path), string(os.PathSeparator))
}

func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// catchPanic converts a worker panic into an error at the join boundary
// instead of crashing the process or silently losing results.
func catchPanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("scan worker panic: %v", r)
	}
}
