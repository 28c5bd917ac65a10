package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSized(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644))
}

func touch(t *testing.T, path string) {
	t.Helper()
	writeSized(t, path, 0)
}

func runScan(t *testing.T, root string) ([]Project, []ScanEvent, error) {
	t.Helper()
	scanner := NewScanner(defaultStrategies(), ScanOptions{Workers: 2})
	ch := make(chan ScanEvent, 4096)
	projects, err := scanner.Scan(context.Background(), root, ch)

	var events []ScanEvent
	for {
		select {
		case event := <-ch:
			events = append(events, event)
		default:
			return projects, events, err
		}
	}
}

func projectByRoot(projects []Project, root string) (Project, bool) {
	for _, project := range projects {
		if project.RootPath == root {
			return project, true
		}
	}
	return Project{}, false
}

func TestScanNestedSiblingProject(t *testing.T) {
	// /p1 is a Node project; /p1/sub is a Rust project inside p1 but NOT
	// inside p1's node_modules target, so both must be reported.
	root := t.TempDir()
	touch(t, filepath.Join(root, "p1", "package.json"))
	writeSized(t, filepath.Join(root, "p1", "node_modules", "lib.js"), 500)
	touch(t, filepath.Join(root, "p1", "sub", "Cargo.toml"))
	writeSized(t, filepath.Join(root, "p1", "sub", "target", "bin"), 1000)

	projects, _, err := runScan(t, root)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	node, ok := projectByRoot(projects, filepath.Join(root, "p1"))
	require.True(t, ok)
	assert.Equal(t, "Node.js", node.StrategyName)
	assert.Equal(t, int64(500), node.TotalSize)

	rust, ok := projectByRoot(projects, filepath.Join(root, "p1", "sub"))
	require.True(t, ok)
	assert.Equal(t, "Rust", rust.StrategyName)
	assert.Equal(t, int64(1000), rust.TotalSize)
}

func TestScanSuppressesProjectUnderTarget(t *testing.T) {
	// /a/node_modules/b carries its own package.json, but it lies under a's
	// node_modules target and must not be reported separately.
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "package.json"))
	touch(t, filepath.Join(root, "a", "node_modules", "b", "package.json"))
	writeSized(t, filepath.Join(root, "a", "node_modules", "b", "index.js"), 64)

	projects, _, err := runScan(t, root)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, filepath.Join(root, "a"), projects[0].RootPath)
}

func TestScanSizesOnlyTargets(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "app")
	touch(t, filepath.Join(project, "package.json"))
	writeSized(t, filepath.Join(project, "node_modules", "dep", "big.js"), 300)
	writeSized(t, filepath.Join(project, "dist", "bundle.js"), 200)
	// Files outside the targets must not count.
	writeSized(t, filepath.Join(project, "src", "main.js"), 10000)
	writeSized(t, filepath.Join(project, "README.md"), 999)

	projects, _, err := runScan(t, root)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	got := projects[0]
	assert.Equal(t, int64(500), got.TotalSize)
	// Only targets that exist are resolved; .next and build are absent.
	assert.ElementsMatch(t, []string{
		filepath.Join(project, "node_modules"),
		filepath.Join(project, "dist"),
	}, got.Targets)
}

func TestScanEventStream(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "one", "Cargo.toml"))
	writeSized(t, filepath.Join(root, "one", "target", "a"), 10)
	touch(t, filepath.Join(root, "two", "pubspec.yaml"))
	writeSized(t, filepath.Join(root, "two", "build", "b"), 20)

	projects, events, err := runScan(t, root)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.NotEmpty(t, events)

	complete, ok := events[len(events)-1].(ScanCompleteEvent)
	require.True(t, ok, "Complete must be the final event")
	assert.NoError(t, complete.Err)
	assert.Equal(t, 2, complete.Found)
	assert.Greater(t, complete.Visited, 0)

	found := map[string]int{}
	for _, event := range events {
		if pf, ok := event.(ProjectFoundEvent); ok {
			found[pf.Project.RootPath]++
		}
	}
	require.Len(t, found, 2)
	for path, n := range found {
		assert.Equal(t, 1, n, "duplicate ProjectFound for %s", path)
	}
}

func TestScanDedupInvariant(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "x", "package.json"))
	touch(t, filepath.Join(root, "x", "node_modules", "vendored", "package.json"))
	touch(t, filepath.Join(root, "x", "node_modules", "vendored", "deep", "Cargo.toml"))
	touch(t, filepath.Join(root, "y", "Cargo.toml"))
	writeSized(t, filepath.Join(root, "y", "target", "t"), 5)

	projects, _, err := runScan(t, root)
	require.NoError(t, err)

	// No reported root may live under another reported project's target.
	for _, a := range projects {
		for _, target := range a.Targets {
			for _, b := range projects {
				assert.False(t,
					strings.HasPrefix(b.RootPath, target+string(os.PathSeparator)),
					"%s is nested under target %s", b.RootPath, target)
			}
		}
	}
	require.Len(t, projects, 2)
}

func TestScanSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, ".git", "proj", "package.json"))
	touch(t, filepath.Join(root, "real", "package.json"))

	projects, _, err := runScan(t, root)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, filepath.Join(root, "real"), projects[0].RootPath)
}

func TestScanMissingRoot(t *testing.T) {
	scanner := NewScanner(defaultStrategies(), ScanOptions{})
	ch := make(chan ScanEvent, 16)
	_, err := scanner.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), ch)
	require.Error(t, err)

	var last ScanEvent
	for {
		select {
		case event := <-ch:
			last = event
		default:
			complete, ok := last.(ScanCompleteEvent)
			require.True(t, ok)
			assert.Error(t, complete.Err)
			return
		}
	}
}

func TestScanUnreadableRoot(t *testing.T) {
	// A root that stats fine but cannot be read fails the scan instead of
	// reporting an empty result.
	root := t.TempDir()
	touch(t, filepath.Join(root, "p", "package.json"))
	require.NoError(t, os.Chmod(root, 0o000))
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })
	if _, readErr := os.ReadDir(root); readErr == nil {
		t.Skip("permissions not enforced for this user")
	}

	scanner := NewScanner(defaultStrategies(), ScanOptions{})
	ch := make(chan ScanEvent, 16)
	_, err := scanner.Scan(context.Background(), root, ch)
	require.Error(t, err)

	var last ScanEvent
	for {
		select {
		case event := <-ch:
			last = event
		default:
			complete, ok := last.(ScanCompleteEvent)
			require.True(t, ok)
			assert.Error(t, complete.Err)
			return
		}
	}
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "p", "package.json"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewScanner(defaultStrategies(), ScanOptions{})
	ch := make(chan ScanEvent, 16)
	_, err := scanner.Scan(ctx, root, ch)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanReturnsAfterCancelWithStalledConsumer(t *testing.T) {
	// A consumer that stops draining must not wedge the scan forever:
	// cancellation unblocks the pending event sends.
	root := t.TempDir()
	touch(t, filepath.Join(root, "p", "package.json"))
	writeSized(t, filepath.Join(root, "p", "node_modules", "f"), 10)

	ctx, cancel := context.WithCancel(context.Background())
	scanner := NewScanner(defaultStrategies(), ScanOptions{Workers: 1})
	ch := make(chan ScanEvent) // nobody reads

	done := make(chan error, 1)
	go func() {
		_, err := scanner.Scan(ctx, root, ch)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not return after cancellation")
	}
}

func TestScanMaxDepth(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "shallow", "package.json"))
	touch(t, filepath.Join(root, "a", "b", "c", "deep", "Cargo.toml"))

	scanner := NewScanner(defaultStrategies(), ScanOptions{Workers: 2, MaxDepth: 2})
	ch := make(chan ScanEvent, 4096)
	projects, err := scanner.Scan(context.Background(), root, ch)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, filepath.Join(root, "shallow"), projects[0].RootPath)
}

func TestScanExcludesPruneSubtrees(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "keep", "package.json"))
	touch(t, filepath.Join(root, "archive", "old", "package.json"))

	excludes, err := compileExcludes([]string{"archive"})
	require.NoError(t, err)

	scanner := NewScanner(defaultStrategies(), ScanOptions{Workers: 2, Excludes: excludes})
	ch := make(chan ScanEvent, 4096)
	projects, err := scanner.Scan(context.Background(), root, ch)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, filepath.Join(root, "keep"), projects[0].RootPath)
}

func TestCatchPanicConvertsToError(t *testing.T) {
	fn := func() (err error) {
		defer catchPanic(&err)
		panic("boom")
	}
	err := fn()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestScanRootItselfIsProject(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Cargo.toml"))
	writeSized(t, filepath.Join(root, "target", "out"), 42)

	projects, _, err := runScan(t, root)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, root, projects[0].RootPath)
	assert.Equal(t, int64(42), projects[0].TotalSize)
}

func TestDirSizeSkipsSymlinkedDirs(t *testing.T) {
	root := t.TempDir()
	writeSized(t, filepath.Join(root, "data", "file"), 100)
	// A symlink loop back into the tree must not recurse or double count.
	err := os.Symlink(filepath.Join(root, "data"), filepath.Join(root, "data", "loop"))
	if err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	size, err := dirSize(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)
}

func TestDedupeOrderIsDepthFirstStable(t *testing.T) {
	// Ancestors are processed before descendants regardless of discovery
	// order; the shallower candidate's target suppresses the deeper one.
	shallow := candidate{root: filepath.Join(t.TempDir(), "a"), strategy: nodeStrategy{}}
	shallow.depth = pathDepth(shallow.root)
	deep := candidate{root: filepath.Join(shallow.root, "node_modules", "b"), strategy: nodeStrategy{}}
	deep.depth = pathDepth(deep.root)

	touch(t, filepath.Join(shallow.root, "node_modules", "b", "package.json"))

	accepted := dedupeCandidates([]candidate{deep, shallow})
	require.Len(t, accepted, 1)
	assert.Equal(t, shallow.root, accepted[0].root)
}
