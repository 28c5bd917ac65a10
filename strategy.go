package main

import (
	"os"
	"path/filepath"
)

// RiskLevel classifies how much caution a deletion needs.
type RiskLevel int

const (
	// RiskLow marks artifacts that are machine-regenerable (node_modules, target).
	RiskLow RiskLevel = iota
	// RiskMedium marks caches whose loss slows down the next build.
	RiskMedium
	// RiskHigh marks configuration or state that cannot be rebuilt.
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "low"
	}
}

// Strategy identifies one project ecosystem: a marker predicate plus the
// artifact subdirectories worth reclaiming. Implementations must be stateless;
// a single instance is shared read-only across all scan workers.
type Strategy interface {
	// Name is the display label ("Node.js", "Rust", ...).
	Name() string
	// Detect reports whether dir is a project root of this kind. It must be
	// a pure existence check with no side effects beyond stat.
	Detect(dir string) bool
	// Targets lists artifact subdirectories relative to a matched root.
	// A listed target may not exist for a given instance; callers re-check.
	Targets() []string
	// RiskLevel classifies the caution required to delete this kind's targets.
	RiskLevel() RiskLevel
	// RebuildEstimate is a human hint for how long regeneration takes.
	RebuildEstimate() string
}

type nodeStrategy struct{}

func (nodeStrategy) Name() string            { return "Node.js" }
func (nodeStrategy) Detect(dir string) bool  { return fileExists(filepath.Join(dir, "package.json")) }
func (nodeStrategy) Targets() []string       { return []string{"node_modules", ".next", "dist", "build"} }
func (nodeStrategy) RiskLevel() RiskLevel    { return RiskLow }
func (nodeStrategy) RebuildEstimate() string { return "~1-2 mins (npm install)" }

type rustStrategy struct{}

func (rustStrategy) Name() string            { return "Rust" }
func (rustStrategy) Detect(dir string) bool  { return fileExists(filepath.Join(dir, "Cargo.toml")) }
func (rustStrategy) Targets() []string       { return []string{"target"} }
func (rustStrategy) RiskLevel() RiskLevel    { return RiskLow }
func (rustStrategy) RebuildEstimate() string { return "~2-5 mins (cargo build)" }

type flutterStrategy struct{}

func (flutterStrategy) Name() string            { return "Flutter" }
func (flutterStrategy) Detect(dir string) bool  { return fileExists(filepath.Join(dir, "pubspec.yaml")) }
func (flutterStrategy) Targets() []string       { return []string{"build", ".dart_tool"} }
func (flutterStrategy) RiskLevel() RiskLevel    { return RiskLow }
func (flutterStrategy) RebuildEstimate() string { return "~1-3 mins (flutter pub get + build)" }

type androidStrategy struct{}

func (androidStrategy) Name() string { return "Android" }
func (androidStrategy) Detect(dir string) bool {
	return fileExists(filepath.Join(dir, "build.gradle")) ||
		fileExists(filepath.Join(dir, "build.gradle.kts"))
}
func (androidStrategy) Targets() []string       { return []string{"app/build", "build", ".gradle"} }
func (androidStrategy) RiskLevel() RiskLevel    { return RiskLow }
func (androidStrategy) RebuildEstimate() string { return "~3-10 mins (gradle build)" }

// defaultStrategies returns the built-in set. Registration order matters:
// the first matching strategy claims a directory.
func defaultStrategies() []Strategy {
	return []Strategy{
		nodeStrategy{},
		rustStrategy{},
		flutterStrategy{},
		androidStrategy{},
	}
}

// filterStrategies drops strategies whose name appears in disabled.
func filterStrategies(strategies []Strategy, disabled []string) []Strategy {
	if len(disabled) == 0 {
		return strategies
	}
	skip := map[string]struct{}{}
	for _, name := range disabled {
		skip[name] = struct{}{}
	}
	kept := make([]Strategy, 0, len(strategies))
	for _, strategy := range strategies {
		if _, ok := skip[strategy.Name()]; ok {
			continue
		}
		kept = append(kept, strategy)
	}
	return kept
}

// firstMatch returns the first strategy (in registration order) that detects
// dir as a project root. A directory is never attributed to two strategies.
func firstMatch(strategies []Strategy, dir string) (Strategy, bool) {
	for _, strategy := range strategies {
		if strategy.Detect(dir) {
			return strategy, true
		}
	}
	return nil, false
}

func strategyNames(strategies []Strategy) []string {
	names := make([]string, 0, len(strategies))
	for _, strategy := range strategies {
		names = append(names, strategy.Name())
	}
	return names
}

func strategyGlyph(name string) string {
	switch name {
	case "Rust":
		return "🦀"
	case "Node.js":
		return "📦"
	case "Flutter":
		return "💙"
	case "Android":
		return "🤖"
	default:
		return "📁"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
