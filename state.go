package main

import (
	"sort"
)

type SortMode int

const (
	SortSizeDesc SortMode = iota
	SortSizeAsc
	SortNameAsc
	SortNameDesc
)

func (m SortMode) String() string {
	switch m {
	case SortSizeAsc:
		return "Size ↑"
	case SortNameAsc:
		return "Name ↑"
	case SortNameDesc:
		return "Name ↓"
	default:
		return "Size ↓"
	}
}

type ViewMode int

const (
	ViewList ViewMode = iota
	ViewTree
)

func (m ViewMode) String() string {
	if m == ViewTree {
		return "Tree"
	}
	return "List"
}

// AppState owns the discovered projects, the active sort/filter/view
// projection, the cursor, and the selection. It is the single surface the
// presentation layer reads and mutates; nothing here is touched concurrently.
// Its lifecycle is exactly one interactive session: created with an empty
// project set and scanning=true, frozen once deletion is confirmed.
type AppState struct {
	ScanRoot string

	allProjects     []Project
	visibleProjects []Project
	treeRoots       []*TreeNode

	cursor   int
	selected map[int]struct{}

	sortMode SortMode
	// filterNames are the known strategy names in registration order; the
	// filter ring is All followed by each name.
	filterNames []string
	filterIdx   int
	viewMode    ViewMode

	scanning          bool
	ShowConfirmation  bool
	deletionConfirmed bool
}

func NewAppState(scanRoot string, filterNames []string) *AppState {
	return &AppState{
		ScanRoot:    scanRoot,
		selected:    map[int]struct{}{},
		filterNames: filterNames,
		scanning:    true,
	}
}

// AddProject appends a discovered project and re-derives the projection.
func (s *AppState) AddProject(project Project) {
	s.allProjects = append(s.allProjects, project)
	s.refreshVisible()
}

func (s *AppState) FinishScan() {
	s.scanning = false
	s.refreshVisible()
}

func (s *AppState) Scanning() bool              { return s.scanning }
func (s *AppState) DeletionConfirmed() bool     { return s.deletionConfirmed }
func (s *AppState) SortMode() SortMode          { return s.sortMode }
func (s *AppState) ViewMode() ViewMode          { return s.viewMode }
func (s *AppState) Cursor() int                 { return s.cursor }
func (s *AppState) TotalProjects() int          { return len(s.allProjects) }
func (s *AppState) VisibleProjects() []Project  { return s.visibleProjects }

// FilterLabel names the active filter ("All" or a strategy name).
func (s *AppState) FilterLabel() string {
	if s.filterIdx == 0 {
		return "All"
	}
	return s.filterNames[s.filterIdx-1]
}

// FlatTree returns the render sequence for the current forest. Tree mode only;
// recomputed on every call.
func (s *AppState) FlatTree() []TreeFlatNode {
	return FlattenTree(s.treeRoots)
}

// VisibleCount is the length of whichever projection is active.
func (s *AppState) VisibleCount() int {
	if s.viewMode == ViewTree {
		return len(s.FlatTree())
	}
	return len(s.visibleProjects)
}

// IsSelected reports List-mode membership of a visible index.
func (s *AppState) IsSelected(index int) bool {
	_, ok := s.selected[index]
	return ok
}

// ToggleSelection flips the selection under the cursor.
//
// List mode selection is positional: the index set is tied to the current
// visible ordering, so a later sort or filter change may leave indices
// pointing at different projects. That quirk is accepted and documented; the
// filter cycle clears the set outright.
//
// Tree mode flips the node's checked flag and propagates it to every
// descendant: checking a folder checks everything beneath it.
func (s *AppState) ToggleSelection() {
	if s.viewMode == ViewTree {
		if node := s.nodeAt(s.cursor); node != nil {
			node.SetChecked(!node.Checked)
		}
		return
	}
	if len(s.visibleProjects) == 0 {
		return
	}
	if _, ok := s.selected[s.cursor]; ok {
		delete(s.selected, s.cursor)
	} else {
		s.selected[s.cursor] = struct{}{}
	}
}

// ToggleExpand flips collapse on the cursor node. Tree mode only; leaves are
// never collapsed.
func (s *AppState) ToggleExpand() {
	if s.viewMode != ViewTree {
		return
	}
	if node := s.nodeAt(s.cursor); node != nil && len(node.Children) > 0 {
		node.Collapsed = !node.Collapsed
		s.clampCursor()
	}
}

// ToggleViewMode swaps List and Tree, resets the cursor and re-derives the
// active projection.
func (s *AppState) ToggleViewMode() {
	if s.viewMode == ViewList {
		s.viewMode = ViewTree
	} else {
		s.viewMode = ViewList
	}
	s.cursor = 0
	s.refreshVisible()
}

// ToggleSort cycles SizeDesc → SizeAsc → NameAsc → NameDesc → SizeDesc.
func (s *AppState) ToggleSort() {
	switch s.sortMode {
	case SortSizeDesc:
		s.sortMode = SortSizeAsc
	case SortSizeAsc:
		s.sortMode = SortNameAsc
	case SortNameAsc:
		s.sortMode = SortNameDesc
	default:
		s.sortMode = SortSizeDesc
	}
	s.refreshVisible()
}

// CycleFilter advances All → each known strategy → All. The cursor and the
// List-mode selection reset; Tree-mode checks survive only insofar as the
// forest is rebuilt from the filtered set.
func (s *AppState) CycleFilter() {
	s.filterIdx = (s.filterIdx + 1) % (len(s.filterNames) + 1)
	s.cursor = 0
	s.selected = map[int]struct{}{}
	s.refreshVisible()
}

func (s *AppState) MoveUp() {
	if s.cursor > 0 {
		s.cursor--
	}
}

func (s *AppState) MoveDown() {
	if s.cursor+1 < s.VisibleCount() {
		s.cursor++
	}
}

// ConfirmDeletion freezes the state for the purpose of producing the deletion
// worklist.
func (s *AppState) ConfirmDeletion() {
	s.deletionConfirmed = true
}

// SelectedCount counts selected projects: the index set in List mode, checked
// project-bearing nodes in Tree mode.
func (s *AppState) SelectedCount() int {
	if s.viewMode == ViewTree {
		return len(s.treeSelection())
	}
	return len(s.selected)
}

// TotalSelectedSize sums the sizes of the current selection, in bytes.
func (s *AppState) TotalSelectedSize() int64 {
	var total int64
	for _, project := range s.SelectedProjects() {
		total += project.TotalSize
	}
	return total
}

// SelectedProjects materializes the selection for the deletion step.
func (s *AppState) SelectedProjects() []Project {
	if s.viewMode == ViewTree {
		return s.treeSelection()
	}
	indices := make([]int, 0, len(s.selected))
	for idx := range s.selected {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	projects := make([]Project, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(s.visibleProjects) {
			projects = append(projects, s.visibleProjects[idx])
		}
	}
	return projects
}

// CurrentProject is the project under the cursor, if any. In Tree mode a
// folder node under the cursor yields no project.
func (s *AppState) CurrentProject() (Project, bool) {
	if s.viewMode == ViewTree {
		if node := s.nodeAt(s.cursor); node != nil && node.Project != nil {
			return *node.Project, true
		}
		return Project{}, false
	}
	if s.cursor >= 0 && s.cursor < len(s.visibleProjects) {
		return s.visibleProjects[s.cursor], true
	}
	return Project{}, false
}

func (s *AppState) nodeAt(index int) *TreeNode {
	flat := s.FlatTree()
	if index < 0 || index >= len(flat) {
		return nil
	}
	return flat[index].Node
}

func (s *AppState) treeSelection() []Project {
	var projects []Project
	for _, root := range s.treeRoots {
		projects = root.checkedProjects(projects)
	}
	return projects
}

// refreshVisible re-derives the active projection: filter by strategy name,
// then sort (List) or rebuild the forest (Tree), then clamp the cursor.
func (s *AppState) refreshVisible() {
	var filtered []Project
	if s.filterIdx == 0 {
		filtered = append(filtered, s.allProjects...)
	} else {
		name := s.filterNames[s.filterIdx-1]
		for _, project := range s.allProjects {
			if project.StrategyName == name {
				filtered = append(filtered, project)
			}
		}
	}

	if s.viewMode == ViewTree {
		s.visibleProjects = filtered
		s.treeRoots = BuildTree(filtered, s.ScanRoot)
		s.clampCursor()
		return
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		left, right := filtered[i], filtered[j]
		switch s.sortMode {
		case SortSizeAsc:
			if left.TotalSize == right.TotalSize {
				return left.RootPath < right.RootPath
			}
			return left.TotalSize < right.TotalSize
		case SortNameAsc:
			return left.RootPath < right.RootPath
		case SortNameDesc:
			return left.RootPath > right.RootPath
		default:
			if left.TotalSize == right.TotalSize {
				return left.RootPath < right.RootPath
			}
			return left.TotalSize > right.TotalSize
		}
	})
	s.visibleProjects = filtered
	s.clampCursor()
}

func (s *AppState) clampCursor() {
	count := s.VisibleCount()
	if count == 0 {
		s.cursor = 0
		return
	}
	if s.cursor >= count {
		s.cursor = count - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}
