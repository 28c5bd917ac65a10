package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TreeNode is one node of the display hierarchy. Interior "folder" nodes have
// no Project; a node carries a Project only when it is itself a discovered
// root. Parents exclusively own their children: the forest is a strict tree.
type TreeNode struct {
	Path      string
	Children  []*TreeNode
	Project   *Project
	Collapsed bool
	// Checked is a tri-state surrogate: true means this node and everything
	// under it is selected for deletion.
	Checked bool
}

// TreeFlatNode is an ephemeral, render-ready view of one node: the node, its
// depth, and the precomputed guide prefix ("│  └─ " and friends).
type TreeFlatNode struct {
	Node        *TreeNode
	Depth       int
	GuidePrefix string
}

func newTreeNode(path string) *TreeNode {
	return &TreeNode{Path: path}
}

func (n *TreeNode) Label() string {
	return filepath.Base(n.Path)
}

// TotalSize is the node's own project size (0 for folder nodes) plus the sum
// over its children, recursively.
func (n *TreeNode) TotalSize() int64 {
	var total int64
	if n.Project != nil {
		total = n.Project.TotalSize
	}
	for _, child := range n.Children {
		total += child.TotalSize()
	}
	return total
}

// SetChecked propagates the value to the entire subtree. Siblings are never
// touched.
func (n *TreeNode) SetChecked(checked bool) {
	n.Checked = checked
	for _, child := range n.Children {
		child.SetChecked(checked)
	}
}

// checkedProjects appends every checked project-bearing node's project.
func (n *TreeNode) checkedProjects(out []Project) []Project {
	if n.Checked && n.Project != nil {
		out = append(out, *n.Project)
	}
	for _, child := range n.Children {
		out = child.checkedProjects(out)
	}
	return out
}

// BuildTree converts a flat project list into a forest keyed by path segments
// relative to scanRoot. Intermediate folder nodes are created on demand; the
// project attaches to the exact terminal node. A project outside scanRoot
// becomes its own root (defensive fallback), and scanRoot itself matching a
// strategy yields a synthetic root node. Every level is sorted alphabetically,
// case-insensitively, for deterministic ordering.
//
// The forest is rebuilt from scratch on every projection change; prior
// collapsed/checked state does not survive a rebuild.
func BuildTree(projects []Project, scanRoot string) []*TreeNode {
	var roots []*TreeNode

	ordered := make([]Project, len(projects))
	copy(ordered, projects)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RootPath < ordered[j].RootPath
	})

	for i := range ordered {
		project := ordered[i]
		components, under := relativeComponents(project.RootPath, scanRoot)
		if !under {
			node := newTreeNode(project.RootPath)
			node.Project = &project
			roots = append(roots, node)
			continue
		}

		if len(components) == 0 {
			// scanRoot itself is the project: one synthetic root.
			if existing := findNode(roots, scanRoot); existing != nil {
				existing.Project = &project
			} else {
				node := newTreeNode(scanRoot)
				node.Project = &project
				roots = append(roots, node)
			}
			continue
		}

		roots = insertPath(roots, components, &project, scanRoot)
	}

	sortTree(roots)
	return roots
}

// relativeComponents splits path relative to root into segments, reporting
// whether path is under root at all.
func relativeComponents(path, root string) ([]string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	parts := strings.Split(rel, string(os.PathSeparator))
	components := parts[:0]
	for _, part := range parts {
		if part != "" {
			components = append(components, part)
		}
	}
	return components, true
}

func insertPath(nodes []*TreeNode, components []string, project *Project, base string) []*TreeNode {
	name := components[0]
	nodePath := filepath.Join(base, name)

	node := findNode(nodes, nodePath)
	if node == nil {
		node = newTreeNode(nodePath)
		nodes = append(nodes, node)
	}

	if len(components) == 1 {
		node.Project = project
	} else {
		node.Children = insertPath(node.Children, components[1:], project, nodePath)
	}
	return nodes
}

func findNode(nodes []*TreeNode, path string) *TreeNode {
	for _, node := range nodes {
		if node.Path == path {
			return node
		}
	}
	return nil
}

func sortTree(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return strings.ToLower(nodes[i].Label()) < strings.ToLower(nodes[j].Label())
	})
	for _, node := range nodes {
		sortTree(node.Children)
	}
}

// FlattenTree produces the pre-order render sequence. A collapsed node's
// subtree is omitted. The result borrows the nodes; it is recomputed on every
// call and never cached across mutations.
func FlattenTree(roots []*TreeNode) []TreeFlatNode {
	var flat []TreeFlatNode
	for i, root := range roots {
		flat = flattenNode(root, 0, i == len(roots)-1, nil, flat)
	}
	return flat
}

// flattenNode carries the ancestor "was last child" history top-down so every
// node's prefix extends its parent's by exactly one cell; recomputing the
// history per node would break vertical alignment.
func flattenNode(node *TreeNode, depth int, isLast bool, ancestorsLast []bool, out []TreeFlatNode) []TreeFlatNode {
	out = append(out, TreeFlatNode{
		Node:        node,
		Depth:       depth,
		GuidePrefix: guidePrefix(depth, isLast, ancestorsLast),
	})

	if node.Collapsed {
		return out
	}

	childAncestors := ancestorsLast
	if depth > 0 {
		childAncestors = append(append([]bool{}, ancestorsLast...), isLast)
	}
	for i, child := range node.Children {
		out = flattenNode(child, depth+1, i == len(node.Children)-1, childAncestors, out)
	}
	return out
}

// guidePrefix renders the continuation cells for each ancestor ("   " after a
// last child, "│  " while siblings continue below) followed by the elbow
// connector for the node itself. Depth-0 nodes get an empty prefix.
func guidePrefix(depth int, isLast bool, ancestorsLast []bool) string {
	if depth == 0 {
		return ""
	}
	var prefix strings.Builder
	for _, ancestorWasLast := range ancestorsLast {
		if ancestorWasLast {
			prefix.WriteString("   ")
		} else {
			prefix.WriteString("│  ")
		}
	}
	if isLast {
		prefix.WriteString("└─ ")
	} else {
		prefix.WriteString("├─ ")
	}
	return prefix.String()
}
