package host

import "context"

// TreeItem is one node of a tree view.
type TreeItem struct {
	ID          string
	Label       string
	Description string
	// File and Line locate the item's source, Line is 1-based.
	File        string
	Line        int
	Collapsible bool
	// Detail is markdown shown below the item by hosts that render it.
	Detail      string
}

// TreeDataProvider supplies the nodes of a tree view. A nil parent asks for
// the roots.
type TreeDataProvider interface {
	Children(ctx context.Context, parent *TreeItem) ([]*TreeItem, error)
	OnDidChange(listener func()) Disposable
}

// TreeLine is a flattened tree node with its depth.
type TreeLine struct {
	Depth int
	Item  *TreeItem
}

// Flatten walks a provider depth first.
func Flatten(ctx context.Context, provider TreeDataProvider) ([]TreeLine, error) {
	var lines []TreeLine
	var walk func(parent *TreeItem, depth int) error
	walk = func(parent *TreeItem, depth int) error {
		children, err := provider.Children(ctx, parent)
		if err != nil {
			return err
		}
		for _, child := range children {
			lines = append(lines, TreeLine{Depth: depth, Item: child})
			if child.Collapsible {
				if err := walk(child, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(nil, 0); err != nil {
		return nil, err
	}
	return lines, nil
}
