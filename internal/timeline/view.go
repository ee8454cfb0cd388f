package timeline

// View is the UI-only state of one task's timeline. Values are immutable;
// every change returns a new View.
type View struct {
	TaskID   string
	expanded map[string]bool
}

// ForTask returns the view for taskID, discarding expansion state when the
// task differs from the current one.
func (v View) ForTask(taskID string) View {
	if v.TaskID == taskID {
		return v
	}
	return View{TaskID: taskID}
}

// IsExpanded reports whether the block keyed by id was expanded.
func (v View) IsExpanded(id string) bool {
	return v.expanded[id]
}

// Toggle flips the expansion of block id.
func (v View) Toggle(id string) View {
	next := make(map[string]bool, len(v.expanded)+1)
	for k, on := range v.expanded {
		next[k] = on
	}
	if next[id] {
		delete(next, id)
	} else {
		next[id] = true
	}
	return View{TaskID: v.TaskID, expanded: next}
}
