package timeline

import "github.com/brandwork/desk/internal/task"

const (
	// CollapseThreshold is the largest block shown in full by default.
	CollapseThreshold = 5
	// collapsedHead and collapsedTail are kept visible around the disclosure.
	collapsedHead = 2
	collapsedTail = 2
)

// Entry is one displayable log entry.
type Entry struct {
	Message task.Message
	Role    Role
	// Thinking marks an assistant entry demoted to interim reasoning.
	Thinking bool
	// Text is the content with any checklist payload removed.
	Text      string
	Checklist []ChecklistItem
}

// Block groups a maximal run of consecutive intermediate entries.
type Block struct {
	// ID is the id of the first message of the run; it keys expansion state.
	ID      string
	Entries []Entry
	// Expanded reflects the view state, Collapsible whether it matters.
	Expanded    bool
	Collapsible bool
}

// Visible returns what the block shows right now. hidden is the number of
// entries folded behind the disclosure control (zero when nothing is hidden).
func (b Block) Visible() (head []Entry, hidden int, tail []Entry) {
	if !b.Collapsible || b.Expanded {
		return b.Entries, 0, nil
	}
	n := len(b.Entries)
	return b.Entries[:collapsedHead], n - collapsedHead - collapsedTail, b.Entries[n-collapsedTail:]
}

// Item is either a terminal Entry or an activity Block.
type Item struct {
	Entry *Entry
	Block *Block
}

// Build segments msgs. It never modifies msgs.
func Build(msgs []task.Message, view View) []Item {
	var (
		items []Item
		run   []Entry
	)
	flush := func() {
		if len(run) == 0 {
			return
		}
		b := &Block{
			ID:          run[0].Message.ID,
			Entries:     run,
			Collapsible: len(run) > CollapseThreshold,
		}
		b.Expanded = view.IsExpanded(b.ID)
		items = append(items, Item{Block: b})
		run = nil
	}

	for i := range msgs {
		e := entryFor(msgs, i)
		if e.Role == RoleIntermediate {
			run = append(run, e)
			continue
		}
		flush()
		items = append(items, Item{Entry: &e})
	}
	flush()
	return items
}

func entryFor(msgs []task.Message, i int) Entry {
	m := msgs[i]
	e := Entry{Message: m, Role: Classify(msgs, i), Text: m.Content}
	e.Thinking = m.Kind == task.KindAssistant && e.Role == RoleIntermediate
	if rest, items, ok := ExtractChecklist(m.Content); ok {
		e.Text = rest
		e.Checklist = items
	}
	return e
}
