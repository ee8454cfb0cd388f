// Package timeline derives a renderable structure from a conversation log.
//
// Everything here is a pure function of the log; the only state is View,
// which remembers which activity blocks the user expanded.
package timeline

import "github.com/brandwork/desk/internal/task"

// Role is how an entry is displayed.
type Role string

const (
	// RoleTerminal entries are first-class conversation turns.
	RoleTerminal Role = "terminal"
	// RoleIntermediate entries are tool activity or interim "thinking".
	RoleIntermediate Role = "intermediate"
)

// Classify returns the role of msgs[i]. An assistant entry directly followed
// by a tool entry is interim reasoning for that tool call; any other
// assistant entry is a final answer. Tool entries are always intermediate.
func Classify(msgs []task.Message, i int) Role {
	switch msgs[i].Kind {
	case task.KindTool:
		return RoleIntermediate
	case task.KindAssistant:
		if i+1 < len(msgs) && msgs[i+1].Kind == task.KindTool {
			return RoleIntermediate
		}
		return RoleTerminal
	default:
		return RoleTerminal
	}
}
