package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/brandwork/desk/internal/session"
	"github.com/brandwork/desk/internal/task"
	"github.com/brandwork/desk/internal/timeline"
	"github.com/brandwork/desk/internal/upload"
)

const commandHelp = `Commands:
  <text>              Send a message with the uploaded attachments
  /attach PATH...     Attach files
  /retry ID           Retry a failed upload
  /remove ID          Remove an attachment
  /select URL         Toggle an agent image for the next message
  /allow              Allow the pending request
  /deny               Deny the pending request
  /answer TEXT        Answer a question (an option label or free text)
  /continue           Resume an interrupted or completed task
  /stop               Interrupt the running task
  /expand ID          Expand or collapse an activity block
  /show               Print the timeline
  /tasks              List stored tasks
  /switch [ID]        Open a stored task, or start a new one
  /dismiss ID         Dismiss a notification
  /quit               Exit`

var errQuit = errors.New("quit")

// command is one parsed input line.
type command struct {
	name string
	args []string
	text string
}

func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "send", text: line}, true
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	return command{name: strings.ToLower(name), args: strings.Fields(rest), text: rest}, true
}

type repl struct {
	ctl *session.Controller

	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
	asked   string
	notes   map[string]bool
	units   map[string]upload.Status
}

func newREPL(ctl *session.Controller, out io.Writer) *repl {
	return &repl{
		ctl:     ctl,
		out:     out,
		printed: make(map[string]string),
		notes:   make(map[string]bool),
		units:   make(map[string]upload.Status),
	}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}
			err := r.execute(ctx, cmd)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				r.printf("! %v\n", err)
			}
		}
	}
}

func (r *repl) execute(ctx context.Context, cmd command) error {
	switch cmd.name {
	case "send":
		return r.ctl.Submit(ctx, cmd.text)
	case "attach":
		if len(cmd.args) == 0 {
			return errors.New("usage: /attach PATH...")
		}
		_, err := r.ctl.AddPaths(ctx, cmd.args...)
		return err
	case "retry":
		return withID(cmd, func(id string) error { return r.ctl.Retry(ctx, id) })
	case "remove":
		return withID(cmd, func(id string) error { return r.ctl.Remove(ctx, id) })
	case "select":
		return withID(cmd, func(url string) error { return r.ctl.ToggleImage(ctx, url) })
	case "allow":
		return r.ctl.Decide(ctx, task.Decision{Decision: task.DecisionAllow})
	case "deny":
		return r.ctl.Decide(ctx, task.Decision{Decision: task.DecisionDeny})
	case "answer":
		if cmd.text == "" {
			return errors.New("usage: /answer TEXT")
		}
		return r.ctl.Decide(ctx, answerFor(r.ctl.Snapshot().Pending, cmd.text))
	case "continue":
		return r.ctl.Continue(ctx)
	case "stop":
		return r.ctl.Stop(ctx)
	case "expand":
		if err := withID(cmd, r.ctl.ToggleBlock); err != nil {
			return err
		}
		r.show()
		return nil
	case "show":
		r.show()
		return nil
	case "tasks":
		list, err := r.ctl.Tasks(ctx)
		if err != nil {
			return err
		}
		for _, t := range list {
			r.printf("  %s  %-11s %s\n", t.ID, t.Status, t.Title)
		}
		return nil
	case "switch", "new":
		id := ""
		if len(cmd.args) > 0 {
			id = cmd.args[0]
		}
		if err := r.ctl.SwitchTask(ctx, id); err != nil {
			return err
		}
		r.reset()
		r.show()
		return nil
	case "dismiss":
		return withID(cmd, r.ctl.Dismiss)
	case "help":
		r.printf("%s\n", commandHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd.name)
	}
}

func withID(cmd command, fn func(string) error) error {
	if len(cmd.args) != 1 {
		return fmt.Errorf("usage: /%s ID", cmd.name)
	}
	return fn(cmd.args[0])
}

// answerFor builds an allow decision for a question. Text matching an
// option label selects it; anything else is sent as custom text.
func answerFor(req *task.PermissionRequest, text string) task.Decision {
	d := task.Decision{Decision: task.DecisionAllow}
	if req != nil {
		for _, opt := range req.Options {
			if strings.EqualFold(opt.Label, text) {
				d.SelectedOptions = []string{opt.Label}
				return d
			}
		}
	}
	d.CustomText = text
	return d
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = make(map[string]string)
	r.asked = ""
	r.units = make(map[string]upload.Status)
}

// onSnapshot prints what changed since the previous snapshot.
func (r *repl) onSnapshot(s session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range s.Messages {
		line := messageLine(m)
		if r.printed[m.ID] == line {
			continue
		}
		r.printed[m.ID] = line
		fmt.Fprintln(r.out, line)
	}
	for _, u := range s.Uploads {
		if r.units[u.ID] == u.Status {
			continue
		}
		r.units[u.ID] = u.Status
		fmt.Fprintf(r.out, "  [%s] %s %s", u.ID, u.Filename, u.Status)
		if u.Error != "" {
			fmt.Fprintf(r.out, ": %s", u.Error)
		}
		fmt.Fprintln(r.out)
	}
	for _, n := range s.Notifications {
		if r.notes[n.ID] {
			continue
		}
		r.notes[n.ID] = true
		fmt.Fprintf(r.out, "  (%s %s) %s\n", n.Level, n.ID, n.Text)
	}
	if s.Pending != nil && s.Pending.ID != r.asked {
		r.asked = s.Pending.ID
		fmt.Fprintln(r.out, permissionPrompt(*s.Pending))
	}
	if s.Pending == nil {
		r.asked = ""
	}
}

func (r *repl) show() {
	s := r.ctl.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "task %s (%s)\n", orDash(s.TaskID), orDash(string(s.Status)))
	for _, item := range s.Timeline {
		if item.Entry != nil {
			fmt.Fprintln(r.out, messageLine(item.Entry.Message))
			continue
		}
		b := item.Block
		head, hidden, tail := b.Visible()
		fmt.Fprintf(r.out, "  ┌ activity %s\n", b.ID)
		printEntries(r.out, head)
		if hidden > 0 {
			fmt.Fprintf(r.out, "  │ +%d more (/expand %s)\n", hidden, b.ID)
		}
		printEntries(r.out, tail)
	}
	for _, img := range s.Images {
		mark := " "
		for _, sel := range s.Selected {
			if sel.URL == img.URL {
				mark = "*"
			}
		}
		fmt.Fprintf(r.out, "  %s image %s %s\n", mark, img.Label, img.URL)
	}
}

func printEntries(w io.Writer, entries []timeline.Entry) {
	for _, e := range entries {
		text := e.Text
		if e.Message.Kind == task.KindTool {
			text = fmt.Sprintf("%s (%s)", e.Message.ToolName, e.Message.ToolStatus)
		}
		fmt.Fprintf(w, "  │ %s\n", text)
		for _, item := range e.Checklist {
			fmt.Fprintf(w, "  │   [%s] %s\n", item.Status, item.Content)
		}
	}
}

func messageLine(m task.Message) string {
	switch m.Kind {
	case task.KindUser:
		return "> " + m.Content
	case task.KindTool:
		return fmt.Sprintf("  · %s %s", m.ToolName, m.ToolStatus)
	case task.KindSystem:
		return "  ! " + m.Content
	default:
		return m.Content
	}
}

func permissionPrompt(req task.PermissionRequest) string {
	var b strings.Builder
	switch req.Type {
	case task.RequestQuestion:
		fmt.Fprintf(&b, "? %s", req.Question)
		for _, opt := range req.Options {
			fmt.Fprintf(&b, "\n   - %s", opt.Label)
		}
		b.WriteString("\n  (/answer TEXT)")
	case task.RequestTool:
		fmt.Fprintf(&b, "? allow %s %s", req.ToolName, req.Command)
		b.WriteString(" (/allow or /deny)")
	case task.RequestFile:
		fmt.Fprintf(&b, "? allow %s on %s (/allow or /deny)", orDash(req.FileOp), strings.Join(req.FilePaths, ", "))
	default:
		what := "resource operation"
		if req.Resource != nil {
			what = req.Resource.Operation + " " + req.Resource.Resource
		}
		fmt.Fprintf(&b, "? allow %s (/allow or /deny)", what)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
