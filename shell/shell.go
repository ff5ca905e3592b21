// Package shell implements the line based command surface over a room registry.
package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
	"livewatcher.com/models"
	"livewatcher.com/watcher"
)

type Registry interface {
	Add(ctx context.Context, url, name string) bool
	Remove(ctx context.Context, id string) bool
	List() []models.RoomInfo
	Status() watcher.Status
	RemoveAll(ctx context.Context)
	Restore(ctx context.Context) int
}

type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
}

var Commands = []Command{
	{Name: "add", Usage: "add <url> [name]", Help: "start monitoring a live room"},
	{Name: "remove", Aliases: []string{"rm", "del"}, Usage: "remove <id>", Help: "stop monitoring a live room"},
	{Name: "list", Aliases: []string{"ls"}, Usage: "list", Help: "list monitored rooms"},
	{Name: "status", Aliases: []string{"stat"}, Usage: "status", Help: "show room and store statistics"},
	{Name: "clear", Usage: "clear", Help: "stop monitoring every room"},
	{Name: "restore", Usage: "restore", Help: "re-add the rooms saved in the room file"},
	{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "show this help"},
	{Name: "exit", Aliases: []string{"quit", "q"}, Usage: "exit", Help: "stop everything and quit"},
}

type Shell struct {
	Registry Registry
	Out      io.Writer
	// Confirm asks the user a yes/no question.
	Confirm func(question string) bool
}

func New(reg Registry, out io.Writer, confirm func(string) bool) *Shell {
	return &Shell{Registry: reg, Out: out, Confirm: confirm}
}

func resolve(name string) string {
	name = strings.ToLower(name)
	for _, c := range Commands {
		if c.Name == name {
			return c.Name
		}
		for _, a := range c.Aliases {
			if a == name {
				return c.Name
			}
		}
	}
	return ""
}

// Execute runs one input line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	args, err := shellwords.Parse(strings.TrimSpace(line))
	if err != nil {
		fmt.Fprintf(s.Out, "could not parse command: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	switch resolve(args[0]) {
	case "add":
		if len(args) < 2 {
			fmt.Fprintln(s.Out, "missing room url")
			fmt.Fprintln(s.Out, "example: add https://live.douyin.com/69376413096 my-room")
			return false
		}
		name := strings.Join(args[2:], " ")
		if s.Registry.Add(ctx, args[1], name) {
			fmt.Fprintf(s.Out, "monitoring %s\n", args[1])
		} else {
			fmt.Fprintf(s.Out, "could not add %s\n", args[1])
		}
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(s.Out, "missing room id")
			fmt.Fprintln(s.Out, "example: remove 69376413096")
			return false
		}
		if s.Registry.Remove(ctx, args[1]) {
			fmt.Fprintf(s.Out, "removed %s\n", args[1])
		} else {
			fmt.Fprintf(s.Out, "room %s is not monitored\n", args[1])
		}
	case "list":
		s.printList(s.Registry.List())
	case "status":
		s.printStatus(s.Registry.Status())
	case "clear":
		if s.Confirm != nil && !s.Confirm("stop monitoring every room? (y/n) ") {
			return false
		}
		s.Registry.RemoveAll(ctx)
		fmt.Fprintln(s.Out, "all rooms cleared")
	case "restore":
		n := s.Registry.Restore(ctx)
		fmt.Fprintf(s.Out, "restored %d rooms\n", n)
	case "help":
		s.PrintHelp()
	case "exit":
		return true
	default:
		fmt.Fprintf(s.Out, "unknown command: %s\n", args[0])
		fmt.Fprintln(s.Out, "type help for the list of commands")
	}
	return false
}

func (s *Shell) PrintHelp() {
	fmt.Fprintln(s.Out, "commands:")
	for _, c := range Commands {
		usage := c.Usage
		if len(c.Aliases) > 0 {
			usage += " (" + strings.Join(c.Aliases, ", ") + ")"
		}
		fmt.Fprintf(s.Out, "  %-32s %s\n", usage, c.Help)
	}
}

func (s *Shell) printList(rooms []models.RoomInfo) {
	if len(rooms) == 0 {
		fmt.Fprintln(s.Out, "no rooms are being monitored")
		return
	}
	for i, r := range rooms {
		fmt.Fprintf(s.Out, "%d. %s (%s) - %s\n", i+1, r.Name, r.ID, r.Status)
		fmt.Fprintf(s.Out, "   url: %s\n", r.URL)
		fmt.Fprintf(s.Out, "   api %d | dom %d | saved %d\n", r.Stats.APICaptured, r.Stats.DOMCaptured, r.Stats.TotalSaved)
	}
}

// PrintStatus renders a registry status, shared with the batch and watch modes.
func PrintStatus(out io.Writer, st watcher.Status) {
	fmt.Fprintln(out, "=== monitor status ===")
	if len(st.Rooms) == 0 {
		fmt.Fprintln(out, "no rooms are being monitored")
		return
	}
	for _, r := range st.Rooms {
		fmt.Fprintf(out, "%s (%s)\n", r.Name, r.ID)
		fmt.Fprintf(out, "  status:  %s\n", r.Status)
		fmt.Fprintf(out, "  url:     %s\n", r.URL)
		fmt.Fprintf(out, "  stats:   api %d | dom %d | saved %d | webhook %d\n",
			r.Stats.APICaptured, r.Stats.DOMCaptured, r.Stats.TotalSaved, r.Stats.WebhookSent)
		fmt.Fprintf(out, "  added:   %s\n", r.AddedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	if st.StoreErr != nil {
		fmt.Fprintf(out, "store: unavailable (%v)\n", st.StoreErr)
		return
	}
	fmt.Fprintf(out, "store: %d products (today: %d)\n", st.Store.Total, st.Store.Today)
}

func (s *Shell) printStatus(st watcher.Status) {
	PrintStatus(s.Out, st)
}
