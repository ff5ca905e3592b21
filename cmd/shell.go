package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"livewatcher.com/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell for adding and removing rooms",
	Long: `Restores the rooms saved by the previous run and then reads commands
from the terminal. Type help for the list of commands.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func suggestions() []prompt.Suggest {
	var s []prompt.Suggest
	for _, c := range shell.Commands {
		s = append(s, prompt.Suggest{Text: c.Name, Description: c.Help})
		for _, a := range c.Aliases {
			s = append(s, prompt.Suggest{Text: a, Description: c.Help})
		}
	}
	return s
}

func completer(d prompt.Document) []prompt.Suggest {
	// only the command word is completed
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(suggestions(), d.GetWordBeforeCursor(), true)
}

func noCompletion(prompt.Document) []prompt.Suggest { return nil }

func confirm(question string) bool {
	answer := prompt.Input(question, noCompletion)
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

func runShell(cmd *cobra.Command, args []string) error {
	m, err := newMonitor(cfg)
	if err != nil {
		return err
	}
	defer m.shutdown()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	// go-prompt owns the signals while it reads input; this covers the
	// time spent inside commands.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "live room product monitor")
	if n := m.Restore(ctx); n > 0 {
		fmt.Fprintf(out, "restored %d rooms\n", n)
	}
	if ctx.Err() != nil {
		return nil
	}

	sh := shell.New(m, out, confirm)
	sh.PrintHelp()

	quit := false
	p := prompt.New(
		func(line string) { quit = sh.Execute(ctx, line) || ctx.Err() != nil },
		completer,
		prompt.OptionPrefix("> "),
		prompt.OptionTitle("livewatcher"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && quit
		}),
	)
	p.Run()

	fmt.Fprintln(os.Stderr, "stopping all rooms...")
	return nil
}
