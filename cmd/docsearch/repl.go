package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/session"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/spf13/cobra"
)

func newReplCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Drive an interactive search session from stdin",
		Long: `Each input line replaces the query text, like typing into the search box.
Lines starting with ':' are keys: :down :up :right :left :enter :escape.
:quit ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, cfg, err := flags.buildStack(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			c := session.New(stack.Engine, stack.Resolver, session.Options{Debounce: cfg.Session.Debounce})
			defer c.Close()
			return runRepl(c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runRepl(c *session.Controller, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == ":quit" {
			break
		}
		if name, ok := strings.CutPrefix(line, ":"); ok {
			key, err := session.ParseKey(name)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			nav, err := c.Press(key)
			switch {
			case errors.Is(err, apperrors.ErrUnresolvedTarget):
				fmt.Fprintln(out, "not navigable:", err)
				continue
			case errors.Is(err, apperrors.ErrNoSelection):
				fmt.Fprintln(out, "nothing selected")
				continue
			case err != nil:
				return err
			}
			if nav != nil {
				fmt.Fprintf(out, "-> %s\n", nav.URL)
				continue
			}
		} else if err := c.Type(line); err != nil {
			return err
		}
		c.Wait()
		printSnapshot(out, c.Snapshot())
	}
	return scanner.Err()
}

func printSnapshot(w io.Writer, s session.Snapshot) {
	switch s.State {
	case session.Idle:
		fmt.Fprintln(w, "(idle)")
	case session.ResultsShown, session.NoResults:
		printResult(w, &query.Result{
			Query:       s.Query,
			Groups:      s.Groups,
			Truncated:   s.Truncated,
			TotalGroups: s.TotalGroups,
		}, s.Selected, s.Member)
	default:
		fmt.Fprintf(w, "(%s)\n", s.State)
	}
}
