package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpl-au/sharedfile"
)

// lines is the plain one-string-per-line model used by cat and append.
type lines struct {
	items []string
}

func (l *lines) Reset() { l.items = l.items[:0] }

func (l *lines) ParseLine(line string) error {
	l.items = append(l.items, line)
	return nil
}

func (l *lines) WriteContent(w io.Writer) error {
	for _, item := range l.items {
		if _, err := io.WriteString(w, item+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func newCatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat FILE",
		Short: "Print the file under lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.open(args[0])
			if err != nil {
				return err
			}
			model := &lines{}
			if err := sharedfile.NewLineStore(f, model, sharedfile.StoreOptions{}).ReadGuarded(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range model.items {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newAppendCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "append FILE LINE...",
		Short: "Append lines in one critical section",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.open(args[0])
			if err != nil {
				return err
			}
			if f.IsReadOnly() {
				return fmt.Errorf("%s: %w", f.Path(), sharedfile.ErrReadOnly)
			}
			model := &lines{}
			store := sharedfile.NewLineStore(f, model, sharedfile.StoreOptions{})
			return store.DoLocked(func() error {
				if err := store.Read(); err != nil {
					return err
				}
				for _, arg := range args[1:] {
					model.items = append(model.items, strings.Split(arg, "\n")...)
				}
				return store.Write()
			})
		},
	}
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get FILE KEY",
		Short: "Print one value from a key=value file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.open(args[0])
			if err != nil {
				return err
			}
			props := sharedfile.NewProperties(f, sharedfile.PropertiesOptions{})
			if err := props.Load(); err != nil {
				return err
			}
			v, ok := props.Get(args[1])
			if !ok {
				return fmt.Errorf("%s: %w", args[1], sharedfile.ErrNotFound)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newSetCmd(g *globalFlags) *cobra.Command {
	var header string
	cmd := &cobra.Command{
		Use:   "set FILE KEY VALUE",
		Short: "Set one value in a key=value file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.open(args[0])
			if err != nil {
				return err
			}
			props := sharedfile.NewProperties(f, sharedfile.PropertiesOptions{Header: header})
			return props.Update(func(p *sharedfile.Properties) error {
				return p.Set(args[1], args[2])
			})
		},
	}
	cmd.Flags().StringVar(&header, "header", "", "Comment written at the top of the file")
	return cmd
}

func newHoldCmd(g *globalFlags) *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "hold FILE",
		Short: "Hold the lock until the duration passes or a signal arrives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.open(args[0])
			if err != nil {
				return err
			}
			if err := f.Lock(); err != nil {
				return err
			}
			defer f.Unlock()
			fmt.Fprintln(cmd.OutOrStdout(), "locked")

			var expired <-chan time.Time
			if hold > 0 {
				timer := time.NewTimer(hold)
				defer timer.Stop()
				expired = timer.C
			}
			select {
			case <-expired:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&hold, "for", 0, "How long to hold the lock (0 waits for a signal)")
	return cmd
}

func newTryLockCmd(g *globalFlags) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "trylock FILE",
		Short: "Report whether the lock is free right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.open(args[0])
			if err != nil {
				return err
			}
			ok := f.TryLock()
			if !ok && wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				ok, _ = f.TryLockContext(ctx, sharedfile.DefaultRetryDelay)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "busy")
				return fmt.Errorf("%s: %w", f.Path(), sharedfile.ErrAlreadyLocked)
			}
			f.Unlock()
			fmt.Fprintln(cmd.OutOrStdout(), "free")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep trying for this long before giving up")
	return cmd
}
