package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/skald-lang/skald"
	"github.com/skald-lang/skald/pkg/adapters/file"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/script"
)

// RunOptions contains all the configuration for the run and resume commands.
type RunOptions struct {
	BundlePath string
	SessionID  string
	SaveDir    string
	Seed       uint32
	StepLimit  int
	Debug      bool
	Resume     bool
	Quiet      bool
}

// RunSession plays a bundle interactively on the terminal.
func RunSession(opts RunOptions) error {
	logger := createLogger(opts.Debug)

	if !opts.Quiet {
		PrintBanner(skald.Version)
	}

	program, err := skald.LoadBundle(opts.BundlePath)
	if err != nil {
		return err
	}

	facadeOpts := []skald.Option{
		skald.WithRandomSeed(opts.Seed),
		skald.WithStepLimit(opts.StepLimit),
		skald.WithLogger(logger),
	}

	var store *file.Store
	if opts.SessionID != "" {
		store = file.New(opts.SaveDir)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	var eng *engine.Engine
	if opts.Resume {
		if store == nil {
			return fmt.Errorf("resume requires a session ID")
		}
		snap, err := store.Load(sigCtx, opts.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %q: %w", opts.SessionID, err)
		}
		eng, err = skald.Resume(program, snap, facadeOpts...)
		if err != nil {
			return err
		}
		printSystemMessage("Session '%s' resumed.", opts.SessionID)
	} else {
		eng, err = skald.New(program, facadeOpts...)
		if err != nil {
			return err
		}
		if err := eng.Start("", nil); err != nil {
			return err
		}
		if opts.SessionID != "" {
			printSystemMessage("Session '%s' active.", opts.SessionID)
		}
	}

	runner := &sessionRunner{
		eng:    eng,
		store:  store,
		opts:   opts,
		style:  newStyler(),
		reader: bufio.NewScanner(NewInterruptibleReader(os.Stdin, sigCtx.Done())),
		ctx:    sigCtx,
	}
	return handleExecutionError(runner.loop())
}

type sessionRunner struct {
	eng    *engine.Engine
	store  *file.Store
	opts   RunOptions
	style  styler
	reader *bufio.Scanner
	ctx    *SignalContext
}

func (r *sessionRunner) loop() error {
	for {
		out, err := r.eng.NextOutput()
		if err != nil {
			return err
		}

		switch o := out.(type) {
		case engine.TextOutput:
			fmt.Println(r.style.story(o.Text))

		case engine.ChoicesOutput:
			if o.PromptText != "" {
				fmt.Println(r.style.prompt(o.PromptText))
			}
			for _, item := range o.Items {
				fmt.Println(r.style.option(item.Index, item.Text))
			}
			if err := r.readChoice(len(o.Items)); err != nil {
				return err
			}

		case engine.InputOutput:
			prompt := o.PromptText
			if o.DefaultText != "" {
				prompt = fmt.Sprintf("%s %s", prompt, r.style.faint("["+o.DefaultText+"]"))
			}
			fmt.Println(r.style.prompt(prompt))
			line, err := r.readLine()
			if err != nil {
				return err
			}
			if handled, err := r.handleCommand(line); err != nil {
				return err
			} else if handled {
				continue // boundary is re-echoed
			}
			if err := r.eng.SubmitInput(line); err != nil {
				return err
			}

		case engine.EndOutput:
			printSystemMessage("The story has ended.")
			return nil
		}
	}
}

// readChoice keeps asking until a valid index is chosen. Invalid
// answers never advance the engine, so the boundary stays intact.
func (r *sessionRunner) readChoice(count int) error {
	for {
		line, err := r.readLine()
		if err != nil {
			return err
		}
		if handled, err := r.handleCommand(line); err != nil {
			return err
		} else if handled {
			return nil // loop re-echoes the boundary
		}

		index, err := strconv.Atoi(line)
		if err != nil {
			printSystemMessage("Pick a number between 0 and %d.", count-1)
			continue
		}
		switch err := r.eng.Choose(index); script.ErrorCode(err) {
		case "":
			return nil
		case script.CodeChoiceIndex:
			printSystemMessage("Pick a number between 0 and %d.", count-1)
		default:
			return err
		}
	}
}

// handleCommand intercepts session commands. ":save" snapshots at the
// current boundary; ":quit" leaves the story.
func (r *sessionRunner) handleCommand(line string) (bool, error) {
	switch strings.TrimSpace(line) {
	case ":quit":
		return true, fmt.Errorf("interrupted")
	case ":save":
		if r.store == nil {
			printSystemMessage("No session ID; start with --session to enable saving.")
			return true, nil
		}
		snap, err := r.eng.Snapshot()
		if err != nil {
			return true, err
		}
		if err := r.store.Save(r.ctx, r.opts.SessionID, snap); err != nil {
			return true, err
		}
		printSystemMessage("Session '%s' saved.", r.opts.SessionID)
		return true, nil
	}
	return false, nil
}

func (r *sessionRunner) readLine() (string, error) {
	fmt.Print("> ")
	if !r.reader.Scan() {
		if err := r.reader.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("interrupted")
	}
	return strings.TrimSpace(r.reader.Text()), nil
}
