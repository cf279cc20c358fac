package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/logging"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
)

func newChatCmd(a *app) *cobra.Command {
	var (
		userID    string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the coach in the terminal",
		Long: `Starts an interactive chat. Replies stream as they are generated;
Ctrl+C stops the current reply and keeps what was said so far. Ctrl+C at
the prompt, Ctrl+D or /quit exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), a, userID, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultUser(), "user id to chat as")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume a stored session")
	return cmd
}

func defaultUser() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return u
	}
	return "local"
}

func runChat(parent context.Context, a *app, userID, sessionID string, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger := a.cfg, a.logger

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		_ = logging.Audit(ctx, rt.hub, rt.audit, logger)
	}()
	defer func() {
		cancel()
		<-auditDone
	}()

	var sess *memory.Session
	if sessionID != "" {
		sess, err = rt.agent.Resume(ctx, sessionID, userID)
	} else {
		sess, err = rt.agent.StartSession(ctx, userID)
	}
	if err != nil {
		return err
	}

	transcript, err := logging.NewTranscriptLogger(cfg.Logging.Dir)
	if err != nil {
		logger.Warn("transcript disabled", zap.Error(err))
		transcript = nil
	} else {
		defer transcript.Close()
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	if interactive {
		fmt.Fprintf(out, "repcoach %s | session %s | /quit to exit\n", version, sess.ID)
	}

	return chatLoop(ctx, chatOptions{
		in:         in,
		out:        out,
		coach:      rt.agent,
		session:    sess,
		interrupts: interrupts,
		prompt:     interactive,
		transcript: transcript,
	})
}

// streamer is the part of the agent the chat loop needs.
type streamer interface {
	StreamMessage(ctx context.Context, sess *memory.Session, input string, onChunk model.ChunkFunc) (*agent.Reply, error)
}

type chatOptions struct {
	in         io.Reader
	out        io.Writer
	coach      streamer
	session    *memory.Session
	interrupts <-chan os.Signal
	prompt     bool
	transcript *logging.TranscriptLogger
}

// chatLoop reads one message per line until EOF, /quit, or an interrupt at
// the prompt. An interrupt while a reply streams cancels only that reply.
func chatLoop(ctx context.Context, o chatOptions) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(o.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		if o.prompt {
			fmt.Fprint(o.out, "you> ")
		}

		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-o.interrupts:
			fmt.Fprintln(o.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply, err := chatTurn(ctx, o, line)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(o.out, "error: %v\n", err)
			continue
		}
		if reply != nil && o.transcript != nil {
			_ = o.transcript.WriteTurn(o.session.ID, line, reply.Text, reply.Truncated)
		}
	}
}

// chatTurn streams one reply, cancelling it on interrupt.
func chatTurn(ctx context.Context, o chatOptions, line string) (*agent.Reply, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-o.interrupts:
			cancel()
		case <-done:
		}
	}()

	if o.prompt {
		fmt.Fprint(o.out, "coach> ")
	}
	reply, err := o.coach.StreamMessage(turnCtx, o.session, line, func(chunk string) error {
		_, err := io.WriteString(o.out, chunk)
		return err
	})
	if reply != nil && reply.Truncated {
		fmt.Fprint(o.out, " [interrupted]")
	}
	fmt.Fprintln(o.out)
	return reply, err
}
