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
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/controller"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/conversation"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/transport"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if _, err := a.requireSession(); err != nil {
			return err
		}
		users, err := a.gw.Users(cmd.Context())
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintln(cmd.OutOrStdout(), u.Username)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <peer>",
	Short: "Print the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		sess, err := a.requireSession()
		if err != nil {
			return err
		}
		cache, err := a.openCache(sess.User.Username)
		if err != nil {
			return err
		}
		all, err := a.gw.Messages(cmd.Context())
		if err != nil {
			return err
		}
		peer := chat.User{Username: args[0]}
		for _, m := range conversation.BuildView(all, sess.User, peer, cache) {
			writeMessage(cmd.OutOrStdout(), m)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <peer> <message...>",
	Short: "Send one message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		sess, err := a.requireSession()
		if err != nil {
			return err
		}
		cache, err := a.openCache(sess.User.Username)
		if err != nil {
			return err
		}
		body := strings.Join(args[1:], " ")
		if strings.TrimSpace(body) == "" {
			return condition(i18n.EmptyMessage)
		}

		msg, err := a.gw.SendMessage(cmd.Context(), body, args[0])
		if err != nil {
			return err
		}
		if msg.Sender == "" {
			msg.Sender = sess.User.Username
		}
		return cache.Record(args[0], msg)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [peer]",
	Short: "Interactive chat with live updates",
	Long: `Interactive chat. Lines you type are sent to the selected user.

Commands:
  /peer <name>   switch conversation
  /users         refresh the user list
  /quit          leave`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(usersCmd, historyCmd, sendCmd, chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	cache, err := a.openCache(sess.User.Username)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := transport.New(transport.Config{
		URL:                  cfg.RealtimeURL(),
		Token:                sess.Token,
		ReconnectDelay:       cfg.ReconnectDelay.Duration,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		StaleAfter:           cfg.StaleAfter.Duration,
	})
	out := cmd.OutOrStdout()
	ctl := controller.New(controller.Options{
		Self:         sess.User,
		Gateway:      a.gw,
		Transport:    tr,
		Cache:        cache,
		Renderer:     newTextRenderer(out, sess.User.Username),
		Lang:         cfg.Lang,
		PollInterval: cfg.PollInterval.Duration,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctl.Run(ctx)
	})
	g.Go(func() error {
		if len(args) == 1 {
			if err := ctl.SelectPeer(chat.User{Username: args[0]}); err != nil {
				return err
			}
		}
		return readInput(ctx, cmd.InOrStdin(), out, ctl)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, errQuit) {
		return nil
	}
	return err
}

var errQuit = errors.New("quit")

// readInput turns stdin lines into controller calls until EOF, /quit or ctx.
func readInput(ctx context.Context, in io.Reader, out io.Writer, ctl *controller.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := handleLine(ctx, line, out, ctl); err != nil {
				return err
			}
		}
	}
}

func handleLine(ctx context.Context, line string, out io.Writer, ctl *controller.Controller) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/users":
		return ctl.RefreshUsers(ctx)
	case "/peer":
		name := strings.TrimSpace(rest)
		if name == "" {
			fmt.Fprintln(out, "! usage: /peer <name>")
			return nil
		}
		return ctl.SelectPeer(chat.User{Username: name})
	}

	if err := ctl.Send(ctx, line); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug().Err(err).Msg("[livechat] send failed")
		fmt.Fprintf(out, "! %s\n", i18n.ForError(cfg.Lang, err))
	}
	return nil
}
