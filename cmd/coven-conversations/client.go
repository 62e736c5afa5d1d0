// ABOUTME: Client commands that mirror the current user's conversations from a tree server
// ABOUTME: watch streams events, list prints a snapshot, send and read write to the tree

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/2389/coven-conversations/internal/config"
	"github.com/2389/coven-conversations/internal/conversation"
	"github.com/2389/coven-conversations/internal/remote"
	"github.com/2389/coven-conversations/internal/treerpc"
)

const defaultWait = time.Second

// session is a connected client: gRPC connection, tree client, and handler.
type session struct {
	cfg     *config.Config
	conn    *grpc.ClientConn
	tree    *treerpc.Client
	handler *conversation.Handler
	logger  *slog.Logger
}

func openSession() (*session, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	conn, err := treerpc.Dial(cfg.Remote.Addr, cfg.Remote.Token, cfg.Remote.Insecure)
	if err != nil {
		return nil, err
	}
	tree := treerpc.NewClient(conn, logger)

	handler, err := conversation.NewHandler(tree, conversation.Config{
		AppID:         cfg.AppID,
		CurrentUserID: cfg.UserID,
		Reconcile: conversation.ReconcilerConfig{
			Timeout:      cfg.Reconcile.Timeout,
			DedupeWindow: cfg.Reconcile.DedupeWindow,
			DedupeSize:   cfg.Reconcile.DedupeSize,
		},
	}, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &session{cfg: cfg, conn: conn, tree: tree, handler: handler, logger: logger}, nil
}

func (s *session) Close() {
	s.handler.Close()
	s.tree.Close()
	_ = s.conn.Close()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// printer renders conversation events to the terminal.
type printer struct{}

func (p *printer) ConversationAdded(conv *conversation.Conversation, err error) {
	p.print(color.GreenString("+"), conv, err)
}

func (p *printer) ConversationChanged(conv *conversation.Conversation, err error) {
	p.print(color.YellowString("~"), conv, err)
}

func (p *printer) ConversationRemoved(conv *conversation.Conversation, err error) {
	p.print(color.RedString("-"), conv, err)
}

func (p *printer) print(mark string, conv *conversation.Conversation, err error) {
	if err != nil {
		fmt.Printf("%s %s\n", mark, color.RedString(err.Error()))
		return
	}
	fmt.Printf("%s %s\n", mark, formatConversation(conv))
}

func formatConversation(c *conversation.Conversation) string {
	unread := " "
	if c.IsNew {
		unread = color.New(color.FgCyan, color.Bold).Sprint("●")
	}

	who := c.ConversWith
	if c.ConversWithFullName != "" {
		who = c.ConversWithFullName + " (" + c.ConversWith + ")"
	}

	when := "-"
	if c.Timestamp > 0 {
		when = c.Time().Local().Format("2006-01-02 15:04")
	}

	text := truncate(strings.ReplaceAll(c.LastMessageText, "\n", " "), 60)

	return fmt.Sprintf("%s %s  %-28s %s  %s",
		unread,
		color.HiBlackString(when),
		who,
		text,
		color.HiBlackString(c.ConversationID))
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func runWatch(ctx context.Context) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	sub, err := s.handler.Connect(ctx, &printer{})
	if err != nil {
		return err
	}
	color.New(color.FgHiBlack).Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", sub.Path())

	var ended error
	select {
	case <-ctx.Done():
	case <-sub.Done():
		if ctx.Err() == nil {
			ended = errors.New("feed ended by server")
		}
	}
	s.handler.Disconnect()

	fmt.Println()
	printList(s.handler.Conversations())
	return ended
}

func printList(convs []conversation.Conversation) {
	if len(convs) == 0 {
		fmt.Println("no conversations")
		return
	}
	for i := range convs {
		fmt.Println(formatConversation(&convs[i]))
	}
}

func runList(ctx context.Context, args []string) error {
	f, err := parseFlags(args, []string{"wait"}, nil)
	if err != nil {
		return err
	}
	wait, err := f.duration("wait", defaultWait)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.handler.Connect(ctx); err != nil {
		return err
	}
	// The feed replays existing children first; give it time to drain.
	sleep(ctx, wait)
	s.handler.Disconnect()

	printList(s.handler.Conversations())
	return nil
}

func runSend(ctx context.Context, args []string) error {
	f, err := parseFlags(args, []string{"id", "with", "name", "text"}, []string{"incoming"})
	if err != nil {
		return err
	}
	with, err := f.require("with")
	if err != nil {
		return err
	}
	text, err := f.require("text")
	if err != nil {
		return err
	}
	id := f["id"]
	if id == "" {
		id = uuid.New().String()
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	conv := conversation.Conversation{
		ConversationID:  id,
		IsNew:           true,
		LastMessageText: text,
		Sender:          s.cfg.UserID,
		Recipient:       with,
		Timestamp:       time.Now().UnixMilli(),
		ChannelType:     "direct",
	}
	if f.bool("incoming") {
		conv.Sender, conv.Recipient = with, s.cfg.UserID
		conv.SenderFullName = f["name"]
	} else {
		conv.RecipientFullName = f["name"]
	}

	path := conversation.NodePath(s.cfg.AppID, s.cfg.UserID, id)
	if err := s.tree.SetNode(ctx, path, conv.Fields()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	s.logger.Info("conversation written", "path", path, "sender", conv.Sender, "recipient", conv.Recipient)
	fmt.Println(id)
	return nil
}

func runRead(ctx context.Context, args []string) error {
	f, err := parseFlags(args, []string{"id", "wait"}, nil)
	if err != nil {
		return err
	}
	id, err := f.require("id")
	if err != nil {
		return err
	}
	wait, err := f.duration("wait", defaultWait)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	found := make(chan struct{}, 1)
	notify := func(conv *conversation.Conversation, err error) {
		if err == nil && conv.ConversationID == id {
			select {
			case found <- struct{}{}:
			default:
			}
		}
	}
	if _, err := s.handler.Connect(ctx, &conversation.ListenerFuncs{Added: notify}); err != nil {
		return err
	}

	select {
	case <-found:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return fmt.Errorf("%w: conversation %s", remote.ErrNotFound, id)
	}

	s.handler.SetCurrentOpenConversationID(id)
	if !s.handler.SetConversationRead(ctx, id) {
		if s.handler.MarkReadPending(id) {
			// Close below waits for the earlier write.
			fmt.Println("mark-read already in progress")
			return nil
		}
		fmt.Println("already read")
		return nil
	}
	// Close waits for the dispatched write.
	fmt.Println("marked read")
	return nil
}
