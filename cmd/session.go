package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideasync/internal/client"
	"ideasync/internal/models"
)

func newCreateCmd(v *viper.Viper) *cobra.Command {
	var (
		title     string
		idea      string
		noEdit    bool
		noComment bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and edit it interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			c, err := connect(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			perms := models.DefaultPermissions()
			perms.CanEdit = !noEdit
			perms.CanComment = !noComment
			se, err := c.Projector().CreateSession(cmd.Context(), title, idea, &perms)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s created\n", se.ID)
			return runSession(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "session title")
	cmd.Flags().StringVar(&idea, "idea", "", "initial idea text")
	cmd.Flags().BoolVar(&noEdit, "no-edit", false, "do not let joiners edit the idea")
	cmd.Flags().BoolVar(&noComment, "no-comment", false, "do not let joiners comment")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newJoinCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join an existing session and edit it interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			c, err := connect(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			if _, err := c.FetchSession(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("find session %s: %w", args[0], err)
			}
			se, err := c.Projector().JoinSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %s (%s)\n", se.ID, se.Title)
			return runSession(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

const sessionHelp = `plain text replaces the idea; commands:
  /comment <text>   add a comment
  /cursor <x> <y>   move your cursor
  /typing           show the typing indicator
  /transfer <user>  hand ownership to another participant
  /who              list participants
  /end              end the session (owner only)
  /leave            leave and exit`

// runSession streams session events to out and applies the lines read from
// in until /leave or end of input.
func runSession(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	me := c.Identity().UserID
	sub := c.SubscribeAll(func(ev models.Event) {
		if ev.UserID == me && ev.Type == models.EventCursorMoved {
			return
		}
		printf("%s\n", describeEvent(ev))
	})
	defer c.Unsubscribe(sub)

	proj := c.Projector()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var err error
		cmd, arg, _ := strings.Cut(line, " ")
		switch {
		case !strings.HasPrefix(line, "/"):
			err = proj.UpdateIdea(ctx, line)
		case cmd == "/leave" || cmd == "/quit":
			return proj.LeaveSession(ctx)
		case cmd == "/end":
			err = proj.EndSession(ctx)
		case cmd == "/comment":
			err = proj.AddComment(ctx, arg)
		case cmd == "/typing":
			proj.StartTyping(ctx)
		case cmd == "/cursor":
			var cursor models.Cursor
			cursor, err = parseCursor(arg)
			if err == nil {
				proj.MoveCursor(ctx, cursor)
			}
		case cmd == "/transfer":
			state := proj.State()
			if state.CurrentSession == nil {
				err = fmt.Errorf("no current session")
				break
			}
			err = c.TransferOwnership(ctx, state.CurrentSession.ID, me, strings.TrimSpace(arg))
		case cmd == "/who":
			for _, p := range proj.State().Participants {
				printf("  %-12s %-7s %s\n", p.UserID, p.Role, p.Status)
			}
		case cmd == "/help":
			printf("%s\n", sessionHelp)
		default:
			printf("unknown command %s, try /help\n", cmd)
		}
		if err != nil {
			printf("error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if proj.State().CurrentSession == nil {
		return nil
	}
	return proj.LeaveSession(ctx)
}

func parseCursor(arg string) (models.Cursor, error) {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		return models.Cursor{}, fmt.Errorf("usage: /cursor <x> <y>")
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return models.Cursor{}, fmt.Errorf("bad x: %w", err)
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return models.Cursor{}, fmt.Errorf("bad y: %w", err)
	}
	return models.Cursor{X: x, Y: y}, nil
}

func describeEvent(ev models.Event) string {
	prefix := fmt.Sprintf("[%s] %s", ev.Type, ev.UserID)
	switch ev.Type {
	case models.EventUserJoined:
		var d models.UserJoinedData
		if ev.DecodeData(&d) == nil {
			return fmt.Sprintf("%s joined as %s", prefix, d.Role)
		}
	case models.EventUserLeft:
		var d models.UserLeftData
		if ev.DecodeData(&d) == nil && d.NewOwnerID != "" {
			return fmt.Sprintf("%s left, %s is now owner", prefix, d.NewOwnerID)
		}
		return prefix + " left"
	case models.EventIdeaUpdated:
		var d models.IdeaUpdatedData
		if ev.DecodeData(&d) == nil {
			return fmt.Sprintf("%s: %s", prefix, d.Idea)
		}
	case models.EventCommentAdded:
		var d models.CommentAddedData
		if ev.DecodeData(&d) == nil {
			return fmt.Sprintf("%s commented: %s", prefix, d.Text)
		}
	case models.EventCursorMoved:
		var d models.CursorMovedData
		if ev.DecodeData(&d) == nil {
			return fmt.Sprintf("%s cursor at %.0f,%.0f", prefix, d.X, d.Y)
		}
	case models.EventSessionEnded:
		return prefix + " ended the session"
	case models.EventOwnershipTransferred:
		var d models.OwnershipTransferredData
		if ev.DecodeData(&d) == nil {
			return fmt.Sprintf("%s handed ownership to %s", prefix, d.ToUserID)
		}
	case models.EventUserTyping:
		var d models.UserTypingData
		if ev.DecodeData(&d) == nil && d.Typing {
			return prefix + " is typing"
		}
		return prefix + " stopped typing"
	}
	return prefix
}
