package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"book_ghostwriter/workflow"
)

var (
	chatThread string
	chatStream bool
)

var (
	agentStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	transitionStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	errorStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	promptStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the specialists from the terminal",
	Long: `Starts an interactive session. Pass --thread to resume a stored
conversation; otherwise a new one is created and its id printed.
Type /quit to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", "", "conversation id to resume")
	chatCmd.Flags().BoolVar(&chatStream, "stream", true, "print replies while they are generated")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if chatThread != "" {
		st, err := a.engine.Resume(ctx, chatThread)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s (%s)\n", transitionStyle.Render("resuming"), chatThread, st.Stage)
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		req := workflow.TurnRequest{
			ConversationID: chatThread,
			Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: line}},
		}
		res, err := a.engine.Turn(ctx, req, chatPrinter(out, renderer, chatStream))
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
			continue
		}
		if chatThread == "" {
			chatThread = res.ConversationID
			fmt.Fprintf(out, "%s %s\n", transitionStyle.Render("conversation"), chatThread)
		}
		if res.Stage == workflow.StageComplete {
			fmt.Fprintln(out, transitionStyle.Render("manuscript complete"))
		}
	}
	if err := in.Err(); err != nil && err != io.EOF {
		return err
	}
	a.publisher.Wait()
	return nil
}

// chatPrinter renders turn events. With streaming on, deltas are written
// raw and the finished message is not repeated.
func chatPrinter(out io.Writer, renderer *glamour.TermRenderer, stream bool) workflow.EventSink {
	streaming := false
	return func(ev workflow.Event) {
		switch ev.Type {
		case workflow.EventTransition:
			fmt.Fprintln(out, transitionStyle.Render(fmt.Sprintf("[%s → %s]", ev.From, ev.To)))
		case workflow.EventDelta:
			if !stream {
				return
			}
			if !streaming {
				fmt.Fprint(out, agentStyle.Render(ev.Agent+": "))
				streaming = true
			}
			fmt.Fprint(out, ev.Content)
		case workflow.EventMessage:
			if ev.Role != workflow.RoleAssistant {
				return
			}
			if streaming {
				fmt.Fprintln(out)
				streaming = false
				return
			}
			fmt.Fprintln(out, agentStyle.Render(ev.Agent+":"))
			rendered, err := renderer.Render(ev.Content)
			if err != nil {
				rendered = ev.Content + "\n"
			}
			fmt.Fprint(out, rendered)
		case workflow.EventError:
			if streaming {
				fmt.Fprintln(out)
				streaming = false
			}
		}
	}
}
