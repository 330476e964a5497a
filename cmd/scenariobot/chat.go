package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/responder"
	"github.com/m3rciful/scenariobot/core/scenario"
)

const chatHelp = "Commands: /state, /reset, /quit"

func newChatCmd() *cobra.Command {
	var (
		scenarioPath string
		kind         string
		window       int
		plain        bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a scenario in the terminal without Telegram or a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def := scenario.DefaultScenario()
			if scenarioPath != "" {
				data, err := os.ReadFile(scenarioPath)
				if err != nil {
					return err
				}
				if def, err = scenario.Parse(data); err != nil {
					return fmt.Errorf("scenario is invalid: %w", err)
				}
			}

			var rc coreconfig.ResponderConfig
			if err := envconfig.Process("", &rc); err != nil {
				return fmt.Errorf("responder env: %w", err)
			}
			rc.Kind = kind
			resp, err := responder.FromConfig(rc)
			if err != nil {
				return err
			}

			engine, err := scenario.NewEngine(def, resp, scenario.WithHistoryWindow(window))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			render := plainRenderer
			if f, ok := out.(*os.File); ok && !plain && term.IsTerminal(int(f.Fd())) {
				render = markdownRenderer(f)
			}
			return chatLoop(cmd.Context(), engine, cmd.InOrStdin(), out, render)
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario JSON file (default: built-in scenario)")
	cmd.Flags().StringVarP(&kind, "responder", "r", coreconfig.ResponderStub, "responder kind: stub or live (live reads DEEPSEEK_API_KEY)")
	cmd.Flags().IntVar(&window, "history", scenario.DefaultHistoryWindow, "history lines folded into prompts")
	cmd.Flags().BoolVar(&plain, "plain", false, "print replies without markdown rendering")
	return cmd
}

func plainRenderer(s string) string { return s + "\n" }

func markdownRenderer(out *os.File) func(string) string {
	width := 80
	if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 20 {
		width = w
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-4))
	if err != nil {
		return plainRenderer
	}
	return func(s string) string {
		rendered, err := r.Render(s)
		if err != nil {
			return plainRenderer(s)
		}
		return rendered
	}
}

func chatLoop(ctx context.Context, engine *scenario.Engine, in io.Reader, out io.Writer, render func(string) string) error {
	fmt.Fprintf(out, "scenario started at %q. %s\n", engine.Session().CurrentState, chatHelp)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			engine.Reset()
			fmt.Fprintf(out, "reset to %q\n", engine.Session().CurrentState)
			continue
		case "/state":
			sess := engine.Session()
			keywords := "-"
			if cfg, ok := engine.CurrentStateConfig(); ok && len(cfg.Keywords()) > 0 {
				keywords = strings.Join(cfg.Keywords(), ", ")
			}
			fmt.Fprintf(out, "state %q, history %d, keywords: %s\n", sess.CurrentState, len(sess.History), keywords)
			continue
		}

		from := engine.Session().CurrentState
		res := engine.ProcessUserInput(ctx, line, "")
		fmt.Fprint(out, render(res.Response))
		switch {
		case res.Error != "":
			fmt.Fprintf(out, "[%s -> %s: %s]\n", from, res.NextState, res.Error)
		case res.IsFinished:
			fmt.Fprintf(out, "[%s: finished, /reset to start over]\n", res.NextState)
		default:
			fmt.Fprintf(out, "[%s -> %s]\n", from, res.NextState)
		}
	}
}
