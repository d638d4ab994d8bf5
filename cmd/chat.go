package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/smallnest/atlaschat/internal/agent"
)

var (
	chatServerURL string
	chatSession   string
)

var (
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	toolStyle     = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("6"))
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	errStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	thinkingStyle = lipgloss.NewStyle().Faint(true)
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat against a running backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatServerURL, "server", "http://localhost:8000", "backend base URL")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session ID for server-side history (created if empty)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(out io.Writer) error {
	client := &http.Client{Timeout: 10 * time.Minute}

	if chatSession == "" {
		id, err := createSession(client)
		if err != nil {
			// Backend may run without a store; fall back to stateless chat.
			fmt.Fprintln(out, thinkingStyle.Render("(no server-side sessions: "+err.Error()+")"))
		} else {
			chatSession = id
		}
	}
	if chatSession != "" {
		fmt.Fprintln(out, thinkingStyle.Render("session "+chatSession))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		if err := streamOnce(client, out, input); err != nil {
			fmt.Fprintln(out, errStyle.Render("error: "+err.Error()))
		}
	}
}

func createSession(client *http.Client) (string, error) {
	resp, err := client.Post(chatServerURL+"/sessions", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	var body struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Session, nil
}

// streamOnce sends one request and renders the NDJSON event stream.
func streamOnce(client *http.Client, out io.Writer, input string) error {
	payload, err := json.Marshal(map[string]any{
		"input":   input,
		"session": chatSession,
	})
	if err != nil {
		return err
	}

	resp, err := client.Post(chatServerURL+"/mcp", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev agent.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("bad event line: %w", err)
		}
		renderEvent(out, ev)
	}
	return sc.Err()
}

func renderEvent(out io.Writer, ev agent.Event) {
	switch ev.Type {
	case agent.EventToolCall:
		args, _ := json.Marshal(ev.Args)
		fmt.Fprintln(out, toolStyle.Render(fmt.Sprintf("  ⚙ %s %s", ev.Name, args)))
	case agent.EventFinal:
		fmt.Fprintln(out, answerStyle.Render(ev.Output))
	case agent.EventError:
		fmt.Fprintln(out, errStyle.Render("agent error: "+ev.Error))
	}
}
