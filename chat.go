package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	configx "github.com/tanpawarit/smart-zoo-assistant/pkg/config"
)

// ChatConfig holds the chat client defaults; flags override them.
type ChatConfig struct {
	AgentURL string `split_words:"true" default:"http://localhost:8080"`
	Token    string `split_words:"true"`
}

var (
	chatURL   string
	chatToken string
)

// resolveChat fills the flags left unset from ZOO_AGENT_URL and ZOO_TOKEN.
func resolveChat(cmd *cobra.Command) error {
	cfg, err := configx.New[ChatConfig]("ZOO")
	if err != nil {
		return fmt.Errorf("load chat config: %w", err)
	}
	if !cmd.Flags().Changed("url") {
		chatURL = cfg.AgentURL
	}
	if !cmd.Flags().Changed("token") {
		chatToken = cfg.Token
	}
	return nil
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send prompts to the assistant gateway, one per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := resolveChat(cmd); err != nil {
			return err
		}
		if chatToken == "" {
			return errors.New("a bearer token is required: pass --token or set ZOO_TOKEN")
		}
		client := &http.Client{Timeout: 2 * time.Minute}
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		out := cmd.OutOrStdout()

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			if interactive {
				fmt.Fprint(out, "> ")
			}
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if interactive && (line == "exit" || line == "quit") {
				return nil
			}

			reply, err := sendPrompt(cmd.Context(), client, chatURL, chatToken, line)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, reply)
		}
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "", "assistant gateway base URL (default $ZOO_AGENT_URL or http://localhost:8080)")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "bearer token of the staff member (default $ZOO_TOKEN)")
}

func sendPrompt(ctx context.Context, client *http.Client, baseURL, token, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var out struct {
		Response string `json:"response"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, out.Message)
	}
	return out.Response, nil
}
