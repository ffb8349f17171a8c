// Package chatcmder provides the chat command for interactive LLM chat with
// remem memory enabled.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/api"
	"github.com/papercomputeco/remem/pkg/cliui"
	"github.com/papercomputeco/remem/pkg/config"
	"github.com/papercomputeco/remem/pkg/credentials"
	"github.com/papercomputeco/remem/pkg/dotdir"
	"github.com/papercomputeco/remem/pkg/llm"
	"github.com/papercomputeco/remem/pkg/logger"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	apiTarget string
	userID    string
	debug     bool

	llmCfg llm.CallerConfig

	client *http.Client
	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session with memory enabled.

Each turn, the chat command asks the remem server which memories to surface,
prepends them to the prompt, sends the prompt to the configured LLM, and
reports the model's citations back so the reranker can learn. The exchange
is recorded into your message buffer; ending the session (/end or exit)
triggers reflection, which distills the conversation into long-term memories.

The session persists across invocations via .remem/session.json until ended.

Examples:
  remem chat --user alice
  remem chat --user alice --api-target http://localhost:8081`

const chatShortDesc string = "Interactive LLM chat with memory enabled"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}

			apiKey := cfg.LLM.APIKey
			if apiKey == "" && os.Getenv(credentials.EnvVarForProvider(cfg.LLM.Provider)) == "" {
				apiKey = credentials.StoredKey(cfg.LLM.Provider, configDir)
			}
			cmder.llmCfg = llm.CallerConfig{
				Provider: cfg.LLM.Provider,
				Model:    cfg.LLM.Model,
				APIKey:   apiKey,
				BaseURL:  cfg.LLM.Target,
			}
			if model, _ := cmd.Flags().GetString("model"); model != "" {
				cmder.llmCfg.Model = model
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Remem API server URL")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "default", "User id for memory isolation")
	cmd.Flags().StringP("model", "m", "", "Override the configured LLM model")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	c.client = &http.Client{Timeout: 30 * time.Second}

	llmCall, err := llm.NewCaller(c.llmCfg)
	if err != nil {
		return fmt.Errorf("creating llm caller: %w", err)
	}

	// Resume or start a session
	dotdirManager := dotdir.NewManager()
	state, err := dotdirManager.LoadSessionState("")
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	fmt.Println()
	if state != nil && state.UserID == c.userID {
		fmt.Printf("  %s Resuming session %s\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(state.SessionID),
		)
	} else {
		state = &dotdir.SessionState{
			UserID:    c.userID,
			SessionID: uuid.NewString(),
			StartedAt: time.Now().UTC(),
		}
		if err := dotdirManager.SaveSession(state, ""); err != nil {
			return fmt.Errorf("saving session state: %w", err)
		}
		fmt.Printf("  %s New session\n", cliui.DimStyle.Render("●"))
	}

	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.llmCfg.Model),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /end to finish the session, Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/end" || input == "/exit" {
			break
		}

		c.post("/turn/start", nil)

		block := c.retrieve(input)

		prompt := input
		if block != "" {
			prompt = block + "\n" + input
		}

		fmt.Print(assistantPrompt)
		answer, err := llmCall(ctx, prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\r  %s %v\n", cliui.FailMark, err)
			continue
		}
		fmt.Println(answer)
		fmt.Println()

		c.post("/feedback", api.FeedbackRequest{Answer: answer})
		c.post("/messages", api.MessagesRequest{
			HumanMessage:     input,
			AssistantMessage: answer,
		})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	// End the session so reflection distills it into memories.
	fmt.Println()
	err = cliui.Step(os.Stdout, "Reflecting on this session", func() error {
		c.post("/session/end", api.SessionEndRequest{SessionID: state.SessionID})
		return nil
	})
	if err != nil {
		return err
	}

	if err := dotdirManager.ClearSession(""); err != nil {
		c.logger.Warn("clearing session state", zap.Error(err))
	}

	fmt.Println()
	return nil
}

// retrieve asks the server for this turn's memory block. Failures degrade to
// chatting without memories.
func (c *chatCommander) retrieve(query string) string {
	body, err := json.Marshal(api.RetrieveRequest{Query: query})
	if err != nil {
		return ""
	}

	url := fmt.Sprintf("%s/users/%s/retrieve", c.apiTarget, c.userID)
	resp, err := c.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		c.logger.Debug("retrieve request failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Debug("retrieve returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return ""
	}

	var parsed api.RetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Debug("decoding retrieve response", zap.Error(err))
		return ""
	}

	if c.debug && len(parsed.Memories) > 0 {
		fmt.Printf("  %s\n", cliui.DimStyle.Render(fmt.Sprintf("(%d memories surfaced)", len(parsed.Memories))))
	}

	return parsed.MemoryBlock
}

// post fires a lifecycle request at the server. Errors are logged, never
// surfaced; the chat continues without the memory layer.
func (c *chatCommander) post(path string, payload any) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			c.logger.Debug("marshaling request", zap.String("path", path), zap.Error(err))
			return
		}
	}

	url := fmt.Sprintf("%s/users/%s%s", c.apiTarget, c.userID, path)
	resp, err := c.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		c.logger.Debug("lifecycle request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}
