package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/locbench/locbench/internal/config"
)

const defaultSystemPrompt = `You are a code localization tool. Given a natural-language query and a repository file listing, identify the files and line ranges the query refers to. Respond with JSON only, no prose:
{"files": {"path/to/file.py": [[start_line, end_line]]}, "explanation": "..."}`

// maxListingFiles bounds the repo listing included in the prompt so a
// large repository does not blow the model's context window.
const maxListingFiles = 2000

// OpenAIHarness talks to a search agent exposed over an
// OpenAI-compatible chat completions API. BaseURL may point at any
// compatible gateway; the API key is read from the configured
// environment variable at construction time.
type OpenAIHarness struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

func NewOpenAIHarness(cfg config.Harness, log zerolog.Logger) (*OpenAIHarness, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(keyEnv)
	if key == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("harness API key: environment variable %s is empty", keyEnv)
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIHarness{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		log:    log,
	}, nil
}

func (h *OpenAIHarness) Invoke(ctx context.Context, req *Request) (*Response, error) {
	system := defaultSystemPrompt
	if req.PromptFile != "" {
		data, err := os.ReadFile(req.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("reading prompt file: %w", err)
		}
		system = string(data)
	}

	listing, err := repoListing(req.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("listing repository: %w", err)
	}
	user := fmt.Sprintf("Query: %s\n\nRepository files:\n%s", req.Query, listing)

	resp, err := h.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       h.model,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	content := stripFences(resp.Choices[0].Message.Content)
	var out Response
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decoding model response: %w: %s", err, truncate(content, 200))
	}
	out.TurnsUsed = 1
	return &out, nil
}

// repoListing returns repo-relative paths, one per line, skipping .git
// and capping at maxListingFiles entries.
func repoListing(root string) (string, error) {
	var b strings.Builder
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if count >= maxListingFiles {
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		b.WriteString(filepath.ToSlash(rel))
		b.WriteByte('\n')
		count++
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// stripFences unwraps a markdown code fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
