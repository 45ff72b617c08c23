package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/phrazzld/aves-annotator/internal/platform/logger"
	"github.com/phrazzld/aves-annotator/internal/vision"
	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models used by Client.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Client implements vision.Client using the Gemini API.
type Client struct {
	logger    *slog.Logger
	models    contentGenerator
	model     string
	timeout   time.Duration
	genConfig *genai.GenerateContentConfig
	readFile  func(name string) ([]byte, error)
}

var _ vision.Client = (*Client)(nil)

// New creates a Client from the llm configuration section.
func New(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newClient(client.Models, cfg, log)
}

func newClient(models contentGenerator, cfg config.LLMConfig, log *slog.Logger) (*Client, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		logger:  log.With(slog.String("component", "gemini_client")),
		models:  models,
		model:   cfg.ModelName,
		timeout: cfg.RequestTimeout,
		genConfig: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr(cfg.Temperature),
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema(),
		},
		readFile: os.ReadFile,
	}, nil
}

// Annotate implements vision.Client.
func (c *Client) Annotate(ctx context.Context, req vision.Request) (*vision.Response, error) {
	log := logger.FromContextOrDefault(ctx, c.logger).With(
		slog.String("image_id", req.ImageID),
		slog.String("model", c.model))

	imagePart, err := c.imagePart(req.ImageURI)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			imagePart,
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(callCtx, c.model, contents, c.genConfig)
	if err != nil {
		classified := classifyError(ctx, err)
		log.Warn("gemini call failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, classified
	}

	parsed, err := parseGenerateResponse(resp)
	if err != nil {
		log.Warn("unusable gemini response", slog.String("error", err.Error()))
		return nil, err
	}

	log.Debug("gemini call succeeded",
		slog.Int("annotations", len(parsed.Annotations)),
		slog.Duration("duration", time.Since(start)))
	return parsed, nil
}

func parseGenerateResponse(resp *genai.GenerateContentResponse) (*vision.Response, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", vision.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", vision.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", vision.ErrInvalidResponse)
	}

	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		return nil, fmt.Errorf("%w: blocked by safety filters", vision.ErrContentBlocked)
	}
	if resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", vision.ErrInvalidResponse)
	}

	return vision.ParseResponse(resp.Text())
}

// imagePart references remote images by URI and inlines local files.
func (c *Client) imagePart(uri string) (*genai.Part, error) {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(uri)))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "gs://"):
		return genai.NewPartFromURI(uri, mimeType), nil
	default:
		data, err := c.readFile(strings.TrimPrefix(uri, "file://"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrImageUnreadable, uri, err)
		}
		return genai.NewPartFromBytes(data, mimeType), nil
	}
}

func responseSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	num := &genai.Schema{Type: genai.TypeNumber}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"annotations": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"spanishTerm": str,
						"englishTerm": str,
						"boundingBox": {
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"x": num, "y": num, "width": num, "height": num,
							},
							Required: []string{"x", "y", "width", "height"},
						},
						"type": {
							Type: genai.TypeString,
							Enum: []string{"anatomical", "behavioral", "color", "pattern"},
						},
						"confidence": num,
					},
					Required: []string{"spanishTerm", "englishTerm", "boundingBox", "type", "confidence"},
				},
			},
		},
		Required: []string{"annotations"},
	}
}
