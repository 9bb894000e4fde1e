// Package score ranks cached posting text with a local LLM served by
// Ollama and persists the verdicts.
package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wfekih/jobradar/internal/jobs"
)

// Input is one posting handed to the scorer. PageText is the cached
// extracted text, not raw HTML.
type Input struct {
	Title    string
	Company  string
	Location string
	URL      string
	PageText string
}

// Verdict is a normalized scoring result: score clamped to [0,100],
// decision always one of yes/maybe/no, at most one reason line.
type Verdict struct {
	Track    string
	Score    float64
	Decision jobs.Decision
	Reasons  []string
	Model    string
}

// Scorer produces a verdict for one posting. Model names the model verdicts
// are produced with; stored verdicts from another model count as stale.
type Scorer interface {
	Score(ctx context.Context, in Input) (Verdict, error)
	Model() string
}

// OllamaConfig configures the local Ollama endpoint.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Retries int
}

// OllamaScorer calls Ollama's generate API with format=json and parses the
// strict-JSON verdict out of the response.
type OllamaScorer struct {
	cfg    OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaScorer builds a scorer against a running Ollama instance.
func NewOllamaScorer(cfg OllamaConfig, logger *zap.Logger) *OllamaScorer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b-instruct"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaScorer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Model reports the configured model name.
func (s *OllamaScorer) Model() string { return s.cfg.Model }

// snippetChars caps the page text included in the prompt; job pages can be
// long and the model does not need the footer.
const snippetChars = 4000

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Score sends one posting to the model. Transient request failures are
// retried per config; parse failures are not, the model already had its
// chance at strict JSON.
func (s *OllamaScorer) Score(ctx context.Context, in Input) (Verdict, error) {
	payload := generateRequest{
		Model:   s.cfg.Model,
		Prompt:  buildPrompt(in),
		Stream:  false,
		Format:  "json",
		Options: generateOptions{Temperature: 0.2},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal generate request: %w", err)
	}

	var resp generateResponse
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		resp, lastErr = s.generate(ctx, body)
		if lastErr == nil {
			break
		}
		s.logger.Warn("ollama generate failed",
			zap.String("url", in.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return Verdict{}, lastErr
	}

	verdict, err := parseVerdict(resp.Response)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse verdict for %s: %w", in.URL, err)
	}
	verdict.Model = resp.Model
	if verdict.Model == "" {
		verdict.Model = s.cfg.Model
	}
	return verdict, nil
}

func (s *OllamaScorer) generate(ctx context.Context, body []byte) (generateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("ollama request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return generateResponse{}, fmt.Errorf("ollama status %d", httpResp.StatusCode)
	}
	var out generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return generateResponse{}, fmt.Errorf("decode ollama response: %w", err)
	}
	return out, nil
}

// parseVerdict normalizes whatever JSON the model produced: score clamped
// to [0,100], unknown decisions downgraded to maybe, reasons reduced to one
// whitespace-collapsed line of at most 180 chars.
func parseVerdict(raw string) (Verdict, error) {
	obj, err := extractJSON(raw)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{
		Score:    clampScore(numberField(obj["score"])),
		Decision: normalizeDecision(stringField(obj["decision"])),
	}
	if track := stringField(obj["track"]); track != "" {
		v.Track = track
	}
	if reason := firstReason(obj["reasons"]); reason != "" {
		v.Reasons = []string{reason}
	}
	return v, nil
}

// extractJSON pulls the first JSON object out of the model response; with
// format=json this is usually the whole string, but models still wrap
// output in prose often enough to matter.
func extractJSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty LLM response")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in LLM response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode LLM JSON: %w", err)
	}
	return obj, nil
}

func numberField(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringField(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func normalizeDecision(decision string) jobs.Decision {
	switch jobs.Decision(strings.ToLower(decision)) {
	case jobs.DecisionYes:
		return jobs.DecisionYes
	case jobs.DecisionNo:
		return jobs.DecisionNo
	default:
		return jobs.DecisionMaybe
	}
}

const maxReasonChars = 180

func firstReason(v any) string {
	var candidates []string
	switch r := v.(type) {
	case string:
		candidates = []string{r}
	case []any:
		for _, item := range r {
			candidates = append(candidates, fmt.Sprint(item))
		}
	case nil:
	default:
		candidates = []string{fmt.Sprint(r)}
	}
	for _, c := range candidates {
		line := strings.Join(strings.Fields(c), " ")
		if line == "" {
			continue
		}
		return capBytes(line, maxReasonChars)
	}
	return ""
}

// capBytes caps s at max bytes, backing up to a rune boundary so accented
// text never ends in a partial sequence.
func capBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func buildPrompt(in Input) string {
	snippet := capBytes(in.PageText, snippetChars)
	return strings.TrimSpace(fmt.Sprintf(promptTemplate, in.Title, in.Company, in.Location, in.URL, snippet))
}

const promptTemplate = `
You are a strict job screening and ranking assistant.

Candidate profile (the person we are scoring for):
- Education: Master's degree in Artificial Intelligence.
- Target pivots: wants to pivot into higher-value B2B sales while leveraging technical background.
- Also relevant: software/data/AI engineering roles.
- Strong interests/keywords (tech track): React, Next.js, TypeScript, Node.js, APIs, PostgreSQL, Prisma, Supabase, Docker/DevOps basics; AI/ML/Computer Vision/RAG/LLMs.
- Languages: English + French job posts. Handle both.

We have TWO separate tracks. You must pick ONE:
1) track="sales": high-quality B2B roles where the AI/tech background is an advantage.
   Target roles: Sales Engineer, Solutions Engineer, Pre-sales, Solution Consultant, Technical Account Manager, Enterprise/SMB Account Executive (B2B SaaS), Business Development in B2B tech.
   Non-target sales (usually reject): call center / centre d'appel, téléconseiller, télévente, téléopérateur, customer support disguised as sales, retail counter sales.

2) track="tech": hands-on software/data/AI roles.
   Target roles: Frontend/Fullstack/Backend Engineer, Data Analyst/BI/Analytics Engineer, Data Engineer, ML Engineer/Applied AI/Computer Vision.

Hard rules:
- Do NOT penalize track="sales" for missing a coding/tech stack.
- Do NOT reward track="tech" for generic business/sales language.
- Treat call-center style roles as a strong negative for track="sales". Only consider them if the posting is clearly B2B SaaS with real prospecting/pipeline ownership and a credible path to AE/SE.
- Prefer roles that are not purely senior leadership unless responsibilities are clearly hands-on.
- Return ONE short reason line only.

Output format: return ONLY strict JSON (no markdown, no extra text) with keys:
- track: "sales" | "tech"
- score: number 0-100
- decision: "yes" | "maybe" | "no"
- reasons: array with exactly 1 short sentence (max ~160 chars)

Scoring guidelines (calibrate to be useful):
- decision="yes" (score >= 75): strong fit for the candidate's goals.
- decision="maybe" (score 50-74): potentially useful but needs human review.
- decision="no" (score < 50): low-value, off-target, or dead-end.

How to score track="sales" (0-100):
+ Strong positives:
  - Explicit Sales Engineer / Solutions Engineer / Pre-sales / TAM / Solution Consultant.
  - B2B SaaS / technical product / enterprise customers.
  - Responsibilities include discovery, demos, solution design, stakeholder management, pipeline/forecast, closing.
  - Commission/OTE structure, quota-carrying clarity, or strong enablement.
+ Negatives:
  - Call-center language (scripts, inbound customer service, telemarketing, high-volume calls).
  - Pure administrative sales ops ("administration des ventes" / order processing) unless it clearly leads toward AM/AE.
  - B2C retail.

How to score track="tech" (0-100):
+ Positives:
  - JS/TS + React/Next.js + Node/APIs.
  - PostgreSQL/Prisma/Supabase.
  - Docker/DevOps.
  - AI/ML/CV/RAG/LLMs with real responsibilities.
+ Negatives:
  - Trades/industrial maintenance/civil engineering/healthcare/etc.
  - Pure IT support without engineering.

Title: %s
Company: %s
Location: %s
URL: %s

Job page text (may be long; focus on responsibilities and role type):
%s
`
