package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/logging"
)

const defaultGeminiModel = "gemini-2.5-flash"

// transcribes segments with Google Gemini
type GeminiTranscriber struct {
	client  *genai.Client
	model   string
	options Options
	logger  *logging.Logger
}

// segment from Gemini's JSON response
type transcriptSegment struct {
	Start seconds `json:"start"`
	End   seconds `json:"end"`
	Text  string  `json:"text"`
}

// seconds accepts a JSON number or a "mm:ss.fff" / "hh:mm:ss" string;
// models use both forms.
type seconds float64

func (s *seconds) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = seconds(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("timestamp must be a number or string, got %s", data)
	}
	v, err := parseClock(str)
	if err != nil {
		return err
	}
	*s = seconds(v)
	return nil
}

func parseClock(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.Replace(p, ",", ".", 1), 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

func NewGeminiTranscriber(ctx context.Context, apiKey string, opts Options) (*GeminiTranscriber, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiTranscriber{
		client:  client,
		model:   model,
		options: opts,
		logger:  logging.OrNop(opts.Logger),
	}, nil
}

func (t *GeminiTranscriber) Name() string {
	return string(ProviderGemini) + "/" + t.model
}

// TranscribeSegment uploads the chunk, asks for a timestamped JSON
// transcript and rebases it by the chunk offset.
func (t *GeminiTranscriber) TranscribeSegment(ctx context.Context, req Request) ([]caption.Caption, error) {
	if err := checkChunk(req.Chunk); err != nil {
		return nil, err
	}

	uploaded, err := t.client.Files.UploadFromPath(ctx, req.Chunk.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio chunk: %w", classifyGemini(err))
	}
	defer func() {
		// cleanup must run even when ctx was cancelled
		if _, err := t.client.Files.Delete(context.WithoutCancel(ctx), uploaded.Name, nil); err != nil {
			t.logger.Debugw("Failed to delete uploaded chunk", "file", uploaded.Name, "error", err)
		}
	}()
	req.report(30)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(t.buildTranscriptionPrompt()),
			genai.NewPartFromURI(uploaded.URI, uploaded.MIMEType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", classifyGemini(err))
	}
	req.report(90)

	captions, err := parseGeminiResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcription: %w", err)
	}
	return toTimeline(captions, req.Chunk), nil
}

// creates the prompt for transcription
func (t *GeminiTranscriber) buildTranscriptionPrompt() string {
	var sb strings.Builder

	sb.WriteString("Generate a detailed transcript of this audio. ")
	sb.WriteString("For each sentence or phrase, provide the start timestamp, end timestamp, and the exact text spoken. ")
	sb.WriteString("Format your response as a JSON array with objects containing 'start', 'end', and 'text' fields, ")
	sb.WriteString("where 'start' and 'end' are timestamps in seconds (as numbers) from the beginning of this audio. ")

	if t.options.Language != "" {
		sb.WriteString(fmt.Sprintf("The audio is in %s. ", t.options.Language))
	}
	if t.options.TranscriptLanguage != "" && t.options.TranscriptLanguage != "native" {
		sb.WriteString(fmt.Sprintf("Output the transcript in %s. ", t.options.TranscriptLanguage))
	}
	if t.options.Prompt != "" {
		sb.WriteString(t.options.Prompt)
		sb.WriteString(" ")
	}

	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")
	return sb.String()
}

func parseGeminiResponse(result *genai.GenerateContentResponse) ([]caption.Caption, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, errors.New("empty response from Gemini")
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, errors.New("no text in Gemini response")
	}

	segments, err := extractTranscriptSegments(cleanJSONResponse(sb.String()))
	if err != nil {
		return nil, err
	}

	captions := make([]caption.Caption, len(segments))
	for i, s := range segments {
		captions[i] = caption.Caption{
			Start: float64(s.Start),
			End:   float64(s.End),
			Text:  strings.TrimSpace(s.Text),
		}
	}
	return captions, nil
}

var preferredKeys = []string{"segments", "transcript", "data", "captions", "results"}

// extractTranscriptSegments finds the first JSON array of transcript
// segments in text. It tolerates prose around the JSON and arrays wrapped
// in objects, at any depth.
func extractTranscriptSegments(text string) ([]transcriptSegment, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		if segments, ok := segmentsFrom(raw, 0); ok {
			return segments, nil
		}
	}
	return nil, fmt.Errorf("no transcript segments found in response: %s", truncateString(text, 200))
}

func segmentsFrom(raw json.RawMessage, depth int) ([]transcriptSegment, bool) {
	if depth > 4 {
		return nil, false
	}

	var segments []transcriptSegment
	if err := json.Unmarshal(raw, &segments); err == nil {
		return segments, validateSegments(segments)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return keyRank(keys[i]) < keyRank(keys[j]) ||
			(keyRank(keys[i]) == keyRank(keys[j]) && keys[i] < keys[j])
	})
	for _, k := range keys {
		if segments, ok := segmentsFrom(obj[k], depth+1); ok {
			return segments, true
		}
	}
	return nil, false
}

func keyRank(key string) int {
	for i, k := range preferredKeys {
		if strings.EqualFold(k, key) {
			return i
		}
	}
	return len(preferredKeys)
}

// validateSegments rejects empty arrays and arrays of all-zero objects,
// which is what an unrelated array decodes to.
func validateSegments(segments []transcriptSegment) bool {
	for _, s := range segments {
		if s.Text != "" || s.Start != 0 || s.End != 0 {
			return true
		}
	}
	return false
}

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*")

// removes markdown formatting from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// truncates a string to maxLen bytes
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// classifyGemini marks authentication and request errors as permanent.
func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isPermanentStatus(apiErr.Code) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return err
}

func isPermanentStatus(code int) bool {
	switch code {
	case 400, 401, 403, 404:
		return true
	}
	return false
}
