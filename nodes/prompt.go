package nodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

// promptSeparator splits positive from negative text, on a line of its own.
const promptSeparator = "\n---\n"

const displayLimit = 100

// PromptResult holds the outputs of the PNGPromptExtractor node. UI is the
// text shown on the node: a debug trail followed by the extracted prompts.
type PromptResult struct {
	PromptJSON string   `json:"prompt_json"`
	Positive   string   `json:"positive_prompt"`
	Negative   string   `json:"negative_prompt"`
	UI         []string `json:"ui"`
}

// ExtractPrompt reads the generation metadata embedded in a PNG. The
// ComfyUI "prompt" chunk takes precedence over the A1111 "parameters"
// chunk. Problems are reported in UI rather than returned.
func ExtractPrompt(filepath string) PromptResult {
	var result PromptResult
	debug := []string{fmt.Sprintf("[DEBUG] filepath: '%s'", filepath)}
	log.Printf("[PNGPromptExtractor] filepath: '%s'", filepath)

	fail := func(msg string) PromptResult {
		result.UI = append(debug, msg)
		return result
	}

	if filepath == "" {
		return fail("No filepath provided")
	}
	if _, err := os.Stat(filepath); err != nil {
		debug = append(debug, "[DEBUG] Path does not exist")
		return fail("File not found")
	}
	debug = append(debug, "[DEBUG] File exists")

	if !strings.HasSuffix(strings.ToLower(filepath), ".png") {
		debug = append(debug, "[DEBUG] File does not end with .png")
		return fail("File is not a PNG")
	}

	chunks, err := readTextChunks(filepath)
	if errors.Is(err, ErrNotPNG) {
		return fail("File is not a valid PNG")
	}
	if err != nil {
		debug = append(debug, fmt.Sprintf("[DEBUG] Exception: %v", err))
		log.Printf("[PNGPromptExtractor] Exception: %v", err)
		return fail(fmt.Sprintf("Error reading file: %v", err))
	}

	info := map[string]string{}
	keys := []string{}
	for _, c := range chunks {
		if _, seen := info[c.Keyword]; !seen {
			keys = append(keys, c.Keyword)
		}
		info[c.Keyword] = c.Text
	}
	debug = append(debug, "[DEBUG] Image format: PNG", fmt.Sprintf("[DEBUG] img.info keys: %q", keys))

	var text string
	if prompt, ok := info["prompt"]; ok {
		result.PromptJSON = prompt
		debug = append(debug, fmt.Sprintf("[DEBUG] Found 'prompt' key, length: %d", len(prompt)))
		text = ComfyPromptText(prompt)
		debug = append(debug, fmt.Sprintf("[DEBUG] Extracted prompt_text length: %d", len(text)))
	} else if params, ok := info["parameters"]; ok {
		result.PromptJSON = params
		debug = append(debug, fmt.Sprintf("[DEBUG] Found 'parameters' key, length: %d", len(params)))
		text = A1111PromptText(params)
	} else {
		debug = append(debug, "[DEBUG] No 'prompt' or 'parameters' key found")
		return fail("No prompt metadata found in PNG")
	}
	result.Positive, result.Negative = SplitPrompt(text)

	display := []string{}
	if result.Positive != "" {
		display = append(display, "Positive: "+truncate(result.Positive))
	}
	if result.Negative != "" {
		display = append(display, "Negative: "+truncate(result.Negative))
	}
	if len(display) == 0 {
		display = append(display, "No prompts extracted")
	}

	result.UI = append(append(debug, "---"), display...)
	return result
}

func readTextChunks(path string) ([]TextChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPNGText(f)
}

type promptNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// ComfyPromptText collects the text of every CLIPTextEncode node of a
// ComfyUI prompt graph, in document order, joined by the prompt separator.
// Unparseable graphs yield "".
func ComfyPromptText(promptJSON string) string {
	dec := json.NewDecoder(strings.NewReader(promptJSON))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}

	texts := []string{}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return ""
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return ""
		}

		var node promptNode
		if err := json.Unmarshal(raw, &node); err != nil {
			continue
		}
		if !strings.Contains(node.ClassType, "CLIPTextEncode") {
			continue
		}
		if text, ok := node.Inputs["text"].(string); ok && text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, promptSeparator)
}

// A1111PromptText returns the prompt lines of A1111 "parameters" metadata:
// everything before the negative prompt or the generation settings.
func A1111PromptText(parameters string) string {
	lines := []string{}
	for _, line := range strings.Split(parameters, "\n") {
		if strings.HasPrefix(line, "Negative prompt:") || strings.HasPrefix(line, "Steps:") {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SplitPrompt splits text at the first separator line. Everything after it,
// further separators included, is the negative prompt.
func SplitPrompt(text string) (positive, negative string) {
	if text == "" {
		return "", ""
	}
	parts := strings.SplitN(text, promptSeparator, 2)
	positive = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		negative = strings.TrimSpace(parts[1])
	}
	return positive, negative
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= displayLimit {
		return s
	}
	return string(r[:displayLimit]) + "..."
}
