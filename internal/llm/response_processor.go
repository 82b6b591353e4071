package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// ProcessorResult contains the result of LLM response processing
type ProcessorResult struct {
	RepairStats  JsonRepairStats `json:"repair_stats"`
	RepairedJSON string          `json:"-"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
}

var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks emitted by reasoning
// models such as deepseek-r1. An unterminated block swallows the rest.
func StripReasoning(text string) string {
	text = thinkBlockPattern.ReplaceAllString(text, "")
	if idx := strings.Index(text, "<think>"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// ProcessLLMResponse extracts a JSON document from free-form model output,
// repairs it if needed and decodes it into target.
func ProcessLLMResponse(raw string, target interface{}) (ProcessorResult, error) {
	result := ProcessorResult{}

	jsonStr := ExtractJSON(StripReasoning(raw))
	if jsonStr == "" {
		result.Error = "no JSON found in LLM response"
		return result, fmt.Errorf("no JSON found in response")
	}

	repairedJSON, repairStats, err := RepairJSON(jsonStr)
	result.RepairStats = repairStats
	result.RepairedJSON = repairedJSON

	if repairStats.WasRepaired {
		log.Debug().
			Strs("strategies", repairStats.RepairStrategies).
			Int("errors_fixed", repairStats.ErrorsFixed).
			Int("comments_lost", repairStats.CommentsLost).
			Dur("repair_time", repairStats.RepairTime).
			Msg("JSON repair applied to LLM response")
	}

	if err != nil {
		result.Error = fmt.Sprintf("JSON repair failed: %v", err)
		log.Debug().Err(err).Str("json", truncateForLog(jsonStr, 500)).Msg("JSON repair failed")
		return result, err
	}

	if err := json.Unmarshal([]byte(repairedJSON), target); err != nil {
		result.Error = fmt.Sprintf("JSON parsing failed after repair: %v", err)
		return result, err
	}

	result.Success = true
	return result, nil
}

// ExtractJSON extracts JSON content from mixed text/JSON responses
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// first fenced block that holds JSON
	if strings.Contains(raw, "```") {
		var block []string
		inBlock := false
		for _, line := range strings.Split(raw, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "```") {
				if inBlock {
					candidate := strings.TrimSpace(strings.Join(block, "\n"))
					if strings.HasPrefix(candidate, "{") || strings.HasPrefix(candidate, "[") {
						return candidate
					}
					block = block[:0]
				}
				inBlock = !inBlock
				continue
			}
			if inBlock {
				block = append(block, line)
			}
		}
	}

	startIdx := strings.IndexAny(raw, "{[")
	if startIdx == -1 {
		return ""
	}

	openChar := raw[startIdx]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	count := 0
	for i := startIdx; i < len(raw); i++ {
		switch raw[i] {
		case openChar:
			count++
		case closeChar:
			count--
			if count == 0 {
				return raw[startIdx : i+1]
			}
		}
	}

	return raw[startIdx:]
}

// truncateForLog truncates text for logging purposes
func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
