package contextengine

import (
	"math"
	"os"
	"strings"
	"unicode"

	"github.com/urands/bridge/pkg/protocol"
)

// EstimateTokens approximates a token count from word count, matching the
// 1.3-tokens-per-word rule of thumb spec.md uses in place of a real
// tokenizer dependency.
func EstimateTokens(content string) int {
	words := len(strings.Fields(content))
	return int(math.Ceil(float64(words) * 1.3))
}

// TruncateToBudget drops whole lines from the tail of content until its
// estimated token count fits within budget; if the one remaining line is
// still over budget, whole words are then dropped from its tail.
func TruncateToBudget(content string, budget int) string {
	if EstimateTokens(content) <= budget {
		return content
	}
	lines := strings.Split(content, "\n")
	for len(lines) > 1 {
		lines = lines[:len(lines)-1]
		if EstimateTokens(strings.Join(lines, "\n")) <= budget {
			break
		}
	}
	out := strings.Join(lines, "\n")
	for EstimateTokens(out) > budget {
		trimmed := strings.TrimRightFunc(out, unicode.IsSpace)
		i := strings.LastIndexFunc(trimmed, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		out = trimmed[:i]
	}
	return out
}

// AssembleChunks ranks files against query and greedily packs whole files
// into the token budget, truncating and stopping at the first file that
// would overflow it.
func AssembleChunks(files []fileEntry, query string, budget int) ([]protocol.FileChunk, error) {
	ranked := rankFiles(files, query)
	var chunks []protocol.FileChunk
	remaining := budget

	for _, f := range ranked {
		if remaining <= 0 {
			break
		}
		raw, err := os.ReadFile(f.AbsPath)
		if err != nil {
			continue
		}
		content := string(raw)
		tokens := EstimateTokens(content)

		if tokens <= remaining {
			chunks = append(chunks, protocol.FileChunk{
				Path:     f.RelPath,
				Content:  content,
				Language: languageFor(f.RelPath),
			})
			remaining -= tokens
			continue
		}

		truncated := TruncateToBudget(content, remaining)
		if strings.TrimSpace(truncated) != "" {
			chunks = append(chunks, protocol.FileChunk{
				Path:      f.RelPath,
				Content:   truncated,
				StartLine: 1,
				EndLine:   len(strings.Split(truncated, "\n")),
				Language:  languageFor(f.RelPath),
			})
		}
		break
	}

	return chunks, nil
}

var extLanguages = map[string]string{
	".go": "go", ".ts": "typescript", ".tsx": "typescript", ".js": "javascript",
	".jsx": "javascript", ".py": "python", ".rs": "rust", ".java": "java",
	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".md": "markdown",
}

func languageFor(relPath string) string {
	i := strings.LastIndexByte(relPath, '.')
	if i < 0 {
		return ""
	}
	return extLanguages[relPath[i:]]
}
