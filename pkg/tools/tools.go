// Package tools holds the tool specifications used for schema-constrained
// replies, the prompts that go with them, and typed views of their output.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/converse/pkg/llm"
)

const (
	CourseToolName = "javascript_course_generator"
	DriverToolName = "race_driver_info"
)

const (
	// DefaultPrompt is used by single-turn routes when the caller gives none.
	DefaultPrompt = "Tell me about Max Verstappen."

	// StreamPrompt asks for a longer answer so streaming is visible.
	StreamPrompt = "Tell me about Max Verstappen, Red Bull Racing and his career over the years."

	CoursePrompt = "Generate a structured JavaScript course.\n" +
		"The course should have a title and a list of chapters.\n" +
		"Each chapter should include a title and a short description.\n\n" +
		"Only return structured JSON using the provided schema and return chapters " +
		"as an array of JSON objects, not a stringified JSON."

	DriverName = "Max Verstappen"
)

// FollowUpPrompts are the scripted turns of the multi-turn demo.
var FollowUpPrompts = []string{
	DefaultPrompt,
	"What team does he drive for?",
}

// DriverPrompt asks for structured facts about one driver.
func DriverPrompt(name string) string {
	return "Extract structured information about the following Formula 1 driver.\n" +
		"Only return structured JSON using the provided schema.\n\n" +
		"Driver: " + name
}

// Course generates a JavaScript course outline.
func Course() llm.Tool {
	return llm.Tool{
		Name:        CourseToolName,
		Description: "Generates a structured JavaScript course with multiple chapters",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"courseTitle": map[string]any{
					"type":        "string",
					"description": "The title of the course",
				},
				"chapters": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title":       map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
						},
						"required": []any{"title", "description"},
					},
				},
			},
			"required": []any{"courseTitle", "chapters"},
		},
	}
}

// Driver returns facts about a Formula 1 driver.
func Driver() llm.Tool {
	return llm.Tool{
		Name:        DriverToolName,
		Description: "Returns information about a Formula 1 driver in structured format",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"about":            map[string]any{"type": "string"},
				"name":             map[string]any{"type": "string"},
				"birthDate":        map[string]any{"type": "string"},
				"nationality":      map[string]any{"type": "string"},
				"team":             map[string]any{"type": "string"},
				"championshipsWon": map[string]any{"type": "integer"},
			},
			"required": []any{"name", "birthDate", "nationality", "team", "championshipsWon"},
		},
	}
}

// CourseOutline is the typed output of the course tool.
type CourseOutline struct {
	CourseTitle string    `json:"courseTitle"`
	Chapters    []Chapter `json:"chapters"`
}

type Chapter struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DriverInfo is the typed output of the driver tool.
type DriverInfo struct {
	About            string `json:"about,omitempty"`
	Name             string `json:"name"`
	BirthDate        string `json:"birthDate"`
	Nationality      string `json:"nationality"`
	Team             string `json:"team"`
	ChampionshipsWon int    `json:"championshipsWon"`
}

// Decode converts a tool input map into a typed value by round-tripping it
// through JSON.
func Decode[T any](input map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(input)
	if err != nil {
		return out, fmt.Errorf("encoding tool input: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding tool input: %w", err)
	}
	return out, nil
}

// CourseRequest builds the request for the course tool.
func CourseRequest(base *llm.ChatRequest) *llm.ChatRequest {
	return withTool(base, Course(), CoursePrompt)
}

// DriverRequest builds the request for the driver tool.
func DriverRequest(base *llm.ChatRequest, name string) *llm.ChatRequest {
	return withTool(base, Driver(), DriverPrompt(name))
}

func withTool(base *llm.ChatRequest, tool llm.Tool, prompt string) *llm.ChatRequest {
	req := base.Clone()
	req.Messages = append(req.Messages, llm.NewTextMessage(llm.RoleUser, prompt))
	req.Tools = []llm.Tool{tool}
	req.ToolChoice = llm.ToolChoiceAuto
	return req
}
