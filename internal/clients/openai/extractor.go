package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amedina/team-assistant-v1-sub000/internal/processor"
)

const extractionSystemPrompt = `You extract named entities and relationships from text.
Respond with a JSON object of the shape:
{"entities":[{"name":"...","label":"person|organization|project|technology|location|event|document|concept"}],
 "relationships":[{"from":"...","to":"...","type":"...","confidence":0.0}]}
Only include entities actually mentioned in the text.`

// EntityExtractor adapts the chat model into the processor's Extractor
// interface. Labels outside the closed enumeration are normalized by the
// processor, never stored raw.
type EntityExtractor struct {
	client Client
}

func NewEntityExtractor(client Client) *EntityExtractor {
	return &EntityExtractor{client: client}
}

func (e *EntityExtractor) Extract(ctx context.Context, text string) (processor.Extraction, error) {
	raw, err := e.client.GenerateJSON(ctx, extractionSystemPrompt, text)
	if err != nil {
		return processor.Extraction{}, fmt.Errorf("openai: extraction call: %w", err)
	}

	// Round-trip through JSON to map the loose response onto typed fields.
	buf, err := json.Marshal(raw)
	if err != nil {
		return processor.Extraction{}, fmt.Errorf("openai: re-encode extraction: %w", err)
	}
	var out processor.Extraction
	if err := json.Unmarshal(buf, &out); err != nil {
		return processor.Extraction{}, fmt.Errorf("openai: decode extraction: %w", err)
	}
	return out, nil
}
