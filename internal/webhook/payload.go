package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"herald/internal/constants"
	"herald/internal/envelope"
)

type Payload struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a single rich-message block.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

func BuildPayload(ev envelope.NotificationEvent, color int) Payload {
	return Payload{
		Embeds: []Embed{{
			Title:       fmt.Sprintf(constants.EmbedTitleFormat, ev.SenderName(), ev.SenderEmail()),
			Description: ev.Body(),
			Color:       color,
			Timestamp:   ev.OccurredAt().UTC().Format(constants.EmbedTimeLayout),
		}},
	}
}

// Encode renders p without HTML escaping so user text reaches the endpoint
// verbatim.
func (p Payload) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
