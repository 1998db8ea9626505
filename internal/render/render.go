// Package render builds the opaque message payloads posted for suggestions.
// The lifecycle engine never interprets these; all embed-vs-plain and
// component branching lives here.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soapboxlabs/soapbox/internal/suggestions"
)

// Discord component and button type constants, as used on the wire.
const (
	componentTypeActionRow  = 1
	componentTypeButton     = 2
	componentTypeSelectMenu = 3

	buttonStylePrimary   = 1
	buttonStyleSecondary = 2
	buttonStyleSuccess   = 3
	buttonStyleDanger    = 4
)

// Status colors for the embed accent.
const (
	colorUnresolved = 0x99AAB5
	colorAccepted   = 0x57F287
	colorConsidered = 0xFEE75C
	colorDenied     = 0xED4245
)

const defaultResponse = "No response provided."

type message struct {
	Content         string           `json:"content,omitempty"`
	Embeds          []embed          `json:"embeds,omitempty"`
	Components      []actionRow      `json:"components,omitempty"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
}

type embed struct {
	Author      *embedAuthor `json:"author,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedAuthor struct {
	Name string `json:"name"`
}

type embedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type actionRow struct {
	Type       int         `json:"type"`
	Components []component `json:"components"`
}

type component struct {
	Type     int          `json:"type"`
	CustomID string       `json:"custom_id,omitempty"`
	Style    int          `json:"style,omitempty"`
	Label    string       `json:"label,omitempty"`
	Options  []menuOption `json:"options,omitempty"`
}

type menuOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

// Renderer implements suggestions.Renderer.
type Renderer struct{}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderNew builds the initial message for a suggestion.
func (r *Renderer) RenderNew(settings suggestions.TenantSettings, data suggestions.MessageData) (suggestions.RenderedContent, error) {
	header := fmt.Sprintf("Suggestion #%d from %s", data.ID.Int64(), data.AuthorID.String())

	var payload message
	if settings.UseEmbed {
		payload.Embeds = []embed{{
			Author:      &embedAuthor{Name: header},
			Description: data.Content,
			Color:       colorUnresolved,
		}}
	} else {
		payload.Content = header + "\n" + data.Content
	}
	payload.Components = componentRows(settings, data.ID)
	// Suggestions quote member input verbatim; suppress all mentions.
	payload.AllowedMentions = &allowedMentions{Parse: []string{}}

	return marshalMessage(payload)
}

// RenderEdit replaces the submission text while preserving the rest of the
// existing payload (color, fields, components).
func (r *Renderer) RenderEdit(settings suggestions.TenantSettings, existing suggestions.RenderedContent, data suggestions.MessageData) (suggestions.RenderedContent, error) {
	payload, err := unmarshalMessage(existing)
	if err != nil {
		return nil, err
	}

	if len(payload.Embeds) > 0 {
		payload.Embeds[0].Description = data.Content
	} else {
		header := payload.Content
		if newline := strings.IndexByte(header, '\n'); newline >= 0 {
			header = header[:newline]
		}
		payload.Content = header + "\n" + data.Content
		payload.AllowedMentions = &allowedMentions{Parse: []string{}}
	}

	return marshalMessage(payload)
}

// RenderResolution appends the moderator response and recolors the message;
// the original submission text is untouched.
func (r *Renderer) RenderResolution(settings suggestions.TenantSettings, existing suggestions.RenderedContent, data suggestions.ResolutionData) (suggestions.RenderedContent, error) {
	payload, err := unmarshalMessage(existing)
	if err != nil {
		return nil, err
	}

	response := strings.TrimSpace(data.Response)
	if response == "" {
		response = defaultResponse
	}
	label := resolutionLabel(data.Action)

	if len(payload.Embeds) > 0 {
		payload.Embeds[0].Color = resolutionColor(data.Action)
		payload.Embeds[0].Fields = append(payload.Embeds[0].Fields, embedField{Name: label, Value: response})
	} else {
		payload.Content = payload.Content + "\n\n" + label + ": " + response
	}

	return marshalMessage(payload)
}

// RenderArchived strips the interactive components from a message.
func (r *Renderer) RenderArchived(existing suggestions.RenderedContent) (suggestions.RenderedContent, error) {
	payload, err := unmarshalMessage(existing)
	if err != nil {
		return nil, err
	}
	payload.Components = nil
	return marshalMessage(payload)
}

func componentRows(settings suggestions.TenantSettings, id suggestions.SuggestionID) []actionRow {
	if !settings.Buttons {
		return nil
	}

	manage := actionRow{Type: componentTypeActionRow}
	if !settings.AutoThread {
		manage.Components = append(manage.Components, component{
			Type:     componentTypeButton,
			CustomID: customID("thread", id),
			Style:    buttonStylePrimary,
			Label:    "Create Thread",
		})
	}
	manage.Components = append(manage.Components, component{
		Type:     componentTypeButton,
		CustomID: customID("archive", id),
		Style:    buttonStyleDanger,
		Label:    "Archive",
	})

	if settings.Compact {
		manage.Components = append(manage.Components,
			component{
				Type:     componentTypeButton,
				CustomID: customID("resolve", id) + "." + suggestions.ResolveActionAccept.String(),
				Style:    buttonStyleSuccess,
				Label:    "Accept",
			},
			component{
				Type:     componentTypeButton,
				CustomID: customID("resolve", id) + "." + suggestions.ResolveActionConsider.String(),
				Style:    buttonStyleSecondary,
				Label:    "Consider",
			},
			component{
				Type:     componentTypeButton,
				CustomID: customID("resolve", id) + "." + suggestions.ResolveActionDeny.String(),
				Style:    buttonStyleDanger,
				Label:    "Deny",
			},
		)
		return []actionRow{manage}
	}

	menu := actionRow{
		Type: componentTypeActionRow,
		Components: []component{{
			Type:     componentTypeSelectMenu,
			CustomID: customID("resolve", id),
			Options: []menuOption{
				{Label: "Accept", Value: suggestions.ResolveActionAccept.String()},
				{Label: "Consider", Value: suggestions.ResolveActionConsider.String()},
				{Label: "Deny", Value: suggestions.ResolveActionDeny.String()},
			},
		}},
	}
	return []actionRow{manage, menu}
}

func customID(action string, id suggestions.SuggestionID) string {
	return fmt.Sprintf("suggestions.%s.%d", action, id.Int64())
}

func resolutionLabel(action suggestions.ResolveAction) string {
	switch action {
	case suggestions.ResolveActionAccept:
		return "Accepted"
	case suggestions.ResolveActionConsider:
		return "Considered"
	default:
		return "Denied"
	}
}

func resolutionColor(action suggestions.ResolveAction) int {
	switch action {
	case suggestions.ResolveActionAccept:
		return colorAccepted
	case suggestions.ResolveActionConsider:
		return colorConsidered
	default:
		return colorDenied
	}
}

func marshalMessage(payload message) (suggestions.RenderedContent, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("render: encode message: %w", err)
	}
	return suggestions.RenderedContent(encoded), nil
}

func unmarshalMessage(existing suggestions.RenderedContent) (message, error) {
	var payload message
	if err := json.Unmarshal(existing, &payload); err != nil {
		return message{}, fmt.Errorf("render: decode message: %w", err)
	}
	return payload, nil
}
