package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/soapboxlabs/soapbox/internal/suggestions"
)

func decode(t *testing.T, content suggestions.RenderedContent) message {
	t.Helper()
	var payload message
	if err := json.Unmarshal(content, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	return payload
}

func messageData(content string) suggestions.MessageData {
	return suggestions.MessageData{
		ID:        suggestions.SuggestionID(4),
		TenantID:  suggestions.TenantID("tenant-1"),
		AuthorID:  suggestions.AuthorID("author-1"),
		Content:   content,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestRenderNewEmbed(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: true, Buttons: true}

	content, err := renderer.RenderNew(settings, messageData("add dark mode"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	payload := decode(t, content)

	if len(payload.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(payload.Embeds))
	}
	if payload.Embeds[0].Description != "add dark mode" {
		t.Fatalf("unexpected description: %q", payload.Embeds[0].Description)
	}
	if payload.Embeds[0].Color != colorUnresolved {
		t.Fatalf("unexpected color: %#x", payload.Embeds[0].Color)
	}
	if !strings.Contains(payload.Embeds[0].Author.Name, "#4") {
		t.Fatalf("expected header to carry the sequence number: %q", payload.Embeds[0].Author.Name)
	}
	if payload.AllowedMentions == nil || len(payload.AllowedMentions.Parse) != 0 {
		t.Fatal("mentions must be suppressed")
	}
}

func TestRenderNewPlain(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: false, Buttons: false}

	content, err := renderer.RenderNew(settings, messageData("add dark mode"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	payload := decode(t, content)

	if len(payload.Embeds) != 0 {
		t.Fatal("plain mode must not produce embeds")
	}
	if !strings.HasSuffix(payload.Content, "\nadd dark mode") {
		t.Fatalf("unexpected content: %q", payload.Content)
	}
	if payload.Components != nil {
		t.Fatal("buttons disabled must produce no components")
	}
}

func TestRenderNewComponentLayouts(t *testing.T) {
	renderer := NewRenderer()
	tests := []struct {
		name         string
		settings     suggestions.TenantSettings
		expectedRows int
		firstRowSize int
	}{
		{
			name:         "menu layout with thread button",
			settings:     suggestions.TenantSettings{UseEmbed: true, Buttons: true},
			expectedRows: 2,
			firstRowSize: 2,
		},
		{
			name:         "compact layout folds resolutions into one row",
			settings:     suggestions.TenantSettings{UseEmbed: true, Buttons: true, Compact: true},
			expectedRows: 1,
			firstRowSize: 5,
		},
		{
			name:         "auto thread drops the thread button",
			settings:     suggestions.TenantSettings{UseEmbed: true, Buttons: true, AutoThread: true},
			expectedRows: 2,
			firstRowSize: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			content, err := renderer.RenderNew(tc.settings, messageData("text"))
			if err != nil {
				t.Fatalf("unexpected render error: %v", err)
			}
			payload := decode(t, content)
			if len(payload.Components) != tc.expectedRows {
				t.Fatalf("expected %d rows, got %d", tc.expectedRows, len(payload.Components))
			}
			if len(payload.Components[0].Components) != tc.firstRowSize {
				t.Fatalf("expected %d components in the first row, got %d", tc.firstRowSize, len(payload.Components[0].Components))
			}
		})
	}
}

func TestRenderEditPreservesResolutionState(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: true, Buttons: true}

	initial, err := renderer.RenderNew(settings, messageData("first draft"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}

	edited, err := renderer.RenderEdit(settings, initial, messageData("second draft"))
	if err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	payload := decode(t, edited)

	if payload.Embeds[0].Description != "second draft" {
		t.Fatalf("description not replaced: %q", payload.Embeds[0].Description)
	}
	if payload.Embeds[0].Color != colorUnresolved {
		t.Fatal("edit must not alter the status color")
	}
	if len(payload.Components) == 0 {
		t.Fatal("edit must preserve components")
	}
}

func TestRenderEditPlainKeepsHeaderLine(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: false}

	initial, err := renderer.RenderNew(settings, messageData("first draft"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}

	edited, err := renderer.RenderEdit(settings, initial, messageData("second draft"))
	if err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	payload := decode(t, edited)

	lines := strings.SplitN(payload.Content, "\n", 2)
	if !strings.HasPrefix(lines[0], "Suggestion #4") {
		t.Fatalf("header line lost: %q", payload.Content)
	}
	if lines[1] != "second draft" {
		t.Fatalf("content not replaced: %q", lines[1])
	}
}

func TestRenderResolutionAppendsResponse(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: true, Buttons: true}

	initial, err := renderer.RenderNew(settings, messageData("original"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}

	resolved, err := renderer.RenderResolution(settings, initial, suggestions.ResolutionData{
		ID:       suggestions.SuggestionID(4),
		Action:   suggestions.ResolveActionAccept,
		Response: "shipping next sprint",
	})
	if err != nil {
		t.Fatalf("unexpected resolution error: %v", err)
	}
	payload := decode(t, resolved)

	if payload.Embeds[0].Description != "original" {
		t.Fatal("resolution must not rewrite the submission text")
	}
	if payload.Embeds[0].Color != colorAccepted {
		t.Fatalf("unexpected color: %#x", payload.Embeds[0].Color)
	}
	if len(payload.Embeds[0].Fields) != 1 || payload.Embeds[0].Fields[0].Name != "Accepted" {
		t.Fatalf("expected an Accepted field, got %+v", payload.Embeds[0].Fields)
	}
	if payload.Embeds[0].Fields[0].Value != "shipping next sprint" {
		t.Fatalf("unexpected response value: %q", payload.Embeds[0].Fields[0].Value)
	}
}

func TestRenderResolutionDefaultsResponse(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: false}

	initial, err := renderer.RenderNew(settings, messageData("original"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}

	resolved, err := renderer.RenderResolution(settings, initial, suggestions.ResolutionData{
		ID:     suggestions.SuggestionID(4),
		Action: suggestions.ResolveActionDeny,
	})
	if err != nil {
		t.Fatalf("unexpected resolution error: %v", err)
	}
	payload := decode(t, resolved)

	if !strings.Contains(payload.Content, "Denied: "+defaultResponse) {
		t.Fatalf("expected default response, got %q", payload.Content)
	}
}

func TestRenderArchivedStripsComponents(t *testing.T) {
	renderer := NewRenderer()
	settings := suggestions.TenantSettings{UseEmbed: true, Buttons: true}

	initial, err := renderer.RenderNew(settings, messageData("original"))
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}

	archived, err := renderer.RenderArchived(initial)
	if err != nil {
		t.Fatalf("unexpected archive render error: %v", err)
	}
	payload := decode(t, archived)

	if payload.Components != nil {
		t.Fatalf("components not stripped: %+v", payload.Components)
	}
	if payload.Embeds[0].Description != "original" {
		t.Fatal("archive render must not touch the submission text")
	}
}
