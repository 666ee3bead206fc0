package notify

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	t.Parallel()
	vars := map[string]string{"from": "10086", "content": "hello"}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{name: "plain", tmpl: "no placeholders", want: "no placeholders"},
		{name: "single", tmpl: "from {{from}}", want: "from 10086"},
		{name: "repeated", tmpl: "{{from}} {{from}}", want: "10086 10086"},
		{name: "unknown left alone", tmpl: "{{nope}}", want: "{{nope}}"},
		{name: "empty", tmpl: "", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, vars); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRenderValuesStayLiteral(t *testing.T) {
	t.Parallel()
	// SMS text is untrusted; a value that itself looks like a placeholder
	// must come through verbatim, never substituted again.
	vars := map[string]string{
		"from":      "10086",
		"content":   "{{from}}",
		"timestamp": "2025-03-01 09:05:00",
	}
	for i := 0; i < 50; i++ {
		if got := Render("{{content}}", vars); got != "{{from}}" {
			t.Fatalf("Render rewrote a substituted value: got %q, want %q", got, "{{from}}")
		}
		if got := Render("{{from}} {{content}} {{timestamp}}", vars); got != "10086 {{from}} 2025-03-01 09:05:00" {
			t.Fatalf("unexpected render: %q", got)
		}
	}

	out := RenderJSON(`{"text": "{{content}}"}`, vars)
	if out != `{"text": "{{from}}"}` {
		t.Fatalf("RenderJSON rewrote a substituted value: %q", out)
	}
}

func TestRenderJSONEscapes(t *testing.T) {
	t.Parallel()
	vars := map[string]string{
		"content": "line1\nline2 \"quoted\" \\slash",
	}
	out := RenderJSON(`{"text": "{{content}}"}`, vars)

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("rendered body is not valid JSON: %v\n%s", err, out)
	}
	if decoded.Text != vars["content"] {
		t.Fatalf("round trip = %q, want %q", decoded.Text, vars["content"])
	}
}

func TestEventVars(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 3, 1, 9, 5, 0, 0, time.Local)
	ev := Event{From: "10010", Content: "hi", At: at}

	vars := ev.Vars()
	if vars["from"] != "10010" || vars["content"] != "hi" {
		t.Fatalf("unexpected vars: %v", vars)
	}
	if vars["timestamp"] != "2025-03-01 09:05:00" {
		t.Fatalf("timestamp = %q", vars["timestamp"])
	}
}

func TestHMACSign(t *testing.T) {
	t.Parallel()
	got := hmacSign("SECabc123", "1693276800000")
	want := "ihJA/R63HHtcxi5dTs4oFMJAN2UIAK+tTkmLi/vPfa8="
	if got != want {
		t.Fatalf("hmacSign = %q, want %q", got, want)
	}
}
