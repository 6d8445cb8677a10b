// ABOUTME: Tests for template variable rendering in catalog formats
// ABOUTME: Validates substitution, missing vars, conditionals, and error handling

package prompts

import (
	"testing"
)

func TestRenderVariables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		vars    map[string]string
		want    string
		wantErr bool
	}{
		{"substitutes", "👋 {{.Text}}", map[string]string{"Text": "Hello, Ana!"}, "👋 Hello, Ana!", false},
		{"missing var is empty", "Error: {{.Error}}", map[string]string{}, "Error: ", false},
		{"no vars", "plain text", nil, "plain text", false},
		{"conditional set", "{{if .Name}}Hi {{.Name}}{{end}}", map[string]string{"Name": "Bo"}, "Hi Bo", false},
		{"conditional unset", "{{if .Name}}Hi {{.Name}}{{end}}", nil, "", false},
		{"invalid", "{{.Text", map[string]string{"Text": "x"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := RenderVariables(tt.content, tt.vars)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RenderVariables() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RenderVariables() = %q; want %q", got, tt.want)
			}
		})
	}
}
