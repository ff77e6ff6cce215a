package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "valid toml",
			file:    "c.toml",
			content: "version = 1\n[capture]\ndir = \"/x\"\nsync = true\n",
		},
		{
			name:    "valid yaml",
			file:    "c.yaml",
			content: "logging:\n  level: warn\n  max_backups: 0\n",
		},
		{
			name:    "unknown key",
			file:    "c.toml",
			content: "[capture]\nstealth = true\n",
			wantErr: "schema validation",
		},
		{
			name:    "bad level",
			file:    "c.json",
			content: `{"logging": {"level": "trace"}}`,
			wantErr: "schema validation",
		},
		{
			name:    "wrong type",
			file:    "c.yaml",
			content: "capture:\n  sync: \"yes\"\n",
			wantErr: "schema validation",
		},
		{
			name:    "future version",
			file:    "c.toml",
			content: "version = 2\n",
			wantErr: "schema validation",
		},
		{
			name:    "unparseable",
			file:    "c.json",
			content: "{",
			wantErr: "decode JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			err := ValidateSchema(path)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSchemaJSONIsCopy(t *testing.T) {
	a := SchemaJSON()
	a[0] = 'x'
	if SchemaJSON()[0] == 'x' {
		t.Error("SchemaJSON exposes the embedded bytes")
	}
}
