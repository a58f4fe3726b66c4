package yaml

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateSchemaHeader_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("schema_version: 1\nfile_type: config\nsession: {}\n"), 0644)

	if err := ValidateSchemaHeader(path, FileTypeConfig); err != nil {
		t.Errorf("expected valid, got error: %v", err)
	}
}

func TestValidateSchemaHeaderFromBytes(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
		wantErr  bool
	}{
		{"config", "schema_version: 1\nfile_type: config\n", FileTypeConfig, false},
		{"status", "schema_version: 1\nfile_type: status\n", FileTypeStatus, false},
		{"any type accepted", "schema_version: 1\nfile_type: status\n", "", false},
		{"unsupported version", "schema_version: 99\nfile_type: config\n", FileTypeConfig, true},
		{"negative version", "schema_version: -1\nfile_type: config\n", FileTypeConfig, true},
		{"missing version", "file_type: config\n", FileTypeConfig, true},
		{"missing file type", "schema_version: 1\n", FileTypeConfig, true},
		{"unknown file type", "schema_version: 1\nfile_type: queue_task\n", "queue_task", true},
		{"mismatch", "schema_version: 1\nfile_type: status\n", FileTypeConfig, true},
		{"not yaml", "schema_version: [\n", FileTypeConfig, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaHeaderFromBytes([]byte(tt.content), tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
