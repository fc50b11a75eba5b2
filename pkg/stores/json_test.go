package stores

import (
	"errors"
	"testing"
)

func TestValidateStoreJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "valid document",
			data: `{"database":"storage","tables":[{"name":"t","values":[{"key":"a","value":"1"}]}]}`,
		},
		{
			name: "encrypted flag and empty table",
			data: `{"database":"storage","encrypted":true,"tables":[{"name":"t","values":[]}]}`,
		},
		{
			name:    "not json",
			data:    `{database`,
			wantErr: true,
		},
		{
			name:    "missing database",
			data:    `{"tables":[]}`,
			wantErr: true,
		},
		{
			name:    "empty database name",
			data:    `{"database":"","tables":[]}`,
			wantErr: true,
		},
		{
			name:    "empty key",
			data:    `{"database":"d","tables":[{"name":"t","values":[{"key":"","value":"1"}]}]}`,
			wantErr: true,
		},
		{
			name:    "non string value",
			data:    `{"database":"d","tables":[{"name":"t","values":[{"key":"a","value":1}]}]}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			data:    `{"database":"d","tables":[],"version":2}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStoreJSON([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJSON) {
					t.Errorf("expected ErrInvalidJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseStoreDump(t *testing.T) {
	dump, err := ParseStoreDump([]byte(`{"database":"storage","tables":[{"name":"t","values":[{"key":"a","value":"1"}]}]}`))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if dump.Database != "storage" {
		t.Errorf("expected database storage, got %s", dump.Database)
	}
	if len(dump.Tables) != 1 || dump.Tables[0].Values[0] != (KeyValue{Key: "a", Value: "1"}) {
		t.Errorf("unexpected tables: %+v", dump.Tables)
	}
}
