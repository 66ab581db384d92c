package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/sheet"
)

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		path    string
		want    sheet.Format
		wantErr bool
	}{
		{name: "detected csv", path: "monzo.csv", want: sheet.FormatCSV},
		{name: "detected camt", path: "statement.XML", want: sheet.FormatCAMT},
		{name: "explicit overrides extension", flag: "camt", path: "export.txt", want: sheet.FormatCAMT},
		{name: "unknown flag", flag: "ofx", path: "a.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveFormat(tt.flag, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandFlags(t *testing.T) {
	for _, name := range []string{"source", "input", "format"} {
		assert.NotNil(t, Cmd.Flags().Lookup(name), name)
	}
}
