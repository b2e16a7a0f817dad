package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/mataresit-ops/internal/app"
)

func TestNewRoot_LoadsConfig(t *testing.T) {
	t.Setenv("MATARESIT_SUPABASE_URL", "https://project.example/")
	dir := t.TempDir()

	root, rt := NewRoot("tool", "test tool", nil)
	var seen string
	root.AddCommand(&cobra.Command{
		Use: "show",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seen = rt.Config().FunctionsURL()
			rt.Out.Line("ok")
			return nil
		},
	})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{
		"show",
		"--env-file", filepath.Join(dir, ".env"),
		"--config", filepath.Join(dir, "none.yaml"),
	})
	require.NoError(t, root.Execute())
	assert.Equal(t, "https://project.example/functions/v1", seen)
	assert.Equal(t, "ok\n", out.String())
}

func TestExecute_ClosesOnFailure(t *testing.T) {
	dir := t.TempDir()

	root, rt := NewRoot("tool", "test tool", nil)
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(*cobra.Command, []string) error {
			return errors.New("boom")
		},
	})
	root.SetArgs([]string{
		"fail",
		"--env-file", filepath.Join(dir, ".env"),
		"--config", filepath.Join(dir, "none.yaml"),
	})

	err := Execute(context.Background(), root, rt)
	require.EqualError(t, err, "boom")
	require.NotNil(t, rt.Env)

	_, err = rt.Env.Pool(context.Background())
	assert.ErrorIs(t, err, app.ErrClosed)
}

func TestRuntime_CloseWithoutConfig(t *testing.T) {
	rt := &Runtime{}
	assert.NotPanics(t, rt.Close)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "y\n", want: true},
		{in: " YES \n", want: true},
		{in: "yes", want: true},
		{in: "n\n", want: false},
		{in: "\n", want: false},
		{in: "", want: false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, Confirm(strings.NewReader(tt.in), &out, "Proceed?"), "input %q", tt.in)
		assert.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}
