package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"snapgram/internal/seed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WritesGeneratedWorld(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "world.yaml")

	require.NoError(t, run([]string{"-users", "3", "-posts", "4", "-seed", "7", "-out", out}, &bytes.Buffer{}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	world, err := seed.Decode(f)
	require.NoError(t, err)

	base := seed.Default()
	assert.Len(t, world.Users, len(base.Users)+3)
	assert.Len(t, world.Posts, len(base.Posts)+4)
	assert.NoError(t, world.Validate())
}

func TestRun_Stdout(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, run(nil, &buf))

	world, err := seed.Decode(&buf)
	require.NoError(t, err)
	base := seed.Default()
	assert.Len(t, world.Users, len(base.Users))
	assert.Len(t, world.Posts, len(base.Posts))
	assert.Equal(t, base.Users[0].Username, world.Users[0].Username)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"missing base", []string{"-base", filepath.Join(dir, "missing.yaml")}},
		{"unwritable out", []string{"-out", filepath.Join(dir, "no-such-dir", "world.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(tt.args, &bytes.Buffer{}))
		})
	}
}
