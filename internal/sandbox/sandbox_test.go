package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_FileLifecycle(t *testing.T) {
	ctx := context.Background()
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	files, err := sb.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, sb.WriteFile(ctx, "data.csv", []byte("a,b\n1,2\n")))
	require.NoError(t, sb.WriteFile(ctx, "chart.png", []byte{0x89, 0x50}))

	files, err = sb.ListFiles(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data.csv", "chart.png"}, files)

	data, found, err := sb.ReadFile(ctx, "data.csv")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, found, err = sb.ReadFile(ctx, "nope.txt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocal_ExecuteRunsInWorkspace(t *testing.T) {
	ctx := context.Background()
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sb.WriteFile(ctx, "hello.txt", []byte("hi")))

	out, err := sb.Execute(ctx, "cat hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	// Failed commands still surface their output alongside the error.
	out, err = sb.Execute(ctx, "cat does-not-exist.txt")
	assert.Error(t, err)
	assert.Contains(t, out, "does-not-exist.txt")
}

func TestLocal_PathConfinement(t *testing.T) {
	ctx := context.Background()
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, sb.WriteFile(ctx, "../escape.txt", []byte("x")))
	assert.Error(t, sb.WriteFile(ctx, "/etc/owned", []byte("x")))
	assert.Error(t, sb.WriteFile(ctx, "  ", []byte("x")))
	_, _, err = sb.ReadFile(ctx, "../../secret")
	assert.Error(t, err)
}

func TestLocal_CleanupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, sb.WriteFile(ctx, "f.txt", []byte("x")))

	require.NoError(t, sb.Cleanup(ctx))
	require.NoError(t, sb.Cleanup(ctx))

	// Every operation after release fails.
	_, err = sb.ListFiles(ctx)
	assert.Error(t, err)
	err = sb.WriteFile(ctx, "g.txt", []byte("y"))
	assert.Error(t, err)
	_, err = sb.Execute(ctx, "true")
	assert.Error(t, err)
}

func TestNewLocal_RejectsEmptyDir(t *testing.T) {
	_, err := NewLocal("  ")
	assert.Error(t, err)
}
