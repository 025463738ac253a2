package console

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	history []bool
}

func (o *fakeOutput) SetOutput(on bool) error {
	o.history = append(o.history, on)
	return nil
}

func (o *fakeOutput) Output() bool {
	return len(o.history) > 0 && o.history[len(o.history)-1]
}

func TestApply(t *testing.T) {
	out := &fakeOutput{}
	c := New(strings.NewReader(""), out)

	require.NoError(t, c.Apply(`{"switch":true}`))
	require.NoError(t, c.Apply(`{"switch": false, "extra": 1}`))
	assert.Equal(t, []bool{true, false}, out.history)

	assert.Error(t, c.Apply(`{"switch":"on"}`))
	assert.ErrorIs(t, c.Apply(`{"led":true}`), errNoSwitch)
	assert.Error(t, c.Apply(`switch on`))
	assert.Len(t, out.history, 2, "malformed lines change nothing")
}

func TestRunThenDrain(t *testing.T) {
	out := &fakeOutput{}
	in := strings.NewReader("{\"switch\":true}\n\ngarbage\n{\"switch\":false}\n")
	c := New(in, out)

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, out.history, "nothing applied before drain")

	c.Drain(context.Background())
	assert.Equal(t, []bool{true, false}, out.history)

	// Empty queue returns immediately.
	c.Drain(context.Background())
	assert.Len(t, out.history, 2)
}

func TestOversizedLineIsSkipped(t *testing.T) {
	out := &fakeOutput{}
	long := strings.Repeat("x", 70000)
	in := strings.NewReader(long + "\n" + `{"switch":true}` + "\n" + strings.Repeat("y", maxLine+1))
	c := New(in, out)

	require.NoError(t, c.Run(context.Background()))
	c.Drain(context.Background())
	assert.Equal(t, []bool{true}, out.history)
}
