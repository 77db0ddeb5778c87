package echo_test

import (
	"context"
	"testing"

	"plugbot/internal/plugins/echo"
	"plugbot/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEcho(t *testing.T) {
	h := testutil.NewHarness(t)
	require.NoError(t, h.Loader.LoadPlugin(context.Background(), "user/"+echo.Name))

	tests := []struct {
		text string
		want []string
	}{
		{"/echo hello world", []string{"hello world"}},
		{"/e short", []string{"short"}},
		{"/ECHO loud", []string{"loud"}},
		{"/echo@testbot mention", []string{"mention"}},
		{"/echo", nil},
		{"/echoes nope", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h.Bot.Reset()
			h.Send(testutil.Message(9, 9, tt.text))
			assert.Equal(t, tt.want, h.Bot.Messages(9))
		})
	}
}

func TestEchoCaption(t *testing.T) {
	h := testutil.NewHarness(t)
	require.NoError(t, h.Loader.LoadPlugin(context.Background(), "user/"+echo.Name))

	u := testutil.Message(9, 9, "")
	u.Caption = "/echo from a photo"
	h.Send(u)
	assert.Equal(t, []string{"from a photo"}, h.Bot.Messages(9))
}

func TestEchoInline(t *testing.T) {
	h := testutil.NewHarness(t)
	require.NoError(t, h.Loader.LoadPlugin(context.Background(), "user/"+echo.Name))

	assert.True(t, h.Send(testutil.Inline(9, "echo inline text")))

	calls := testutil.FilterCalls(h.Bot.Calls(), testutil.MethodAnswerInline)
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Results, 1)
	assert.Equal(t, "inline text", calls[0].Results[0].Text)
}
