package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWithoutArgsShowsHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Parsed{Command: CommandHelp, ShowHelp: true, Flags: map[string]string{}}, parsed)
}

func TestParseGlobalFlagsPrecedeCommand(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/rehearse.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/rehearse.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)

	parsed, err = Parse([]string{"--version"})
	require.NoError(t, err)
	require.Equal(t, CommandVersion, parsed.Command)
	require.False(t, parsed.ShowHelp)

	for _, flag := range []string{"-h", "--help"} {
		parsed, err = Parse([]string{flag})
		require.NoError(t, err)
		require.True(t, parsed.ShowHelp, flag)
	}
}

func TestParseInterviewFlags(t *testing.T) {
	parsed, err := Parse([]string{"interview", "--resume", "cv.pdf", "--difficulty=Hard", "--voice"})
	require.NoError(t, err)
	require.Equal(t, CommandInterview, parsed.Command)
	require.Equal(t, "cv.pdf", parsed.Flag("resume"))
	require.Equal(t, "Hard", parsed.Flag("difficulty"))
	require.Empty(t, parsed.Flag("type"))
	require.True(t, parsed.Bool("voice"))
	require.False(t, parsed.Bool("json"))
}

func TestParseValueFlagKeepsEqualsInValue(t *testing.T) {
	parsed, err := Parse([]string{"report", "--analysis=http://a.test/x?id=1&k=v"})
	require.NoError(t, err)
	require.Equal(t, "http://a.test/x?id=1&k=v", parsed.Flag("analysis"))
}

func TestParseCommandHelpStopsParsing(t *testing.T) {
	parsed, err := Parse([]string{"book", "--help", "--bogus"})
	require.NoError(t, err)
	require.Equal(t, CommandBook, parsed.Command)
	require.True(t, parsed.ShowHelp)
}

func TestParsePositionals(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/cfg", "unbook", "b-1"})
	require.NoError(t, err)
	require.Equal(t, CommandUnbook, parsed.Command)
	require.Equal(t, "/tmp/cfg", parsed.ConfigPath)
	require.Equal(t, []string{"b-1"}, parsed.Args)

	_, err = Parse([]string{"unbook"})
	require.EqualError(t, err, "unbook requires 1 argument(s)")

	_, err = Parse([]string{"unbook", "b-1", "b-2"})
	require.ErrorContains(t, err, `unexpected arguments after command "unbook"`)
}

func TestParseRejects(t *testing.T) {
	for _, tc := range []struct {
		args    []string
		wantErr string
	}{
		{[]string{"status", "--config", "/tmp/cfg"}, "unknown flag for status: --config"},
		{[]string{"--config"}, "--config requires a path"},
		{[]string{"--bogus"}, "unknown flag: --bogus"},
		{[]string{"bogus"}, "unknown command: bogus"},
		{[]string{"doctor", "extra"}, "unexpected arguments"},
		{[]string{"report", "--analysis"}, "--analysis requires a value"},
		{[]string{"report", "--no-color=yes"}, "--no-color does not take a value"},
		{[]string{"live", "--room"}, "--room requires a value"},
		{[]string{"serve", "--port", "8080"}, "unknown flag for serve: --port"},
	} {
		_, err := Parse(tc.args)
		require.ErrorContains(t, err, tc.wantErr, "%v", tc.args)
	}
}

func TestHelpTextListsEveryCommand(t *testing.T) {
	text := HelpText("rehearse")
	for _, name := range CommandNames() {
		require.Contains(t, text, "  "+name, name)
	}
	require.Contains(t, text, "--config PATH")
	require.Contains(t, text, "$REHEARSE_CONFIG")
}
