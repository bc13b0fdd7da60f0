// Package cli parses rehearse's argv into a command and its flags.
package cli

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

type Command string

const (
	CommandInterview     Command = "interview"
	CommandRecord        Command = "record"
	CommandStop          Command = "stop"
	CommandCancel        Command = "cancel"
	CommandRestart       Command = "restart"
	CommandStatus        Command = "status"
	CommandReport        Command = "report"
	CommandBook          Command = "book"
	CommandBookings      Command = "bookings"
	CommandUnbook        Command = "unbook"
	CommandAnalyzeResume Command = "analyze-resume"
	CommandAnalyses      Command = "analyses"
	CommandLive          Command = "live"
	CommandServe         Command = "serve"
	CommandDevices       Command = "devices"
	CommandDoctor        Command = "doctor"
	CommandVersion       Command = "version"
	CommandHelp          Command = "help"
)

// spec lists the flags a command accepts and how many positional args it takes.
type spec struct {
	values      []string
	bools       []string
	positionals int
}

var commands = map[Command]spec{
	CommandInterview: {
		values: []string{"resume", "job", "difficulty", "type"},
		bools:  []string{"voice"},
	},
	CommandRecord:   {},
	CommandStop:     {},
	CommandCancel:   {},
	CommandRestart:  {},
	CommandStatus:   {},
	CommandReport:   {values: []string{"analysis", "video"}, bools: []string{"no-color"}},
	CommandBook:     {values: []string{"name", "position", "date", "time", "duration", "notes"}},
	CommandBookings: {},
	CommandUnbook:   {positionals: 1},
	CommandAnalyzeResume: {
		values: []string{"file", "name", "role", "experience"},
	},
	CommandAnalyses: {bools: []string{"json"}},
	CommandLive:     {values: []string{"room", "booking", "role"}, bools: []string{"json"}},
	CommandServe:    {values: []string{"addr"}},
	CommandDevices:  {},
	CommandDoctor:   {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Flags      map[string]string
	Args       []string
}

// Flag returns a value flag, or "" when absent.
func (p Parsed) Flag(name string) string {
	return p.Flags[name]
}

// Bool reports whether a boolean flag was given.
func (p Parsed) Bool(name string) bool {
	_, ok := p.Flags[name]
	return ok
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, Flags: map[string]string{}}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			cmdSpec, ok := commands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandArgs(&parsed, cmdSpec, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandArgs(parsed *Parsed, cmdSpec spec, rest []string) error {
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "-h" || arg == "--help" {
			parsed.ShowHelp = true
			return nil
		}
		if !strings.HasPrefix(arg, "--") {
			if len(parsed.Args) >= cmdSpec.positionals {
				return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}
			parsed.Args = append(parsed.Args, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		switch {
		case slices.Contains(cmdSpec.bools, name):
			if hasValue {
				return fmt.Errorf("--%s does not take a value", name)
			}
			parsed.Flags[name] = "true"
		case slices.Contains(cmdSpec.values, name):
			if !hasValue {
				i++
				if i >= len(rest) {
					return fmt.Errorf("--%s requires a value", name)
				}
				value = rest[i]
			}
			parsed.Flags[name] = value
		default:
			return fmt.Errorf("unknown flag for %s: --%s", parsed.Command, name)
		}
	}

	if len(parsed.Args) < cmdSpec.positionals {
		return fmt.Errorf("%s requires %d argument(s)", parsed.Command, cmdSpec.positionals)
	}
	return nil
}

// CommandNames lists every command, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for cmd := range commands {
		names = append(names, string(cmd))
	}
	sort.Strings(names)
	return names
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [flags]

Interview practice:
  interview       Start an interview turn exchange
                    --resume PATH (required, .pdf)  --job PATH
                    --difficulty Easy|Medium|Hard   --type Technical|Behavioral|HR|Mixed
                    --voice  dictate answers with speech recognition
  record          Record a video answer and upload it for analysis
  stop            Stop the active recording and start analysis
  cancel          Cancel the active recording and discard it
  restart         Return a finished or failed recording to idle
  status          Print the active recording state
  report          Fetch and print an analysis report
                    --analysis URL (required)  --video URL  --no-color

Scheduling and resumes:
  book            Schedule a practice interview
                    --name NAME --date YYYY-MM-DD --time HH:MM
                    --position TEXT --duration MINUTES --notes TEXT
  bookings        List scheduled interviews
  unbook ID       Delete a scheduled interview
  analyze-resume  Upload a resume for analysis
                    --file PATH (.pdf or .docx) --experience TEXT --name NAME --role ROLE
  analyses        List past resume analyses (--json for raw records)
  live            Join a live interview room
                    --room NAME | --booking ID  --role interviewer|candidate  --json
  serve           Serve the local bookings/analyses API (--addr HOST:PORT)

Tools:
  devices         List available input devices
  doctor          Run configuration and environment checks
  version         Print version information
  help            Show this help

Flags:
  --config PATH   Config file path (default: $REHEARSE_CONFIG, then
                  $XDG_CONFIG_HOME/rehearse/config.{jsonc,yaml,yml})
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
