package tf

import "strings"

// helpSections groups commands for the #help overview. Stubbed commands
// are listed separately so users can see what is still missing.
var helpSections = []struct {
	Title string
	Names []string
}{
	{"Variables", []string{"set", "let", "unset", "setenv"}},
	{"Output", []string{"echo", "send", "substitute"}},
	{"Worlds", []string{"world", "listworlds", "connect", "connections", "dc", "quit"}},
	{"Expressions", []string{"expr", "eval", "test"}},
	{"Information", []string{"help", "version"}},
}

var notImplemented = []string{
	"def", "undef", "undefn", "undeft", "list", "purge",
	"if", "elseif", "else", "endif", "while", "done", "for", "break",
	"hook", "unhook", "bind", "unbind",
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString(VersionString())
	sb.WriteString("\nCommands start with '#'. Variables are referenced as %name or $name.\n")
	for _, sec := range helpSections {
		sb.WriteString("\n")
		sb.WriteString(sec.Title)
		sb.WriteString(":\n")
		for _, n := range sec.Names {
			if cmd, ok := commands[n]; ok {
				sb.WriteString("  ")
				sb.WriteString(cmd.Help)
				sb.WriteString("\n")
			}
		}
	}
	sb.WriteString("\nNot yet implemented: #")
	sb.WriteString(strings.Join(notImplemented, " #"))
	sb.WriteString("\nType #help <command> for details.")
	return sb.String()
}
