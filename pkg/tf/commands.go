package tf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/crystal-mush/gotinytf/pkg/logging"
)

// CommandHandler is the signature for # command implementations. name is
// the lowercased command name as typed (so aliases can tell themselves
// apart); args is everything after it, already substituted.
type CommandHandler func(e *Engine, name, args string) Result

// Command represents a registered # command.
type Command struct {
	Name    string
	Handler CommandHandler
	Help    string
}

// commands is the fixed dispatch table, keyed by lowercase name.
var commands map[string]*Command

func init() {
	commands = initCommands()
}

// initCommands registers all # commands.
func initCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(name, help string, handler CommandHandler) {
		cmds[name] = &Command{Name: name, Handler: handler, Help: help}
	}
	stub := func(phase int) CommandHandler {
		return func(_ *Engine, name, _ string) Result {
			return Errorf("#%s not yet implemented (Phase %d)", name, phase)
		}
	}
	clay := func(command string) CommandHandler {
		return func(_ *Engine, _, _ string) Result { return ClayCommand(command) }
	}

	// Variables
	register("set", "#set name=value | #set name value - set a variable", cmdSet)
	register("let", "#let name=value - set a variable, keeping numbers numeric", cmdSet)
	register("unset", "#unset name - remove a variable", cmdUnset)
	register("setenv", "#setenv name value - set a variable and export it", cmdSetenv)

	// Output
	register("echo", "#echo text - display text locally", cmdEcho)
	register("send", "#send text - send text to the server", cmdSend)
	register("substitute", "#substitute text - replace the line being displayed", cmdSubstitute)

	// Client control
	register("quit", "#quit - leave the client", clay("/quit"))
	register("exit", "#exit - leave the client", clay("/quit"))
	register("dc", "#dc - disconnect from the current world", clay("/disconnect"))
	register("disconnect", "#disconnect - disconnect from the current world", clay("/disconnect"))
	register("world", "#world [name] - switch to a world", cmdWorld)
	register("listworlds", "#listworlds - list defined worlds", clay("/worlds"))
	register("listsockets", "#listsockets - list open connections", clay("/connections"))
	register("connections", "#connections - list open connections", clay("/connections"))
	register("connect", "#connect [-lqx] <world> | <host> <port> - open a connection", cmdConnect)

	// Information
	register("help", "#help [command] - show help", cmdHelp)
	register("version", "#version - show version information", cmdVersion)

	// Expressions
	register("expr", "#expr expression - evaluate and display an expression", cmdExpr)
	register("eval", "#eval expression - evaluate and display an expression", cmdExpr)
	register("test", "#test expression - stop the body unless the expression is true", cmdTest)

	// Macro definition
	for _, n := range []string{"def", "undef", "undefn", "undeft", "list", "purge"} {
		register(n, "#"+n+" - not yet implemented", stub(4))
	}
	// Control flow
	for _, n := range []string{"if", "elseif", "else", "endif", "while", "done", "for", "break"} {
		register(n, "#"+n+" - not yet implemented", stub(3))
	}
	// Hooks and key bindings
	for _, n := range []string{"hook", "unhook", "bind", "unbind"} {
		register(n, "#"+n+" - not yet implemented", stub(5))
	}

	return cmds
}

// IsCommand reports whether input is a # command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "#")
}

// CommandNames returns all registered command names in sorted order.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute parses and dispatches a # command. The whole input is
// substituted once before it is split, so variables may expand into
// command names and arguments.
func (e *Engine) Execute(input string) Result {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "#") {
		return NotTfCommand()
	}

	input = e.vars.Substitute(input, e.locals)

	rest := strings.TrimSpace(strings.TrimPrefix(input, "#"))
	if rest == "" {
		return Error("Empty command")
	}

	// Split command and args at the first whitespace run
	var cmdName, args string
	if idx := strings.IndexFunc(rest, unicode.IsSpace); idx >= 0 {
		cmdName = rest[:idx]
		args = strings.TrimLeftFunc(rest[idx:], unicode.IsSpace)
	} else {
		cmdName = rest
	}

	lower := strings.ToLower(cmdName)
	cmd, ok := commands[lower]
	if !ok {
		return UnknownCommand(cmdName)
	}
	r := cmd.Handler(e, lower, args)
	logging.Debug("tf.commands").Str("command", lower).Str("result", r.String()).Msg("dispatched")
	return r
}

// --- Variables ---

// splitAssignment parses "name=value" or "name value". hasValue is false
// when only a name was given.
func splitAssignment(args string) (name, value string, hasValue bool) {
	eq := strings.IndexByte(args, '=')
	sp := strings.IndexFunc(args, unicode.IsSpace)
	switch {
	case eq >= 0 && (sp < 0 || eq < sp):
		return args[:eq], args[eq+1:], true
	case sp >= 0:
		return args[:sp], strings.TrimLeftFunc(args[sp:], unicode.IsSpace), true
	default:
		return args, "", false
	}
}

// inferValue turns command text into a Value, keeping integers and floats
// numeric.
func inferValue(text string) Value {
	s := strings.TrimSpace(text)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && s == text {
		return IntValue(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && s == text && strings.ContainsAny(s, ".eE") {
		return FloatValue(f)
	}
	return StringValue(text)
}

func cmdSet(e *Engine, name, args string) Result {
	args = strings.TrimSpace(args)
	if args == "" {
		names := e.vars.Names()
		if len(names) == 0 {
			return Message("No variables set.")
		}
		lines := make([]string, len(names))
		for i, n := range names {
			v, _ := e.vars.Get(n)
			lines[i] = n + "=" + v.String()
		}
		return Message(strings.Join(lines, "\n"))
	}

	varName, value, hasValue := splitAssignment(args)
	if !validVarName(varName) {
		return Errorf("#%s: invalid variable name %q", name, varName)
	}
	if !hasValue {
		v, ok := e.vars.Get(varName)
		if !ok {
			return Errorf("#%s: variable %q is not set", name, varName)
		}
		return Message(varName + "=" + v.String())
	}
	if name == "let" {
		e.vars.Set(varName, inferValue(value))
	} else {
		e.vars.Set(varName, StringValue(value))
	}
	return Success()
}

func cmdUnset(e *Engine, name, args string) Result {
	varName := strings.TrimSpace(args)
	if varName == "" {
		return Errorf("Usage: #%s <name>", name)
	}
	if !e.vars.Unset(varName) {
		return Errorf("#%s: variable %q is not set", name, varName)
	}
	return Success()
}

func cmdSetenv(e *Engine, name, args string) Result {
	varName, value, hasValue := splitAssignment(strings.TrimSpace(args))
	if !hasValue {
		return Errorf("Usage: #%s <name> <value>", name)
	}
	if !validVarName(varName) {
		return Errorf("#%s: invalid variable name %q", name, varName)
	}
	if err := e.env.Setenv(varName, value); err != nil {
		return Errorf("#%s: %v", name, err)
	}
	e.vars.Set(varName, StringValue(value))
	return Success()
}

// --- Output ---

func cmdEcho(_ *Engine, _, args string) Result {
	return Message(args)
}

func cmdSend(_ *Engine, _, args string) Result {
	return SendToMud(args)
}

func cmdSubstitute(e *Engine, _, args string) Result {
	e.SetPendingSubstitution(Substitution{Text: args})
	return Success()
}

// --- Client control ---

func cmdWorld(_ *Engine, _, args string) Result {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return ClayCommand("/world")
	case 1:
		return ClayCommand("/world " + fields[0])
	default:
		return Error("Usage: #world [name]")
	}
}

func cmdConnect(_ *Engine, _, args string) Result {
	var ssl bool
	var positional []string
	for _, f := range strings.Fields(args) {
		if !strings.HasPrefix(f, "-") || len(f) == 1 {
			positional = append(positional, f)
			continue
		}
		for _, opt := range f[1:] {
			switch opt {
			case 'x':
				ssl = true
			case 'l', 'q':
				// No-login and quiet are handled by the connection manager;
				// accepted for compatibility.
			default:
				return Errorf("#connect: unknown option -%c", opt)
			}
		}
	}

	switch len(positional) {
	case 1:
		cmd := "/connect " + positional[0]
		if ssl {
			cmd += " ssl"
		}
		return ClayCommand(cmd)
	case 2:
		host, portStr := positional[0], positional[1]
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Errorf("#connect: invalid port %q", portStr)
		}
		cmd := fmt.Sprintf("/connect %s %d", host, port)
		if ssl {
			cmd += " ssl"
		}
		return ClayCommand(cmd)
	default:
		return Error("Usage: #connect [-lqx] <world> | #connect [-lqx] <host> <port>")
	}
}

// --- Information ---

func cmdHelp(_ *Engine, _, args string) Result {
	topic := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args), "#"))
	if topic != "" {
		cmd, ok := commands[topic]
		if !ok {
			return Errorf("#help: no help for %q", topic)
		}
		return Message(cmd.Help)
	}
	return Message(helpText())
}

func cmdVersion(_ *Engine, _, _ string) Result {
	return Message(VersionString())
}
