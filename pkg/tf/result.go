package tf

import "fmt"

// ResultKind classifies the outcome of a command or trigger action.
type ResultKind int

const (
	ResultSuccess     ResultKind = iota // Success, optionally with a message
	ResultSendToMud                     // Text for the active connection
	ResultClayCommand                   // Client-level command to re-dispatch
	ResultError                         // Handler failure, shown to the user
	ResultUnknown                       // Unrecognized command name
	ResultNotCommand                    // Input was not #-prefixed
)

// String returns a human-readable name for the result kind.
func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultSendToMud:
		return "send"
	case ResultClayCommand:
		return "clay"
	case ResultError:
		return "error"
	case ResultUnknown:
		return "unknown"
	case ResultNotCommand:
		return "not_command"
	default:
		return "invalid"
	}
}

// BreakSentinel is the reserved Error text used as an internal control
// signal. It is dropped when line-trigger results are aggregated.
const BreakSentinel = "__break__"

// Result is the outcome of any command handler or trigger action.
// Text holds the message, outgoing text, client command, error text or
// unknown command name depending on Kind. HasMessage distinguishes
// Success(Some("")) from Success(None).
type Result struct {
	Kind       ResultKind
	Text       string
	HasMessage bool
}

// Success returns a message-less success.
func Success() Result { return Result{Kind: ResultSuccess} }

// Message returns a success carrying a local display message.
func Message(msg string) Result { return Result{Kind: ResultSuccess, Text: msg, HasMessage: true} }

// Messagef is Message with fmt formatting.
func Messagef(format string, args ...any) Result { return Message(fmt.Sprintf(format, args...)) }

// SendToMud returns a result that writes text to the active connection.
func SendToMud(text string) Result { return Result{Kind: ResultSendToMud, Text: text} }

// ClayCommand returns a result that re-enters text as a client command.
func ClayCommand(text string) Result { return Result{Kind: ResultClayCommand, Text: text} }

// Error returns a user-facing failure.
func Error(text string) Result { return Result{Kind: ResultError, Text: text} }

// Errorf is Error with fmt formatting.
func Errorf(format string, args ...any) Result { return Error(fmt.Sprintf(format, args...)) }

// UnknownCommand reports an unrecognized command name.
func UnknownCommand(name string) Result { return Result{Kind: ResultUnknown, Text: name} }

// NotTfCommand reports input that was not #-prefixed.
func NotTfCommand() Result { return Result{Kind: ResultNotCommand} }

// IsBreak reports whether r is the internal break sentinel.
func (r Result) IsBreak() bool {
	return r.Kind == ResultError && r.Text == BreakSentinel
}

// String renders r for logs and debugging.
func (r Result) String() string {
	switch r.Kind {
	case ResultSuccess:
		if r.HasMessage {
			return fmt.Sprintf("Success(%q)", r.Text)
		}
		return "Success"
	case ResultSendToMud:
		return fmt.Sprintf("SendToMud(%q)", r.Text)
	case ResultClayCommand:
		return fmt.Sprintf("ClayCommand(%q)", r.Text)
	case ResultError:
		return fmt.Sprintf("Error(%q)", r.Text)
	case ResultUnknown:
		return fmt.Sprintf("UnknownCommand(%q)", r.Text)
	case ResultNotCommand:
		return "NotTfCommand"
	default:
		return "Invalid"
	}
}

// Substitution replaces the displayed text of a line. Attrs carries display
// attribute letters (e.g. "h" for hilite) for the renderer.
type Substitution struct {
	Text  string
	Attrs string
}

// TriggerResult is the consolidated outcome of processing one line or one
// lifecycle event.
type TriggerResult struct {
	SendCommands []string
	ClayCommands []string
	Messages     []string
	ShouldGag    bool
	Errors       []string
	Substitution *Substitution
}

// Empty reports whether the result carries nothing for the caller.
func (tr *TriggerResult) Empty() bool {
	return len(tr.SendCommands) == 0 && len(tr.ClayCommands) == 0 &&
		len(tr.Messages) == 0 && len(tr.Errors) == 0 &&
		!tr.ShouldGag && tr.Substitution == nil
}

// add folds one command result into tr. When filterBreak is set the break
// sentinel is dropped instead of being recorded as an error.
func (tr *TriggerResult) add(r Result, filterBreak bool) {
	switch r.Kind {
	case ResultSuccess:
		if r.HasMessage {
			tr.Messages = append(tr.Messages, r.Text)
		}
	case ResultSendToMud:
		tr.SendCommands = append(tr.SendCommands, r.Text)
	case ResultClayCommand:
		tr.ClayCommands = append(tr.ClayCommands, r.Text)
	case ResultError:
		if filterBreak && r.Text == BreakSentinel {
			return
		}
		tr.Errors = append(tr.Errors, r.Text)
	case ResultUnknown:
		tr.Errors = append(tr.Errors, "Unknown command: #"+r.Text)
	case ResultNotCommand:
		// Bodies route non-# text to SendToMud before dispatch.
	}
}

// foldResults aggregates results into a TriggerResult.
func foldResults(results []Result, filterBreak bool) TriggerResult {
	var tr TriggerResult
	for _, r := range results {
		tr.add(r, filterBreak)
	}
	return tr
}
