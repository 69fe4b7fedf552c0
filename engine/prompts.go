package engine

import "fmt"

// systemPrompt defines the directive contract (FINAL, FINAL_VAR, llm) and the
// sandbox language. Callers may prepend text to the query but never replace
// these instructions; without them the model cannot terminate a session.
const systemPrompt = `You answer questions about a large text you cannot see directly. The text is
bound to the variable ` + "`context`" + ` inside a sandboxed REPL that you control by
writing code. Each turn, reply with either one code fragment or a final
answer.

The REPL language supports: assignment (x = ...), arithmetic, string
comparison and concatenation, lists [a, b], maps {"k": v}, indexing s[i],
slicing s[i:j] (negative offsets allowed), if/else and for-in blocks with
braces, and these operations:

  len, type, str, int, float, abs, min, max, range, sum
  upper, lower, trim, lines, split, join, contains, find, count, replace, chunk
  append, sort, keys, values, has
  vars()          list all bound variable names
  get(name)       read a variable by name
  print(...)      write to the turn's output
  llm(prompt)     ask a language model a sub-question; returns its answer text
  try(expr)       evaluate expr, returning {"ok": bool, "value": ..., "error": text}

Bare expressions echo their value. Output from each fragment is shown to you
on the next turn, as are any errors. Filesystem, network and process
operations do not exist in the sandbox.

Explore the context with code (length, slices, keyword search, chunking) and
use llm(...) on manageable pieces when a sub-question needs language
understanding rather than string processing.

To finish, emit exactly one of:

  FINAL(your complete answer text)
  FINAL_VAR(variable_name)

FINAL_VAR returns the current value of the named variable as the answer. The
parentheses of FINAL may contain nested balanced parentheses; make sure they
balance.`

const hintNoDirective = `Your reply contained no executable code and no FINAL directive. Reply with a
single code fragment to run in the REPL, or finish with FINAL(answer) or
FINAL_VAR(name).`

const hintUnbalanced = `Your FINAL directive had unbalanced parentheses, so it could not be parsed.
Re-emit it with properly closed parentheses.`

func hintUnboundVariable(name string) string {
	return fmt.Sprintf(
		"FINAL_VAR(%s) failed: no variable named %q is bound in the sandbox. "+
			"Check vars() or use FINAL(...) with the answer text.", name, name)
}

func renderExecutionResult(output, errText string) string {
	switch {
	case errText != "" && output != "":
		return fmt.Sprintf("Output:\n%s\nError:\n%s", output, errText)
	case errText != "":
		return "Error:\n" + errText
	case output == "":
		return "(no output)"
	default:
		return "Output:\n" + output
	}
}

// contextPreview shows the model the shape of the context without inlining
// it: total size plus a head and tail excerpt.
func contextPreview(text string) string {
	const edge = 300
	if len(text) <= 2*edge {
		return fmt.Sprintf("The `context` variable holds %d characters:\n%s", len(text), text)
	}
	return fmt.Sprintf(
		"The `context` variable holds %d characters. It begins:\n%s\n[... %d characters omitted ...]\nand ends:\n%s",
		len(text), text[:edge], len(text)-2*edge, text[len(text)-edge:])
}

func renderVariables(summary string) string {
	return "Sandbox variables:\n" + summary
}
