package machine

import "io"

// seedRuntimeLibrary installs the small set of builtins every program's
// global environment starts with.
func seedRuntimeLibrary(g *GlobalEnv) {
	g.Set("print", &HostFunctionRef{Name: "print", Fn: hostPrint})
}

// hostPrint implements the print builtin: it writes the display form of
// each argument, tab-separated, newline-terminated, to the interpreter's
// configured output writer. It never fails on well-formed input; a write
// error on the underlying writer is reported as a Go error.
func hostPrint(it *Interpreter, args []Value, results *[]Value) error {
	w := it.stdout
	for i, a := range args {
		if i > 0 {
			if _, err := io.WriteString(w, "\t"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, a.String()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
