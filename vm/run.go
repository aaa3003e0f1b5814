package vm

// Run interprets source in a new VirtualMachine and frees it afterwards.
// The options must include a compiler.
func Run(source string, options ...Option) (Result, error) {
	machine := New(options...)
	defer machine.Free()
	return machine.Interpret(source)
}
