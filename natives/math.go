package natives

import "github.com/deepnoodle-ai/npp/value"

func unaryMath(fn func(float64) float64) func([]value.Value) (value.Value, error) {
	return func(args []value.Value) (value.Value, error) {
		if err := Arity(args, 1); err != nil {
			return value.Null(), err
		}
		if !args[0].IsNumber() {
			return value.Null(), TypeError("Argument must be a number.")
		}
		return value.Number(fn(args[0].AsNumber())), nil
	}
}

func binaryMath(fn func(float64, float64) float64) func([]value.Value) (value.Value, error) {
	return func(args []value.Value) (value.Value, error) {
		if err := numbers(args); err != nil {
			return value.Null(), err
		}
		return value.Number(fn(args[0].AsNumber(), args[1].AsNumber())), nil
	}
}

// Mdls reports whether the first argument, truncated to an integer, is
// divisible by the second.
func Mdls(args []value.Value) (value.Value, error) {
	if err := numbers(args); err != nil {
		return value.Null(), err
	}
	a := int64(args[0].AsNumber())
	b := int64(args[1].AsNumber())
	if b == 0 {
		return value.Null(), Error("Division by zero.")
	}
	return value.Bool(a%b == 0), nil
}

func numbers(args []value.Value) error {
	if err := Arity(args, 2); err != nil {
		return err
	}
	if !args[0].IsNumber() || !args[1].IsNumber() {
		return TypeError("Arguments must be numbers.")
	}
	return nil
}
