package domain

// Result is the outcome of a best-effort sub-step. A failed Result is
// non-fatal: the parent operation logs it and carries on.
type Result[T any] struct {
	Step  string
	Value T
	Err   error
}

// Ok wraps a successful sub-step value.
func Ok[T any](step string, v T) Result[T] {
	return Result[T]{Step: step, Value: v}
}

// Fail wraps a failed sub-step.
func Fail[T any](step string, err error) Result[T] {
	return Result[T]{Step: step, Err: err}
}

func (r Result[T]) Failed() bool {
	return r.Err != nil
}
