// Package result carries the outcome of an asynchronous operation as a value,
// for the places where a (T, error) pair has to cross a channel.
package result

// Result is either a success value or a failure reason.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a success value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a failure. A nil err is a programming error.
func Fail[T any](err error) Result[T] {
	if err == nil {
		panic("result: Fail called with nil error")
	}
	return Result[T]{Err: err}
}

// Of builds a Result from a conventional (value, error) return.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{Err: err}
	}
	return Result[T]{Value: v}
}

func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// Unwrap converts back to a (value, error) pair.
// The value is the zero T on failure.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

// Match calls exactly one of success or failure.
func (r Result[T]) Match(success func(T), failure func(error)) {
	if r.Err != nil {
		failure(r.Err)
		return
	}
	success(r.Value)
}
