package core

// Runnable is the work a task performs when dispatched.
type Runnable interface {
	Run()
}

// Func adapts a plain function to Runnable.
type Func func()

// Run calls f.
func (f Func) Run() { f() }

// callback pairs a function with an opaque argument owned by the caller.
type callback struct {
	fn  func(arg any)
	arg any
}

func (c callback) Run() { c.fn(c.arg) }

// Callback returns a Runnable that invokes fn(arg).
//
// The scheduler never copies, tracks or releases arg; the caller must keep
// whatever it points to alive for as long as the task can still fire.
func Callback(fn func(arg any), arg any) Runnable {
	if fn == nil {
		return nil
	}
	return callback{fn: fn, arg: arg}
}
