package host

// App mounts an application into a fresh session. Mount declares the app's
// cells and computations under the session's root scope and returns the id
// of the computation whose output is the control surface description
// (a reconcile.Description).
type App interface {
	Mount(sess *Session) (string, error)
}

// AppFunc adapts a function to the App interface.
type AppFunc func(sess *Session) (string, error)

// Mount calls f.
func (f AppFunc) Mount(sess *Session) (string, error) {
	return f(sess)
}
