package cmd

// Middleware wraps a handler (e.g. logging, history recording).
type Middleware func(name string, next HandlerFunc) HandlerFunc

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(name string, h HandlerFunc, mws ...Middleware) HandlerFunc {
	if h == nil {
		return nil
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](name, h)
	}
	return h
}
