// Package host serves reactive control surfaces over WebSocket.
//
// Each connection gets a Session with its own engine, root scope, and
// reconciler. The application mounts its cells and computations into the
// session and returns the id of the computation producing the control
// surface description. Client events are written into cells, a flush
// propagates them, and the resulting control changes go back to the client
// as patches.
//
//	app := host.AppFunc(func(s *host.Session) (string, error) {
//		e, root := s.Engine(), s.Scope()
//		if _, err := e.DeclareCell(root, "volume", 5); err != nil {
//			return "", err
//		}
//		_, err := e.DeclareComputation(root, "ui", func(rc *pulse.RunContext) (any, error) {
//			v, err := rc.ReadInt("volume")
//			if err != nil {
//				return nil, err
//			}
//			return reconcile.Description{
//				{ID: "volume", Kind: "slider", Value: v},
//			}, nil
//		})
//		return "ui", err
//	})
//
//	srv := host.NewServer(app)
//	http.ListenAndServe(":8080", srv)
//
// All engine access happens on the session's event loop goroutine; use
// Session.Dispatch to run code there from outside.
package host
