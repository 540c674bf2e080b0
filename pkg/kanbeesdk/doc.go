/*
Package kanbeesdk is a Go client for the kanbee collaboration backend.

# Client vs Session

  - Client covers the public endpoints and starts sessions.
  - Session carries an access token and refreshes it through the refresh
    cookie kept in the Client's cookie jar.

Typical use:

	client := kanbeesdk.NewClient("https://kanbee.example.com")

	session, err := client.SignIn(ctx, "bee@kanbee.dev", "secret")
	me, err := session.Me(ctx)

	board, err := session.CreateProject(ctx, "Sprint")

# Realtime

Session.Dial opens the websocket gateway. Calls are matched to replies by
request id; server pushes arrive on Conn.Pushes.

	conn, err := session.Dial(ctx)
	defer conn.Close()

	var p kanbeesdk.Project
	err = conn.Call(ctx, "findProject", map[string]string{"id": board.ID}, &p)

	push := <-conn.Pushes()

# Errors

Non-2xx responses and realtime error replies are returned as *APIError.
Use errors.Is with the Err* values to branch on the error code.
*/
package kanbeesdk
