// Package client talks to a running lambdad daemon over its Unix socket.
//
// Each call opens a connection, sends one [protocol.Envelope] and waits for
// the reply. Cancelling the call's context closes the connection, which the
// daemon treats as a request to abandon the command.
//
//	c := client.New(paths.Socket())
//	result, err := c.Build(ctx, &protocol.BuildRequest{Inventory: inv})
package client
