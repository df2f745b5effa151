// Package server implements the lambdad daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the lambdad CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection. A client that disconnects early cancels its
// command, which kills any builder sandbox still running for it.
//
// Build commands are delegated to the build package, which runs each
// function's builder in a sandbox through the runtime package. When a
// metrics address is configured, the server also exposes Prometheus
// metrics over HTTP.
//
// Example usage:
//
//	srv, err := server.New(settings.Defaults())
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
