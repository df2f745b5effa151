// Package protocol defines the messages exchanged between the lambdad CLI
// and the daemon over the Unix socket.
//
// Every message is a single JSON envelope terminated by a newline. The
// envelope names a command and carries a command-specific payload, which is
// decoded lazily with [DecodePayload] once the command is known.
//
//	data, err := protocol.Encode(protocol.CmdBuild, &protocol.BuildRequest{
//	    Inventory: inv,
//	    Target:    "HelloWorld",
//	})
//
// Replies reuse the envelope: [CmdOK] carries the command's result and
// [CmdError] carries an [ErrorResult].
package protocol
