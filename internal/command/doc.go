// Package command parses slash commands typed into the chat.
//
// A command is a message whose first word starts with "/". The name may
// carry a "@botname" suffix, which is ignored. The remaining text is kept
// both as whitespace-separated arguments and as the raw tail, so commands
// like /broadcast can take free text verbatim.
//
// Basic usage:
//
//	cmd, ok := command.Parse("/block 12345 spamming links")
//	// cmd.Name == "block", cmd.Arg(0) == "12345", cmd.Tail(1) == "spamming links"
//
// Each known command is described by a Spec in Catalogue, which also drives
// the /help text. Admin-only commands are flagged so the engine can refuse
// them for everyone else.
package command
