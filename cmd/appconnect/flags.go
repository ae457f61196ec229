package main

import "time"

// GlobalFlags are persistent across all subcommands.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection; commands run locally when APIUrl is empty.
	APIUrl     string
	APITimeout time.Duration
}

// SendFlags Flag structs to decouple cobra from logic for testing.
type SendFlags struct {
	Event   string
	Timeout time.Duration
	Wait    bool
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type InboxFlags struct {
	Dir string
	// Reply is returned to senders that wait for a reply.
	Reply string
}
