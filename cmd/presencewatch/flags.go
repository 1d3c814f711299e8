package main

import "time"

// RunFlags holds flags for the run command
type RunFlags struct {
	ConfigPath string
	PidFile    string
	Daemonize  bool
	LogFile    string
}

// ProbeFlags holds flags for the probe command
type ProbeFlags struct {
	Interface string
	Timeout   time.Duration
}

// StatusFlags holds flags for the status command
type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Output     string
	History    int
	CACert     string
	Insecure   bool
}
