// Package simvm is an in-process managed runtime used to exercise the bridge
// without a real virtual machine. It tracks attached OS threads, global
// references and thrown exceptions, and records every rule breach so tests
// can assert that none happened.
package simvm
