// Package location owns the duty-cycled position tracking loop.
//
// Responsibilities: choosing the best sample from a raw sensor batch
// (Select), scheduling sensor activity in bounded windows with recovery
// after sensor failures (Controller), and exposing the accepted samples to
// the host application (Tracker).
//
// The sensor driver, background execution tokens and platform authorization
// are reached only through the SensorHandle, TokenProvider and
// AuthorizationQuery interfaces. No I/O is performed in this package.
package location
