// Package application wires the fruit basket, metrics and API handler to the
// selected server backend, and relaunches the backend when it asks for a
// configuration reload. The main package is left with argument parsing,
// configuration resolution and signal handling.
package application
