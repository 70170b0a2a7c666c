// Package device describes audio output devices: identifiers, output status,
// stream parameters and the session ids used to pick a device implicitly.
package device
