// Package api defines the transport representations shared by the HTTP
// server and the IPC protocol, plus conversions from storage models.
package api
