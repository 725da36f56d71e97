// Package ws owns the set of live duplex connections used to push periodic
// capture-request prompts to monitoring clients and receive their capture
// responses.
//
// Each connection carries an ephemeral configuration (station, user,
// interval, active flag) that is lost on disconnect. When a connection is
// configured and active, the registry runs exactly one scheduler loop for
// it; reconfiguration cancels the previous loop before starting a new one,
// so rapid reconfiguration can never leave two prompt streams running.
package ws
