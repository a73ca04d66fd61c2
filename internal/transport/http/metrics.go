package httptransport

import "expvar"

var (
	commandsTotal      = expvar.NewInt("commands_total")
	commandErrorsTotal = expvar.NewInt("command_errors_total")
)
