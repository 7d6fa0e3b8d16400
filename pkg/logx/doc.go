// Package logx configures the assistant's structured logging.
//
// Components receive a logx.Logger (a thin value wrapper over zerolog):
//   - console output stays human readable (short timestamp + file:line caller)
//   - the optional file sink writes one JSON object per line
//   - Service.Apply swaps sinks and level at runtime without touching callers
package logx
