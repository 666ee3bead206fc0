// Package logx configures smsrelay's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Dynamic reconfiguration via Service.Apply() on config reload
package logx
