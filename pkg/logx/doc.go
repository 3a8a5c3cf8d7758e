// Package logx configures playcue's structured logging.
//
// Components log through logx.Logger, a small wrapper over zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Levels and outputs swappable at runtime (Service.Apply on config reload)
package logx
