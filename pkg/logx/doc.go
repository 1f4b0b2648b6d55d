// Package logx wraps zerolog in a small value-type Logger.
//
// Console output uses a short timestamp and a file:line caller. The optional
// file sink writes JSON. The optional chat sink posts WARN and above to a
// Discord channel, rate limited.
package logx
