// Package transcoder drives the external FFmpeg toolchain.
//
// It provides:
//   - Prober: reads width, height, duration and frame rate via ffprobe
//   - Parameter derivation: proxy geometry under a ScalePolicy and clip windows
//   - Invoker: proxy transcodes, stream-copy clip extraction and frame grabs
//
// Every invocation runs under a context deadline. Failures are reported as
// *ProbeError, *DerivationError or *TranscodeError and match the package
// sentinels with errors.Is. Nothing is retried here.
package transcoder
