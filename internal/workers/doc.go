/*
Package workers sizes worker pools in containerized environments.

runtime.NumCPU reports the host's CPU count even when a cgroup limits the
container to a fraction of it. GOMAXPROCS follows the container limit
(Go 1.19+), so the helpers here derive pool sizes from it:

	// Transcode dispatcher: mixed ffmpeg CPU work and stream copies
	n := workers.ForMixed(4)

	// Operator override from configuration
	n = workers.Resolve(cfg.TranscodeWorkers, 32, n)

Multipliers per workload:
  - ForCPU: 1 worker per CPU (full re-encodes)
  - ForIO: 2 workers per CPU (file copies, database sweeps)
  - ForMixed: 1.5 workers per CPU

Every function takes a limit that caps the result; 0 means no cap. Always
pass one for pools that spawn external processes, since each ffmpeg
invocation can itself use several threads.

Overrides are passed in explicitly rather than read from the environment,
so sizing is decided once at startup from the loaded configuration.

All functions are safe for concurrent use.
*/
package workers
