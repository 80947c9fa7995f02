// Conductor is the matching orchestrator. It routes candidate-to-job match
// requests across a fleet of scoring engines, shifts traffic away from the
// legacy path gradually, and keeps failing engines out of rotation.
//
// Usage:
//
//	# Start the server
//	conductor run --config conductor.yaml
//
//	# Check a configuration file without starting
//	conductor validate-config --config conductor.yaml
//
//	# Inspect and change the rollout of a running instance
//	conductor rollout status
//	conductor rollout set 25
//	conductor rollout force-legacy
//
//	# Query recorded events
//	conductor events query --kind transition --since 1h
package main

func main() {
	Execute()
}
