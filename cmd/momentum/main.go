// Momentum is the tiered decision and budget-governed escalation engine
// behind the IELTS study app.
//
// It assigns study tracks, picks practice tasks and writes weekly reports,
// answering from deterministic rules first and escalating to a cheap or an
// expensive model only while the learner's monthly budget allows it.
//
// Usage:
//
//	# Start the maintenance scheduler and the metrics endpoint
//	momentum run --config config.yaml
//
//	# Run a maintenance job now
//	momentum maintenance run reset_weekly
//
//	# Show a learner's spend for the month
//	momentum budget show <user-id>
//
//	# Load the task catalogue
//	momentum tasks import catalogue.yaml
//
//	# Show version information
//	momentum version
package main

func main() {
	Execute()
}
