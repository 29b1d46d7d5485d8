// Package fall contains core domain types for fall detection.
//
// It defines motion samples and impact signals produced by the sensor pipeline,
// and the State of a monitoring session (phase, pending deadline, episode and the
// emergency location snapshot). Values are passed by copy so readers can never
// mutate the state owned by the state machine.
package fall
