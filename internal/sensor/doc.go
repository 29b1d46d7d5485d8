// Package sensor defines the motion sensor subscription API and a scenario
// source that replays a YAML script of samples at the sampling period.
//
// The MQTT implementation of Source lives in internal/transport/mqtt.
package sensor
