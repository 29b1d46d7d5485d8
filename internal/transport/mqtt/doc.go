// Package mqtt connects the monitor to an MQTT broker.
//
// Sensor readings and location fixes are consumed from broker topics, and
// alert notifications are published back. Payloads are small JSON documents.
package mqtt
