// Package status writes the current fall State to a readout file.
//
// The file holds the latest state only and is overwritten on every transition.
// It is encoded as protobuf JSON of the same Struct the gRPC API returns.
package status
