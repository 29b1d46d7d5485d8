// Package wire converts the fall State to and from the protobuf Struct used by
// the gRPC API and the status readout file.
package wire
