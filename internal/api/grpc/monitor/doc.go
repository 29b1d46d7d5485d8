// Package monitor implements the gRPC transport for the fall monitor.
//
// Messages are protobuf well-known types: requests are Empty and every
// response is a Struct built by the wire package. The service descriptor is
// declared here together with a thin client for it.
package monitor
