// Package config defines the format-agnostic configuration model of a netbus
// process, along with the Loader interface that fills it.
//
// A Model describes exactly one side of a boundary: a Server that declares
// what its clients may send, or a Client that dials a server and runs an
// ordered list of steps. Concrete loaders, such as the HCL one, live in
// separate packages.
package config
