// Package certmsg holds capnp accessors for the structures in certmsg.capnp.
//
// certmsg.capnp.go follows the layout capnpc-go derives from the schema and is replaced in
// place by regenerating it. CAPNP_STD points to the std directory of capnproto.org/go/capnp/v3.
// The wire layout is pinned by golden encodings in the tests.
package certmsg

//go:generate capnp compile -I$CAPNP_STD -ogo certmsg.capnp
