// Package nodes implements the node side of module provisioning: the
// catalog that resolves node name references from deployment
// descriptors, DNS SRV resolution of node addresses, and the simulated
// node implementations used for dry runs and tests.
//
// # Catalog
//
// A deployment descriptor lists its nodes once and references them by
// name from module entries. NewCatalog builds the node set from the
// persisted states, rejecting duplicates and unknown node types, and
// resolves SRV host notation up front so modules always observe a
// concrete address.
//
// # Address Resolution
//
// A node host of the form dnssrv://_reactive._tcp.example.org is
// resolved through DNS SRV records at catalog construction. The SRV
// target becomes the node host; the SRV port is used when the
// descriptor leaves the reactive port unset. Plain hosts pass through
// unchanged.
//
// # Simulated Nodes
//
// The wire protocol between the provisioner and real devices is not
// part of this package. SimulatedSancusNode and SimulatedTrustZoneNode
// accept deployments and attestations without hardware: the Sancus
// simulation assigns protection IDs sequentially and fabricates the
// symbol table file a device would return. Device transports implement
// the same interfaces.Node surface and plug into the catalog the same
// way.
package nodes
