// Package sim runs checkpoint protocols over a deployment in one process.
//
// A Cluster plays every instance of a topology, moves envelopes over
// per-connection FIFO links and reports each checkpoint to a notifier,
// normally the coordinator. Delivery order is a pure function of the
// calls made, which lets the CLI and tests reproduce a run exactly.
package sim
