/*
Package exchange implements the request/response layer used to fetch chain
data from connected peers: block headers, block bodies, receipts and raw
state trie nodes.

A caller obtains a PeerExchange from the Reactor and calls one of its Get
methods. Each call registers a waiter in the Registry, sends a single request
on the exchange channel and suspends until the matching response arrives,
the timeout expires, the peer disconnects or the caller's context is
canceled. The Reactor runs one inbound loop per node that hands every
response to the oldest waiter of the same peer and kind carrying the same
request id. Responses that match no waiter are dropped.

A delivered response goes through three stages before it is returned:

	payload validation   the packet has the expected type and no nil entries
	normalization        roots and hashes are computed and the items are
	                     paired with the requested headers
	result validation    every item must answer the request it was sent for

Empty and partial responses are valid. Any item the request did not ask for
rejects the whole response with ErrValidation and is reported to the p2p
layer as a PeerError.

Successful exchanges are recorded in the Tracker, which keeps exponentially
weighted moving averages of round trip time, items per response, throughput
and completeness per peer and kind. RecommendedBatchSize turns these into
the number of items to ask a peer for so that a response arrives within the
configured target round trip time.
*/
package exchange
