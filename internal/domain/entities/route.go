package entities

// Route identifies one origin→destination movement of a single asset.
// Asset is the contract address on the chain the adapter call acts on:
// the origin for quoting and sending, the destination for readiness
// probes and callbacks.
type Route struct {
	Origin      uint64 `json:"origin"`
	Destination uint64 `json:"destination"`
	Asset       string `json:"asset"`
}

// SwapRoute is a route whose asset symbol changes across the trip.
type SwapRoute struct {
	Route
	DestinationAsset string `json:"destinationAsset"`
}
