package ports

import (
	core "github.com/iden3/go-iden3-core/v2"
)

// DIDCreationOptions the DID method and network of new identities
type DIDCreationOptions struct {
	Method     core.DIDMethod  `json:"method"`
	Blockchain core.Blockchain `json:"blockchain"`
	Network    core.NetworkID  `json:"network"`
}

// DefaultDIDCreationOptions creates polygonid identities on polygon mumbai
var DefaultDIDCreationOptions = DIDCreationOptions{
	Method:     core.DIDMethodPolygonID,
	Blockchain: core.Polygon,
	Network:    core.Mumbai,
}
