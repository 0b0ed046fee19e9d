package revocation_status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-schema-processor/v2/verifiable"
	"github.com/iden3/iden3comm/v2"
	"github.com/iden3/iden3comm/v2/packers"
	"github.com/iden3/iden3comm/v2/protocol"

	client "github.com/polygonid/verifier-node/pkg/http"
)

// iden3CommRevocationStatusV1Resolver posts a plain iden3comm revocation status request to the issuer agent
type iden3CommRevocationStatusV1Resolver struct {
	client *client.Client
}

func (r *iden3CommRevocationStatusV1Resolver) Resolve(ctx context.Context, issuerDID *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error) {
	if issuerDID == nil {
		return nil, fmt.Errorf("issuer did is required for %s", status.Type)
	}
	pm, err := plainPackageManager()
	if err != nil {
		return nil, err
	}
	request, err := statusRequest(pm, issuerDID, status.RevocationNonce)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Post(ctx, status.ID, request)
	if err != nil {
		return nil, err
	}

	msg, _, err := pm.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("agent response: %w", err)
	}
	if msg.Type != protocol.RevocationStatusResponseMessageType {
		return nil, fmt.Errorf("agent answered with %s", msg.Type)
	}
	var body protocol.RevocationStatusResponseMessageBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return nil, err
	}
	return &body.RevocationStatus, nil
}

func plainPackageManager() (*iden3comm.PackageManager, error) {
	pm := iden3comm.NewPackageManager()
	return pm, pm.RegisterPackers(&packers.PlainMessagePacker{})
}

// statusRequest is addressed from and to the issuer, the agent does not authenticate the sender
func statusRequest(pm *iden3comm.PackageManager, issuerDID *w3c.DID, nonce uint64) ([]byte, error) {
	body, err := json.Marshal(protocol.RevocationStatusRequestMessageBody{RevocationNonce: nonce})
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(iden3comm.BasicMessage{
		ID:       uuid.NewString(),
		ThreadID: uuid.NewString(),
		Typ:      packers.MediaTypePlainMessage,
		Type:     protocol.RevocationStatusRequestMessageType,
		From:     issuerDID.String(),
		To:       issuerDID.String(),
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	return pm.Pack(packers.MediaTypePlainMessage, msg, nil)
}
