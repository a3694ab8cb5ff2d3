package actions

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

type signatureBody struct {
	Signature string `json:"assinatura"`
	SignedAt  string `json:"dataAssinatura"`
}

// SignDocument records the signature of a document.
func (r *Recorder) SignDocument(ctx context.Context, documentID, signature string) (Receipt, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" || strings.ContainsAny(documentID, "/?#") {
		return Receipt{}, apperrors.New(apperrors.ErrInvalid, "a valid document id is required")
	}
	if strings.TrimSpace(signature) == "" {
		return Receipt{}, apperrors.New(apperrors.ErrInvalid, "signature is required")
	}

	payload, err := encode(signatureBody{Signature: signature, SignedAt: isoTimestamp(r.now())})
	if err != nil {
		return Receipt{}, err
	}
	action, err := queue.NewAction(models.CategoryDocumentSignature,
		models.Target{Endpoint: signEndpoint(documentID), Method: http.MethodPut}, payload)
	if err != nil {
		return Receipt{}, err
	}

	receipt, err := r.deliver(ctx, action)
	receipt.GeofenceStatus = GeofenceNotApplicable
	return receipt, err
}
