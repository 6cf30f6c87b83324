package rpc

import (
	"errors"

	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/pkg/models"
)

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: -32602, Message: "invalid params"}
}

func mapLedgerError(err error) *rpcError {
	var rej *ledger.RejectError
	switch {
	case errors.As(err, &rej):
		return &rpcError{
			Code:    models.CodeRejected,
			Message: err.Error(),
			Data:    models.RejectData{Index: rej.Index, Reason: rej.Reason},
		}
	case errors.Is(err, ledger.ErrUnknownTxn):
		return &rpcError{Code: models.CodeUnknownGroup, Message: err.Error()}
	case errors.Is(err, ledger.ErrUnknownApp):
		return &rpcError{Code: models.CodeUnknownApp, Message: err.Error()}
	case errors.Is(err, ledger.ErrUnknownAsset):
		return &rpcError{Code: models.CodeUnknownAsset, Message: err.Error()}
	default:
		return &rpcError{Code: models.CodeLedger, Message: err.Error()}
	}
}
