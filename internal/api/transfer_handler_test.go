package api

import (
	"testing"

	"whereabouts/internal/database"

	"github.com/stretchr/testify/assert"
)

func TestConfirmTransferRequest_SideIsAnEnum(t *testing.T) {
	confirmed := true

	for _, side := range []string{database.TransferSideOrigin, database.TransferSideTarget} {
		req := confirmTransferRequest{Originator: side, Status: &confirmed}
		assert.NoError(t, validate.Struct(req))
	}

	for name, req := range map[string]confirmTransferRequest{
		"missing side": {Status: &confirmed},
		"unknown side": {Originator: "sideways", Status: &confirmed},
		"boolean side": {Originator: "true", Status: &confirmed},
		"no status":    {Originator: database.TransferSideOrigin},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, validate.Struct(req))
		})
	}
}
