// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendPayload struct {
	RoomID  string `validate:"required"`
	Content string `validate:"max=4096"`
	Kind    string `validate:"omitempty,oneof=text sticker image"`
}

func TestValidateStructPass(t *testing.T) {
	assert.Nil(t, ValidateStruct(&sendPayload{RoomID: "r1", Content: "hi", Kind: "text"}))
	assert.Nil(t, ValidateStruct(&sendPayload{RoomID: "r1"}))
}

func TestValidateStructSingleFailure(t *testing.T) {
	verr := ValidateStruct(&sendPayload{Kind: "text"})
	require.NotNil(t, verr)
	require.Len(t, verr.Errors(), 1)
	assert.Equal(t, "RoomID", verr.Errors()[0].Field())
	assert.Equal(t, "required", verr.Errors()[0].Tag())

	apiErr := verr.ToAPIError()
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Equal(t, "RoomID", apiErr.Details["field"])
}

func TestValidateStructMultipleFailures(t *testing.T) {
	verr := ValidateStruct(&sendPayload{Kind: "gif"})
	require.NotNil(t, verr)
	assert.Len(t, verr.Errors(), 2)

	apiErr := verr.ToAPIError()
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Message, "RoomID")
	assert.Contains(t, apiErr.Message, "Kind")
}
