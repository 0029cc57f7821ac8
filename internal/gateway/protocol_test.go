package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

func TestResponse_EnvelopeAlwaysCarriesBothKeys(t *testing.T) {
	ok := okResponse(OpCreateRequest, map[string]int{"request_id": 1})
	okBytes, err := json.Marshal(ok)
	require.NoError(t, err)

	var okDecoded map[string]interface{}
	require.NoError(t, json.Unmarshal(okBytes, &okDecoded))
	payload := okDecoded["payload"].(map[string]interface{})
	require.Contains(t, payload, "output")
	require.Contains(t, payload, "error")
	require.Nil(t, payload["error"])

	fail := errResponse(OpCreateRequest, StatusInvalidInput, "bad input")
	failBytes, err := json.Marshal(fail)
	require.NoError(t, err)

	var failDecoded map[string]interface{}
	require.NoError(t, json.Unmarshal(failBytes, &failDecoded))
	failPayload := failDecoded["payload"].(map[string]interface{})
	require.Equal(t, "bad input", failPayload["error"])
	require.Nil(t, failPayload["output"])
}

func TestDomainErrResponse_NotFoundMapsToStatusNotFound(t *testing.T) {
	resp := domainErrResponse(OpRiderStatus, domain.ErrNotFound)
	require.Equal(t, StatusNotFound, resp.Status)

	resp = domainErrResponse(OpRiderStatus, domain.ErrInvalidState)
	require.Equal(t, StatusInvalidInput, resp.Status)
}

func TestDomainErrResponse_NoDriversAvailableMapsToStatusNotFound(t *testing.T) {
	resp := domainErrResponse(OpCreateRequest, domain.ErrNoDrivers)
	require.Equal(t, StatusNotFound, resp.Status)
}
