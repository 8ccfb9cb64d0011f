package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/infra/httpclient"
	"github.com/nicklasc86/travelbot/internal/services/extraction"
)

const testBaseURL = "https://api.openai.test/v1"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	client, err := NewClient(Config{
		APIKey:    "sk-test",
		BaseURL:   testBaseURL,
		Transport: transport,
	})
	require.NoError(t, err)
	return client, transport
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "})
	require.Error(t, err)
}

func TestClassifyDecodesFirstResult(t *testing.T) {
	client, transport := newTestClient(t)

	transport.RegisterResponder(http.MethodPost, testBaseURL+"/moderations",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

			var body moderationRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "Try the night market", body.Input)

			return httpmock.NewStringResponse(http.StatusOK,
				`{"id":"modr-1","results":[{"flagged":false,"category_scores":{"violence":0.01,"sexual":0.4}}]}`), nil
		})

	result, err := client.Classify(context.Background(), "Try the night market")
	require.NoError(t, err)
	assert.False(t, result.Flagged)
	assert.InDelta(t, 0.4, result.CategoryScores["sexual"], 1e-9)
	assert.JSONEq(t, `{"flagged":false,"category_scores":{"violence":0.01,"sexual":0.4}}`, string(result.Raw))
}

func TestClassifyFailsOnEmptyResults(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/moderations",
		httpmock.NewStringResponder(http.StatusOK, `{"results":[]}`))

	_, err := client.Classify(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClassifySurfacesUpstreamStatus(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/moderations",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":{"message":"bad key"}}`))

	_, err := client.Classify(context.Background(), "text")
	var reqErr *httpclient.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestExtractUsesFunctionCallArguments(t *testing.T) {
	client, transport := newTestClient(t)

	transport.RegisterResponder(http.MethodPost, testBaseURL+"/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			var body chatRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, DefaultChatModel, body.Model)
			assert.Equal(t, extractFunctionName, body.FunctionCall.Name)
			require.Len(t, body.Messages, 2)
			assert.Equal(t, "user", body.Messages[1].Role)

			return httpmock.NewStringResponse(http.StatusOK, `{"choices":[{"message":{"role":"assistant",
				"function_call":{"name":"extract_location","arguments":"{\"city\":\"Bangkok\",\"country\":\"Thailand\",\"confidence\":0.92}"}}}]}`), nil
		})

	loc, err := client.Extract(context.Background(), "Street food in Bangkok is amazing")
	require.NoError(t, err)
	assert.Equal(t, model.Location{City: "Bangkok", Country: "Thailand", Confidence: 0.92}, loc)
}

func TestExtractFallsBackToContent(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/chat/completions",
		httpmock.NewStringResponder(http.StatusOK,
			`{"choices":[{"message":{"role":"assistant","content":"{\"city\":\"Kyoto\",\"country\":\"Japan\",\"confidence\":0.8}"}}]}`))

	loc, err := client.Extract(context.Background(), "Temples in Kyoto")
	require.NoError(t, err)
	assert.Equal(t, "Kyoto", loc.City)
	assert.InDelta(t, 0.8, loc.Confidence, 1e-9)
}

func TestExtractMalformedArgumentsDegradeToDefault(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/chat/completions",
		httpmock.NewStringResponder(http.StatusOK,
			`{"choices":[{"message":{"function_call":{"name":"extract_location","arguments":"{city: Bangkok"}}}]}`))

	loc, err := client.Extract(context.Background(), "Street food")
	require.NoError(t, err)
	assert.Equal(t, extraction.Default(), loc)
}

func TestEmbedReturnsVector(t *testing.T) {
	client, transport := newTestClient(t)

	transport.RegisterResponder(http.MethodPost, testBaseURL+"/embeddings",
		func(req *http.Request) (*http.Response, error) {
			var body embeddingRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, DefaultEmbeddingModel, body.Model)
			return httpmock.NewStringResponse(http.StatusOK, `{"data":[{"embedding":[0.1,0.2,0.3]}]}`), nil
		})

	vec, err := client.Embed(context.Background(), "Street food in Bangkok")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedFailsOnEmptyData(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/embeddings",
		httpmock.NewStringResponder(http.StatusOK, `{"data":[]}`))

	_, err := client.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrEmptyResponse)
}
