package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/accountProvider"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/digest"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/errorPresenter"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/metrics"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/recovery"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer/keySigner"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	server  *Server
	session *session.Session
	metrics *metrics.Metrics
	account common.Address
}

type serverOptions struct {
	approver  keySigner.Approver
	noKeys    bool
	rateLimit float64
	rateBurst int
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	l := zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel))
	keys := localKeyGenerator.NewLocalKeyGenerator(l)

	var keyIds []string
	var account common.Address
	if !opts.noKeys {
		key, err := keys.GenerateECDSAKey(context.Background(), "server-test", "")
		require.NoError(t, err)
		keyIds = append(keyIds, key.KeyId)
		account = key.Address
	}

	ks := keySigner.NewKeySigner(keys, &keySigner.KeySignerConfig{KeyIds: keyIds, Approver: opts.approver}, l)
	registry := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(registry)
	presenter := errorPresenter.NewErrorPresenter(nil, nil, l)
	sess := session.NewSession(ks, accountProvider.NewSignerAccountProvider(ks, nil), presenter, m, l)
	t.Cleanup(sess.Close)

	rateBurst := opts.rateBurst
	if rateBurst == 0 {
		rateBurst = 100
	}
	srv := NewServer(&ServerConfig{
		Port:        0,
		Domain:      types.DomainDescriptor{Name: "eigenx", Version: types.DefaultDomainVersion, ChainId: types.DefaultChainId},
		RateLimit:   opts.rateLimit,
		RateBurst:   rateBurst,
		WaitTimeout: 5 * time.Second,
	}, sess, m, registry, l)
	srv.now = func() time.Time { return time.UnixMilli(1700000000000) }

	return &testServer{server: srv, session: sess, metrics: m, account: account}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(w, req)
	return w
}

func decodeSubmit(t *testing.T, w *httptest.ResponseRecorder) SubmitResponse {
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func rejectAll(context.Context, *types.SigningRequest, *signer.RequestMetadata) error {
	return signer.ErrUserRejected
}

const mailTypedDataBody = `{
	"schema": {
		"primaryType": "Message",
		"types": [
			{"name": "Person", "fields": [{"name": "name", "type": "string"}, {"name": "wallet", "type": "address"}]},
			{"name": "Message", "fields": [
				{"name": "from", "type": "Person"},
				{"name": "to", "type": "Person"},
				{"name": "message", "type": "string"},
				{"name": "timestamp", "type": "uint256"}
			]}
		]
	},
	"value": {
		"from": {"name": "eigenx User", "wallet": "0x00000000000000000000000000000000000000aa"},
		"to": {"name": "Vitalik", "wallet": "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"},
		"message": "gm",
		"timestamp": 1700000000000
	},
	"wait": true
}`

func Test_Server_Status(t *testing.T) {
	t.Run("Should report an idle session", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodGet, "/status", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var snap session.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, session.StateIdle, snap.State)
		assert.Zero(t, snap.Generation)
	})

	t.Run("Method not allowed", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodPost, "/status", nil).Code)
		assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodGet, "/sign/message", nil).Code)
		assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodGet, "/error/clear", nil).Code)
	})
}

func Test_Server_SignMessage(t *testing.T) {
	t.Run("Should sign and verify a message", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "Hello World", Wait: true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeSubmit(t, w)
		require.NotNil(t, resp.Outcome)
		assert.Equal(t, session.StateAccepted, resp.Outcome.State)
		require.NotNil(t, resp.Outcome.Result)

		recovered, err := recovery.RecoverAddress(resp.Outcome.Result.Digest, resp.Outcome.Result.Signature)
		require.NoError(t, err)
		assert.Equal(t, ts.account, recovered)
		assert.Equal(t, "0xa1de988600a42c4b4ab089b619297c17d53cffae5d5120d82d8a92d0bb3b78f2", resp.Outcome.Result.Digest.Hex())
	})

	t.Run("Should accept without waiting", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "hi"})
		require.Equal(t, http.StatusAccepted, w.Code)

		resp := decodeSubmit(t, w)
		assert.Equal(t, uint64(1), resp.Generation)
		assert.Nil(t, resp.Outcome)

		out, err := ts.session.Wait(context.Background(), resp.Generation)
		require.NoError(t, err)
		assert.Equal(t, session.StateAccepted, out.State)
	})

	t.Run("Should decode hex messages", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "0x48656c6c6f20576f726c64", Encoding: EncodingHex, Wait: true})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeSubmit(t, w)
		assert.Equal(t, "0xa1de988600a42c4b4ab089b619297c17d53cffae5d5120d82d8a92d0bb3b78f2", resp.Outcome.Result.Digest.Hex())
	})

	t.Run("Should reject an empty message as malformed", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: ""})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Reason)
		assert.Equal(t, types.FailureMalformedRequest, resp.Reason.Kind)
		assert.Contains(t, resp.Error, "please type a message")
		assert.Equal(t, session.StateRejected, ts.session.Snapshot().State)
	})

	t.Run("Invalid requests", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/sign/message", "invalid json").Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "hi", Encoding: "base64"}).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "zz", Encoding: EncodingHex}).Code)
	})

	t.Run("Should report a missing account", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{noKeys: true})
		w := ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "hi"})
		require.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Reason)
		assert.Equal(t, types.FailureNoActiveAccount, resp.Reason.Kind)

		snap := ts.session.Snapshot()
		assert.Equal(t, session.StateIdle, snap.State)
		require.NotNil(t, snap.LastError)
	})
}

func Test_Server_SignTypedData(t *testing.T) {
	t.Run("Should sign typed data bound to the server domain", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/typed-data", mailTypedDataBody)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeSubmit(t, w)
		require.NotNil(t, resp.Outcome)
		assert.Equal(t, session.StateAccepted, resp.Outcome.State)
		assert.Equal(t, types.RequestKindTypedData, resp.Snapshot.Kind)
	})

	t.Run("Should require a schema", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/typed-data", `{"value": {"message": "gm"}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should reject values that do not match the schema", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		body := strings.Replace(mailTypedDataBody, `"message": "gm"`, `"message": "gm", "extra": 1`, 1)
		w := ts.do(t, http.MethodPost, "/sign/typed-data", body)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Reason)
		assert.Equal(t, types.FailureMalformedRequest, resp.Reason.Kind)
	})
}

func Test_Server_SignMail(t *testing.T) {
	t.Run("Should sign mail from the active account", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/mail", SignMailRequest{Message: "gm", Wait: true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		domain := types.DomainDescriptor{Name: "eigenx", Version: types.DefaultDomainVersion, ChainId: types.DefaultChainId}
		expected := types.NewMailTypedData(domain, "eigenx User", ts.account, types.DefaultRecipientName,
			common.HexToAddress(types.DefaultRecipientAddress), "gm", 1700000000000)
		want, err := digest.Build(expected)
		require.NoError(t, err)

		resp := decodeSubmit(t, w)
		require.NotNil(t, resp.Outcome)
		require.NotNil(t, resp.Outcome.Result)
		assert.Equal(t, want, resp.Outcome.Result.Digest)
	})

	t.Run("Should surface a user rejection and clear it", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{approver: rejectAll})
		w := ts.do(t, http.MethodPost, "/sign/mail", SignMailRequest{Message: "gm", Wait: true})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		resp := decodeSubmit(t, w)
		require.NotNil(t, resp.Outcome)
		assert.Equal(t, session.StateRejected, resp.Outcome.State)
		require.NotNil(t, resp.Outcome.Reason)
		assert.Equal(t, types.FailureUserRejected, resp.Outcome.Reason.Kind)
		require.NotNil(t, ts.session.PresentedError())

		assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/error/clear", nil).Code)
		assert.Nil(t, ts.session.PresentedError())
	})

	t.Run("Should validate the recipient", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		w := ts.do(t, http.MethodPost, "/sign/mail", SignMailRequest{Message: "gm", To: "not-an-address"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func Test_Server_RateLimit(t *testing.T) {
	t.Run("Should refuse submissions over the limit", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{rateLimit: 0.001, rateBurst: 1})

		assert.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "one"}).Code)
		assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "two"}).Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RateLimited))

		// observation is not limited
		assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/status", nil).Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.HTTPRequests.WithLabelValues("sign_message", "429")))
	})
}

func Test_Server_Metrics(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/sign/message", SignMessageRequest{Message: "hi", Wait: true}).Code)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "signing_requests_submitted_total")
	assert.Contains(t, w.Body.String(), "signing_requests_accepted_total")
}

func Test_Server_Websocket(t *testing.T) {
	t.Run("Should stream the snapshot and the outcome", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		httpServer := httptest.NewServer(ts.server.GetHandler())
		defer httpServer.Close()

		wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var first session.Update
		require.NoError(t, conn.ReadJSON(&first))
		assert.Equal(t, session.StateIdle, first.Snapshot.State)
		assert.Nil(t, first.Outcome)

		resp, err := http.Post(httpServer.URL+"/sign/message", "application/json", strings.NewReader(`{"message":"hi"}`))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var outcome *session.Outcome
		for outcome == nil {
			var update session.Update
			require.NoError(t, conn.ReadJSON(&update))
			outcome = update.Outcome
		}
		assert.Equal(t, session.StateAccepted, outcome.State)
		assert.Equal(t, uint64(1), outcome.Generation)
	})
}
