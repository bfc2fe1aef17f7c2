package etherscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
)

// fakeExplorer scripts verifysourcecode and checkverifystatus replies
type fakeExplorer struct {
	mu       sync.Mutex
	submits  []apiResponse
	statuses []apiResponse
	forms    []map[string]string
	checks   int
	queries  []url.Values
}

func (f *fakeExplorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.queries = append(f.queries, r.URL.Query())

	var resp apiResponse
	switch r.Form.Get("action") {
	case "verifysourcecode":
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		form["query_chainid"] = r.URL.Query().Get("chainid")
		f.forms = append(f.forms, form)
		resp = f.submits[min(len(f.forms)-1, len(f.submits)-1)]
	case "checkverifystatus":
		resp = f.statuses[min(f.checks, len(f.statuses)-1)]
		f.checks++
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

var testAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func testRequest() Request {
	return Request{
		ChainID:         11155111,
		Address:         testAddr,
		ContractName:    "contracts/CrowdFunding.sol:CrowdFunding",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		StandardJSON:    []byte(`{"language":"Solidity"}`),
		ConstructorArgs: []byte{0x01, 0x02},
	}
}

func newTestClient(t *testing.T, f *fakeExplorer) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key",
		WithRateLimit(0),
		WithPolling(time.Millisecond, 5),
		WithBrowserURL("https://sepolia.etherscan.io/"),
	)
}

func TestVerify_PassAfterPending(t *testing.T) {
	f := &fakeExplorer{
		submits: []apiResponse{{Status: "1", Message: "OK", Result: "guid-123"}},
		statuses: []apiResponse{
			{Status: "0", Message: "NOTOK", Result: "Pending in queue"},
			{Status: "0", Message: "NOTOK", Result: "Pending in queue"},
			{Status: "1", Message: "OK", Result: "Pass - Verified"},
		},
	}
	c := newTestClient(t, f)

	res, err := c.Verify(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, res.Status)
	assert.Equal(t, "guid-123", res.GUID)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, "https://sepolia.etherscan.io/address/"+testAddr.Hex()+"#code", res.URL)

	require.Len(t, f.forms, 1)
	form := f.forms[0]
	assert.Equal(t, "test-key", form["apikey"])
	assert.Equal(t, "11155111", form["chainid"])
	assert.Equal(t, "11155111", form["query_chainid"])
	assert.Equal(t, "solidity-standard-json-input", form["codeformat"])
	assert.Equal(t, "contracts/CrowdFunding.sol:CrowdFunding", form["contractname"])
	assert.Equal(t, "v0.8.19+commit.7dd6d404", form["compilerversion"])
	assert.Equal(t, "0102", form["constructorArguements"])
	assert.Equal(t, testAddr.Hex(), form["contractaddress"])
}

func TestVerify_APIURLWithQuery(t *testing.T) {
	f := &fakeExplorer{
		submits:  []apiResponse{{Status: "1", Message: "OK", Result: "guid-123"}},
		statuses: []apiResponse{{Status: "1", Message: "OK", Result: "Pass - Verified"}},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/v2/api?tenant=acme", "test-key", WithRateLimit(0), WithPolling(time.Millisecond, 5))

	_, err := c.Verify(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, f.queries, 2)
	for _, q := range f.queries {
		assert.Equal(t, "acme", q.Get("tenant"))
		assert.Equal(t, []string{"11155111"}, q["chainid"])
	}
	assert.Equal(t, "guid-123", f.queries[1].Get("guid"))
}

func TestVerify_AlreadyVerifiedOnSubmit(t *testing.T) {
	f := &fakeExplorer{
		submits: []apiResponse{{Status: "0", Message: "NOTOK", Result: "Contract source code already verified"}},
	}
	c := newTestClient(t, f)

	res, err := c.Verify(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyVerified, res.Status)
	assert.Zero(t, f.checks)
}

func TestVerify_AlreadyVerifiedOnPoll(t *testing.T) {
	f := &fakeExplorer{
		submits:  []apiResponse{{Status: "1", Result: "guid"}},
		statuses: []apiResponse{{Status: "0", Message: "NOTOK", Result: "Already Verified"}},
	}
	c := newTestClient(t, f)

	res, err := c.Verify(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyVerified, res.Status)
}

func TestVerify_Failures(t *testing.T) {
	t.Run("rejected on submit", func(t *testing.T) {
		f := &fakeExplorer{submits: []apiResponse{{Status: "0", Message: "NOTOK", Result: "Invalid API Key"}}}
		_, err := newTestClient(t, f).Verify(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrVerificationFailed)
		assert.ErrorContains(t, err, "Invalid API Key")
	})

	t.Run("fails during poll", func(t *testing.T) {
		f := &fakeExplorer{
			submits:  []apiResponse{{Status: "1", Result: "guid"}},
			statuses: []apiResponse{{Status: "0", Message: "NOTOK", Result: "Fail - Unable to verify"}},
		}
		_, err := newTestClient(t, f).Verify(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrVerificationFailed)
	})

	t.Run("never leaves the queue", func(t *testing.T) {
		f := &fakeExplorer{
			submits:  []apiResponse{{Status: "1", Result: "guid"}},
			statuses: []apiResponse{{Status: "0", Message: "NOTOK", Result: "Pending in queue"}},
		}
		_, err := newTestClient(t, f).Verify(context.Background(), testRequest())
		assert.ErrorIs(t, err, ErrStillPending)
		assert.Equal(t, 5, f.checks)
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(srv.URL, "k", WithRateLimit(0)).Verify(context.Background(), testRequest())
		assert.ErrorContains(t, err, "HTTP 502")
	})
}

func TestVerify_RetriesUntilIndexed(t *testing.T) {
	f := &fakeExplorer{
		submits: []apiResponse{
			{Status: "0", Message: "NOTOK", Result: "Unable to locate ContractCode at 0x5fbd"},
			{Status: "1", Result: "guid"},
		},
		statuses: []apiResponse{{Status: "1", Result: "Pass - Verified"}},
	}
	c := newTestClient(t, f)

	res, err := c.Verify(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, res.Status)
	assert.Len(t, f.forms, 2)
}

func TestVerify_ContextCancelled(t *testing.T) {
	f := &fakeExplorer{
		submits:  []apiResponse{{Status: "1", Result: "guid"}},
		statuses: []apiResponse{{Status: "0", Result: "Pending in queue"}},
	}
	srv := httptest.NewServer(f)
	defer srv.Close()
	c := New(srv.URL, "k", WithRateLimit(0), WithPolling(time.Hour, 5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Verify(ctx, testRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRequest(t *testing.T) {
	artifact := &chains.Artifact{
		Name:       "CrowdFunding",
		SourcePath: "contracts/CrowdFunding.sol",
		Compiler:   chains.Compiler{Version: "0.8.19"},
	}
	input := &chains.VerificationInput{
		StandardJSON:    []byte(`{}`),
		SolcLongVersion: "0.8.19+commit.7dd6d404",
	}

	req, err := NewRequest(11155111, testAddr, artifact, input, []byte{0xaa})
	require.NoError(t, err)
	assert.Equal(t, "contracts/CrowdFunding.sol:CrowdFunding", req.ContractName)
	assert.Equal(t, "v0.8.19+commit.7dd6d404", req.CompilerVersion)

	// the short artifact version cannot be resolved to a compiler build
	_, err = NewRequest(11155111, testAddr, artifact, &chains.VerificationInput{StandardJSON: []byte(`{}`)}, nil)
	assert.Error(t, err)

	_, err = NewRequest(11155111, testAddr, artifact, nil, nil)
	assert.Error(t, err)
}
