package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
	"github.com/pendergraft/crowdfund-deploy/internal/storage"
	"github.com/pendergraft/crowdfund-deploy/internal/verification/etherscan"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// mockStore implements DeploymentStore for testing
type mockStore struct {
	deployments map[string]*storage.Deployment
	getErr      error
	updates     []string
}

func newMockStore() *mockStore {
	return &mockStore{deployments: make(map[string]*storage.Deployment)}
}

func (m *mockStore) GetDeployment(ctx context.Context, chainID int64, address string) (*storage.Deployment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if d, ok := m.deployments[common.HexToAddress(address).Hex()]; ok && d.ChainID == chainID {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) UpdateVerificationStatus(ctx context.Context, id, status, guid string) error {
	m.updates = append(m.updates, id+"="+status+":"+guid)
	return nil
}

type mockVerifier struct {
	reqs   []etherscan.Request
	result *etherscan.Result
	err    error
}

func (m *mockVerifier) Verify(ctx context.Context, req etherscan.Request) (*etherscan.Result, error) {
	m.reqs = append(m.reqs, req)
	return m.result, m.err
}

type mockChecker struct {
	result *chains.VerifyResult
	err    error
}

func (m *mockChecker) VerifyDeployment(context.Context, common.Address, *chains.Artifact) (*chains.VerifyResult, error) {
	return m.result, m.err
}

func testArtifact() (*chains.Artifact, *chains.VerificationInput) {
	return &chains.Artifact{
			Name:             "CrowdFunding",
			SourcePath:       "contracts/CrowdFunding.sol",
			DeployedBytecode: "0x6080",
		}, &chains.VerificationInput{
			StandardJSON:    []byte(`{"language":"Solidity"}`),
			SolcLongVersion: "0.8.19+commit.7dd6d404",
		}
}

func verified() *etherscan.Result {
	return &etherscan.Result{Status: etherscan.StatusVerified, GUID: "guid-1", URL: "https://sepolia.etherscan.io/address/" + testAddress + "#code"}
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()
	artifact, input := testArtifact()

	t.Run("arguments from history", func(t *testing.T) {
		store := newMockStore()
		store.deployments[testAddress] = &storage.Deployment{ID: "dep-1", ChainID: 11155111, ConstructorArgs: "00ff"}
		verifier := &mockVerifier{result: verified()}
		svc := NewService(artifact, input, verifier, WithHistory(store))

		result, err := svc.Verify(ctx, VerifyRequest{ChainID: 11155111, Address: testAddress})
		require.NoError(t, err)

		require.Len(t, verifier.reqs, 1)
		req := verifier.reqs[0]
		assert.Equal(t, []byte{0x00, 0xff}, req.ConstructorArgs)
		assert.Equal(t, "contracts/CrowdFunding.sol:CrowdFunding", req.ContractName)
		assert.Equal(t, "v0.8.19+commit.7dd6d404", req.CompilerVersion)
		assert.Equal(t, "verified", result.Status)
		assert.True(t, result.Recorded)
		assert.Equal(t, []string{"dep-1=verified:guid-1"}, store.updates)
	})

	t.Run("explicit arguments win", func(t *testing.T) {
		store := newMockStore()
		store.deployments[testAddress] = &storage.Deployment{ID: "dep-1", ChainID: 1, ConstructorArgs: "00ff"}
		verifier := &mockVerifier{result: verified()}
		svc := NewService(artifact, input, verifier, WithHistory(store))

		_, err := svc.Verify(ctx, VerifyRequest{ChainID: 1, Address: testAddress, ConstructorArgs: "0xabcd"})
		require.NoError(t, err)
		assert.Equal(t, []byte{0xab, 0xcd}, verifier.reqs[0].ConstructorArgs)
	})

	t.Run("already verified is success", func(t *testing.T) {
		verifier := &mockVerifier{result: &etherscan.Result{Status: etherscan.StatusAlreadyVerified}}
		svc := NewService(artifact, input, verifier)

		result, err := svc.Verify(ctx, VerifyRequest{ChainID: 1, Address: testAddress, ConstructorArgs: "00"})
		require.NoError(t, err)
		assert.Equal(t, "already_verified", result.Status)
		assert.False(t, result.Recorded)
	})

	t.Run("explorer failure is recorded", func(t *testing.T) {
		store := newMockStore()
		store.deployments[testAddress] = &storage.Deployment{ID: "dep-1", ChainID: 1, ConstructorArgs: "00"}
		verifier := &mockVerifier{err: etherscan.ErrVerificationFailed}
		svc := NewService(artifact, input, verifier, WithHistory(store))

		_, err := svc.Verify(ctx, VerifyRequest{ChainID: 1, Address: testAddress})
		assert.ErrorIs(t, err, etherscan.ErrVerificationFailed)
		assert.Equal(t, []string{"dep-1=failed:"}, store.updates)
	})

	t.Run("bytecode checked first", func(t *testing.T) {
		verifier := &mockVerifier{result: verified()}
		svc := NewService(artifact, input, verifier,
			WithCodeChecker(&mockChecker{result: &chains.VerifyResult{Match: true, MatchType: "partial"}}))

		result, err := svc.Verify(ctx, VerifyRequest{ChainID: 1, Address: testAddress, ConstructorArgs: "00"})
		require.NoError(t, err)
		assert.Equal(t, "partial", result.MatchType)
	})

	t.Run("bytecode mismatch stops", func(t *testing.T) {
		verifier := &mockVerifier{result: verified()}
		svc := NewService(artifact, input, verifier,
			WithCodeChecker(&mockChecker{result: &chains.VerifyResult{Match: false, MatchType: "none", Message: "bytecode differs"}}))

		_, err := svc.Verify(ctx, VerifyRequest{ChainID: 1, Address: testAddress, ConstructorArgs: "00"})
		assert.ErrorIs(t, err, ErrBytecodeMismatch)
		assert.Empty(t, verifier.reqs)
	})
}

func TestService_VerifyErrors(t *testing.T) {
	ctx := context.Background()
	artifact, input := testArtifact()

	tests := []struct {
		name    string
		req     VerifyRequest
		store   *mockStore
		wantErr error
	}{
		{
			name:    "invalid address",
			req:     VerifyRequest{ChainID: 1, Address: "0x1234", ConstructorArgs: "00"},
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "invalid chain",
			req:     VerifyRequest{ChainID: 0, Address: testAddress, ConstructorArgs: "00"},
			wantErr: ErrInvalidChainID,
		},
		{
			name:    "no history and no arguments",
			req:     VerifyRequest{ChainID: 1, Address: testAddress},
			wantErr: ErrNoArgs,
		},
		{
			name:    "unrecorded address",
			req:     VerifyRequest{ChainID: 1, Address: testAddress},
			store:   newMockStore(),
			wantErr: ErrNoArgs,
		},
		{
			name:    "bad hex",
			req:     VerifyRequest{ChainID: 1, Address: testAddress, ConstructorArgs: "zz"},
			wantErr: ErrInvalidArgs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &mockVerifier{result: verified()}
			var opts []Option
			if tt.store != nil {
				opts = append(opts, WithHistory(tt.store))
			}
			_, err := NewService(artifact, input, verifier, opts...).Verify(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, verifier.reqs)
		})
	}

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.getErr = errors.New("database is locked")
		_, err := NewService(artifact, input, &mockVerifier{}, WithHistory(store)).
			Verify(ctx, VerifyRequest{ChainID: 1, Address: testAddress})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is locked")
	})
}
