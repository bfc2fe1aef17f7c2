package evm

import (
	"bytes"
	"encoding/binary"

	"github.com/pendergraft/crowdfund-deploy/internal/chains"
)

// StripMetadata removes the CBOR metadata solc appends to runtime code.
// The last two bytes hold the big-endian length of the CBOR map that
// precedes them.
func StripMetadata(bytecode []byte) []byte {
	if len(bytecode) < 2 {
		return bytecode
	}
	n := int(binary.BigEndian.Uint16(bytecode[len(bytecode)-2:]))
	start := len(bytecode) - 2 - n
	if n == 0 || start < 0 {
		return bytecode
	}
	// CBOR map header with 1-3 entries (ipfs/bzzr, solc, experimental)
	if h := bytecode[start]; h < 0xa1 || h > 0xa3 {
		return bytecode
	}
	return bytecode[:start]
}

// CompareBytecode compares deployed runtime code to the artifact's.
// Immutable ranges are taken from the deployed code before comparing.
func CompareBytecode(deployed, artifact []byte, immutables []chains.CodeRange) *chains.VerifyResult {
	artifact = maskImmutables(artifact, deployed, immutables)

	if bytes.Equal(deployed, artifact) {
		return &chains.VerifyResult{
			Match:     true,
			MatchType: "full",
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(artifact)) {
		return &chains.VerifyResult{
			Match:     true,
			MatchType: "partial",
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}
	}

	return &chains.VerifyResult{
		Match:     false,
		MatchType: "none",
		Message:   "Bytecode does not match",
	}
}

func maskImmutables(artifact, deployed []byte, immutables []chains.CodeRange) []byte {
	if len(immutables) == 0 || len(artifact) != len(deployed) {
		return artifact
	}
	masked := bytes.Clone(artifact)
	for _, r := range immutables {
		end := r.Start + r.Length
		if r.Start < 0 || r.Length <= 0 || end > len(masked) {
			continue
		}
		copy(masked[r.Start:end], deployed[r.Start:end])
	}
	return masked
}
