package evm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// ErrInvalidPrivateKey is returned for keys that are not 32 hex bytes
var ErrInvalidPrivateKey = errors.New("invalid private key")

// NewTransactor builds EIP-155 signing options for a hex private key
// (with or without 0x prefix).
func NewTransactor(hexKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}
	return opts, nil
}

// PromptPrivateKey asks for a key on out and reads it from in without echo
// when in is a terminal.
func PromptPrivateKey(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter deployer private key: ")

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		key, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read private key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	// Non-terminal, read a line from stdin
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
