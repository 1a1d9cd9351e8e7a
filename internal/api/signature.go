package api

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"p2pswap/internal/types"
)

// Signature headers. Every signed command carries an X-Nonce that may be
// used once per account.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	// MaxTimeDrift bounds how far X-Timestamp may be from server time.
	MaxTimeDrift = 5 * time.Minute

	maxBodyBytes = 1 << 20
)

type canonicalRequest struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Account   string `json:"account"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	BodyHash  string `json:"body_hash"`
}

// requestHash is the Keccak256 digest a caller signs for a command.
func requestHash(method, path string, account types.Address, timestamp int64, nonce string, body []byte) []byte {
	data, _ := json.Marshal(canonicalRequest{
		Method:    method,
		Path:      path,
		Account:   account.Hex(),
		Timestamp: timestamp,
		Nonce:     nonce,
		BodyHash:  ethcrypto.Keccak256Hash(body).Hex(),
	})
	return ethcrypto.Keccak256(data)
}

// SignRequest signs req on behalf of key's address and sets the caller and
// signature headers. The body is read and replaced. nonce must be unique per
// account for at least twice MaxTimeDrift.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, now time.Time, nonce string) error {
	if strings.TrimSpace(nonce) != nonce || nonce == "" {
		return fmt.Errorf("sign request: nonce must be non-empty without surrounding spaces")
	}
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	account := ethcrypto.PubkeyToAddress(key.PublicKey)
	ts := now.Unix()
	sig, err := ethcrypto.Sign(requestHash(req.Method, req.URL.Path, account, ts, nonce, body), key)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set(HeaderAccount, account.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(HeaderNonce, nonce)
	return nil
}

// verifySignature requires commands to be signed by the X-Account key.
// It runs after requireCaller.
func (s *Server) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.RequireSignatures {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller := callerFrom(r.Context())
		if err := s.checkSignature(r, caller, body); err != nil {
			s.logger.Warnf("auth: signature rejected for %s on %s %s: %v", caller.Hex(), r.Method, r.URL.Path, err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkSignature(r *http.Request, caller types.Address, body []byte) error {
	rawSig := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(HeaderSignature)), "0x")
	if rawSig == "" {
		return fmt.Errorf("missing %s header", HeaderSignature)
	}
	sig, err := hex.DecodeString(rawSig)
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return fmt.Errorf("invalid signature format")
	}
	// Accept wallet-style recovery ids.
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}

	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return fmt.Errorf("missing %s header", HeaderNonce)
	}

	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s header", HeaderTimestamp)
	}
	drift := s.now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > MaxTimeDrift {
		return fmt.Errorf("timestamp too old or too far in future: %d seconds difference", int(drift.Seconds()))
	}

	hash := requestHash(r.Method, r.URL.Path, caller, ts, nonce, body)
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("recover signer: %v", err)
	}
	if signer := ethcrypto.PubkeyToAddress(*pub); signer != caller {
		return fmt.Errorf("signature by %s does not match %s", signer.Hex(), caller.Hex())
	}

	return s.useNonce(caller, nonce, ts)
}

// useNonce records nonce for caller and fails if it was seen within
// nonceTTL.
func (s *Server) useNonce(caller types.Address, nonce string, ts int64) error {
	key := caller.Hex() + "/" + nonce
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	if s.nonces.Contains(key) {
		return fmt.Errorf("nonce %q already used", nonce)
	}
	s.nonces.Add(key, ts)
	return nil
}
