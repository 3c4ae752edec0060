// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registration

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// plainPayload builds the single PLAIN mechanism message: authorization
// identity, authentication identity, and password joined by NUL bytes
func plainPayload(authzid string, username string, password string) []byte {
	payload := make([]byte, 0, len(authzid)+len(username)+len(password)+2)
	payload = append(payload, authzid...)
	payload = append(payload, 0)
	payload = append(payload, username...)
	payload = append(payload, 0)
	payload = append(payload, password...)
	return payload
}

// scramConversation implements the client side of a SCRAM authentication
// exchange (RFC 5802) with SHA-256 as the hash function (RFC 7677). Channel
// binding is not used, so the gs2 header is always "n,,"
type scramConversation struct {
	username        string
	password        string
	nonce           string
	clientFirstBare string
	serverSignature []byte
}

func newScramConversation(username string, password string) (*scramConversation, error) {
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &scramConversation{
		username: username,
		password: password,
		nonce:    base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// clientFirst returns the initial client message
func (s *scramConversation) clientFirst() []byte {
	s.clientFirstBare = "n=" + escapeScramName(s.username) + ",r=" + s.nonce
	return []byte("n,," + s.clientFirstBare)
}

// handleServerFirst processes the server challenge and returns the final
// client message carrying the proof
func (s *scramConversation) handleServerFirst(serverFirst []byte) ([]byte, error) {
	attrs, err := parseScramAttributes(string(serverFirst))
	if err != nil {
		return nil, err
	}
	if _, ok := attrs["m"]; ok {
		return nil, fmt.Errorf(
			"scram: server requires an unsupported mandatory extension",
		)
	}
	combinedNonce := attrs["r"]
	if !strings.HasPrefix(combinedNonce, s.nonce) {
		return nil, fmt.Errorf("scram: server nonce does not extend ours")
	}
	salt, err := base64.StdEncoding.DecodeString(attrs["s"])
	if err != nil {
		return nil, fmt.Errorf("scram: malformed salt: %w", err)
	}
	iterations, err := strconv.Atoi(attrs["i"])
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf(
			"scram: malformed iteration count: %q",
			attrs["i"],
		)
	}
	saltedPassword := pbkdf2.Key(
		[]byte(s.password),
		salt,
		iterations,
		sha256.Size,
		sha256.New,
	)
	clientKey := hmacSha256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientFinalWithoutProof := "c=biws,r=" + combinedNonce
	authMessage := s.clientFirstBare + "," + string(serverFirst) + "," +
		clientFinalWithoutProof
	clientSignature := hmacSha256(storedKey[:], []byte(authMessage))
	clientProof := make([]byte, len(clientKey))
	for i := range clientKey {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}
	serverKey := hmacSha256(saltedPassword, []byte("Server Key"))
	s.serverSignature = hmacSha256(serverKey, []byte(authMessage))
	clientFinal := clientFinalWithoutProof + ",p=" +
		base64.StdEncoding.EncodeToString(clientProof)
	return []byte(clientFinal), nil
}

// handleServerFinal verifies the server signature, proving the server also
// knew the password
func (s *scramConversation) handleServerFinal(serverFinal []byte) error {
	attrs, err := parseScramAttributes(string(serverFinal))
	if err != nil {
		return err
	}
	if errValue, ok := attrs["e"]; ok {
		return fmt.Errorf("scram: server rejected authentication: %s", errValue)
	}
	verifier, ok := attrs["v"]
	if !ok {
		return fmt.Errorf("scram: server final message carries no verifier")
	}
	signature, err := base64.StdEncoding.DecodeString(verifier)
	if err != nil {
		return fmt.Errorf("scram: malformed server signature: %w", err)
	}
	if subtle.ConstantTimeCompare(signature, s.serverSignature) != 1 {
		return fmt.Errorf("scram: server signature mismatch")
	}
	return nil
}

// parseScramAttributes splits a SCRAM message into its attr=value pairs.
// Values may themselves contain '=' (base64 padding), so each pair is split
// at the first one only
func parseScramAttributes(message string) (map[string]string, error) {
	attrs := make(map[string]string)
	for _, part := range strings.Split(message, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found || len(key) != 1 {
			return nil, fmt.Errorf("scram: malformed attribute: %q", part)
		}
		attrs[key] = value
	}
	return attrs, nil
}

var scramNameReplacer = strings.NewReplacer("=", "=3D", ",", "=2C")

// escapeScramName escapes the characters that delimit SCRAM messages
func escapeScramName(name string) string {
	return scramNameReplacer.Replace(name)
}

func hmacSha256(key []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
