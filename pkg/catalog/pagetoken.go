// Copyright 2018-2025 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package catalog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/openlake/delta-sharing/pkg/errtypes"
)

// Cursor is the decoded form of an opaque page token. Scope ties a token to
// the listing it was minted for so a token cannot be replayed against another
// endpoint; Last is the name of the last emitted entity.
type Cursor struct {
	Scope string `json:"scope"`
	Last  string `json:"last"`
}

// TokenCodec signs and verifies page cursors so clients cannot forge or
// tamper with them.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec returns a codec signing cursors with the given secret.
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret)}
}

// Encode serializes and signs the cursor.
func (c *TokenCodec) Encode(cur Cursor) string {
	payload, _ := json.Marshal(cur)
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	sig := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// Decode verifies the signature and scope of a page token and returns the
// cursor. Malformed or forged tokens yield errtypes.BadRequest.
func (c *TokenCodec) Decode(token, scope string) (Cursor, error) {
	var cur Cursor
	dot := -1
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return cur, errtypes.BadRequest("malformed page token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return cur, errtypes.BadRequest("malformed page token")
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return cur, errtypes.BadRequest("malformed page token")
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return cur, errtypes.BadRequest("invalid page token signature")
	}
	if err := json.Unmarshal(payload, &cur); err != nil {
		return cur, errtypes.BadRequest("malformed page token")
	}
	if cur.Scope != scope {
		return cur, errtypes.BadRequest("page token does not match request")
	}
	return cur, nil
}
